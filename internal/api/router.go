// Package api is the HTTP surface of the payment backend.
package api

import (
	"net/http"
	"time"

	"github.com/example/clipswift/internal/api/middleware"
	"github.com/example/clipswift/internal/auth"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func NewRouter(handlers *Handlers, tokens *auth.TokenService, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(withLogging(logger))
	r.Use(middleware.CORS)

	r.Get("/health", handlers.Health)
	r.Post("/create-checkout-session", handlers.CreateCheckoutSession)
	r.Post("/verify-payment", handlers.VerifyPayment)
	r.Post("/webhook", handlers.Webhook)

	r.With(middleware.RequireEntitlement(tokens)).Get("/entitlement", handlers.Entitlement)

	return r
}

func withLogging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)))
		})
	}
}
