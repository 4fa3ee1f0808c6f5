package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/example/clipswift/internal/api/middleware"
	"github.com/example/clipswift/internal/domain/apperr"
	"github.com/example/clipswift/internal/payment"
	"go.uber.org/zap"
)

// maxWebhookBytes caps the raw body read before signature verification.
const maxWebhookBytes = 64 << 10

// Payments is the slice of payment.Service the handlers call.
type Payments interface {
	CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (payment.CheckoutResponse, error)
	VerifyPayment(ctx context.Context, sessionID string) (payment.VerifyResponse, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type Handlers struct {
	payments Payments
	logger   *zap.Logger
	now      func() time.Time
}

func NewHandlers(payments Payments, logger *zap.Logger) *Handlers {
	return &Handlers{
		payments: payments,
		logger:   logger,
		now:      time.Now,
	}
}

func (h *Handlers) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req payment.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.payments.CreateCheckoutSession(r.Context(), req)
	if err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			respondError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("error creating checkout session", zap.Error(err))
		respondError(w, "Failed to create checkout session", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

type verifyRequest struct {
	SessionID string `json:"sessionId"`
}

func (h *Handlers) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.payments.VerifyPayment(r.Context(), req.SessionID)
	if err != nil {
		if errors.Is(err, payment.ErrSessionIDRequired) {
			respondError(w, "Session ID required", http.StatusBadRequest)
			return
		}
		h.logger.Error("error verifying payment", zap.String("session_id", req.SessionID), zap.Error(err))
		respondError(w, "Failed to verify payment", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// Webhook must see the body byte for byte as Stripe signed it.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		respondError(w, "Webhook Error: unreadable body", http.StatusBadRequest)
		return
	}

	if err := h.payments.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		if errors.Is(err, apperr.ErrSignatureVerification) || errors.Is(err, apperr.ErrValidation) {
			respondError(w, "Webhook Error: "+err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("error handling webhook", zap.Error(err))
		respondError(w, "Webhook handling failed", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"timestamp": h.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

// Entitlement echoes the claims of a valid entitlement token.
func (h *Handlers) Entitlement(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.EntitlementFromContext(r.Context())
	if !ok {
		respondError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	out := map[string]any{
		"tier":      claims.Tier,
		"sessionId": claims.SessionID,
		"email":     claims.Email,
	}
	if claims.ExpiresAt != nil {
		out["expiresAt"] = claims.ExpiresAt.Time.UTC()
	}
	respondJSON(w, http.StatusOK, out)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}
