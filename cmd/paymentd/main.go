// Command paymentd is the payment backend the editing surface talks to.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/clipswift/internal/api"
	"github.com/example/clipswift/internal/auth"
	"github.com/example/clipswift/internal/config"
	"github.com/example/clipswift/internal/infrastructure/kafka"
	"github.com/example/clipswift/internal/infrastructure/store"
	"github.com/example/clipswift/internal/logging"
	"github.com/example/clipswift/internal/payment"
	"go.uber.org/zap"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := logging.Must("api", cfg.Debug)
	defer logger.Sync()

	if err := cfg.ValidateBackend(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	logger.Info("ClipSwift payment backend",
		zap.String("addr", cfg.Backend.Addr),
		zap.Strings("kafka", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.PaymentTopic),
		zap.Bool("postgres", cfg.Backend.DatabaseURL != ""))

	// Session registry: PostgreSQL when configured, memory otherwise
	var registry payment.Registry = payment.NewMemoryRegistry()
	if cfg.Backend.DatabaseURL != "" {
		db, err := store.ConnectPostgres(cfg.Backend.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
		}
		defer db.Close()

		pg := payment.NewPostgresRegistry(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to prepare schema", zap.Error(err))
		}
		registry = pg
		logger.Info("connected to PostgreSQL")
	}

	var events kafka.Publisher
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.PaymentTopic)
		defer producer.Close()
		events = producer
	}

	tokens := auth.NewTokenService(cfg.Backend.JWTSecret, cfg.Backend.TokenExpiry)
	logger.Info("entitlement tokens", zap.Duration("expiry", tokens.Expiry()))
	svc := payment.NewService(
		payment.NewStripeProvider(cfg.Backend.StripeKey),
		registry,
		tokens,
		events,
		cfg.Backend.WebhookSecret,
		logger.Named("payment"),
	)

	handlers := api.NewHandlers(svc, logger)
	srv := &http.Server{
		Addr:              cfg.Backend.Addr,
		Handler:           api.NewRouter(handlers, tokens, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", cfg.Backend.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
