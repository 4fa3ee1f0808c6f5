package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/clipswift/internal/config"
	"github.com/example/clipswift/internal/email"
	"github.com/example/clipswift/internal/infrastructure/kafka"
	"github.com/example/clipswift/internal/infrastructure/store"
	"github.com/example/clipswift/internal/logging"
	"github.com/example/clipswift/internal/notification"
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
	logger := logging.Must("notifier", cfg.Debug)
	defer logger.Sync()

	consumerGroup := "receipt-notifier" // Dedicated consumer group for receipts

	if !cfg.Kafka.Enabled() {
		logger.Fatal("KAFKA_BROKERS is required")
	}

	logger.Info("ClipSwift receipt notifier",
		zap.Strings("kafka", cfg.Kafka.Brokers),
		zap.String("topic", cfg.Kafka.PaymentTopic),
		zap.String("group", consumerGroup),
		zap.String("smtp", cfg.SMTP.Host+":"+cfg.SMTP.Port),
		zap.String("from", cfg.SMTP.From))

	// The session registry fills in addresses missing from events
	var sessions payment.Registry
	if cfg.Backend.DatabaseURL != "" {
		db, err := store.ConnectPostgres(cfg.Backend.DatabaseURL)
		if err != nil {
			logger.Fatal("failed to connect to PostgreSQL", zap.Error(err))
		}
		defer db.Close()
		sessions = payment.NewPostgresRegistry(db)
		logger.Info("connected to PostgreSQL")
	}

	emailSvc := email.NewService(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.From)
	handler := notification.NewHandler(emailSvc, sessions, logger)

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.PaymentTopic, consumerGroup, logger)
	defer consumer.Close()

	go func() {
		logger.Info("starting event consumer")
		if err := consumer.Consume(ctx, handler.HandleEvent); err != nil && ctx.Err() == nil {
			logger.Error("consumer error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()
}
