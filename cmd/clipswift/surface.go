package main

import (
	"context"
	"fmt"

	"github.com/example/clipswift/internal/config"
	"github.com/example/clipswift/internal/domain/checkout"
	"github.com/example/clipswift/internal/gateway"
	"github.com/example/clipswift/internal/infrastructure/kafka"
	"github.com/example/clipswift/internal/infrastructure/store"
	"github.com/example/clipswift/internal/library"
	"github.com/example/clipswift/internal/propagation"
	"go.uber.org/zap"
)

// surface is everything one editing-surface process holds.
type surface struct {
	state       store.StateStore
	broadcaster *propagation.Broadcaster
	lib         *library.Library
	gateway     *gateway.Client
	closers     []func() error
	logger      *zap.Logger
}

func openSurface(ctx context.Context, cfg config.Config, logger *zap.Logger) (*surface, error) {
	state, closeState, err := store.Open(ctx, cfg.State)
	if err != nil {
		return nil, err
	}
	s := &surface{
		state:       state,
		broadcaster: propagation.NewBroadcaster(logger.Named("broadcast"), 0),
		gateway:     gateway.NewClient(cfg.Checkout.BackendURL, cfg.Checkout.HTTPTimeout),
		closers:     []func() error{closeState},
		logger:      logger,
	}

	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.SyncTopic)
		s.broadcaster.Add(propagation.NewKafkaTarget(producer))
		s.closers = append(s.closers, producer.Close)
		logger.Debug("broadcasting to kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.SyncTopic))
	}

	s.lib = library.New(state, s.broadcaster, logger.Named("library"))
	if err := s.lib.Load(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("load snippets: %w", err)
	}
	return s, nil
}

// lifecycle builds the upgrade state machine. verifier defaults to the
// backend client.
func (s *surface) lifecycle(cfg config.CheckoutConfig, verifier checkout.Verifier) *checkout.Lifecycle {
	if verifier == nil {
		verifier = s.gateway
	}
	return checkout.NewLifecycle(checkout.Config{
		PriceID:     cfg.PriceID,
		SuccessURL:  cfg.SuccessURL,
		CancelURL:   cfg.CancelURL,
		Window:      cfg.Window,
		ClosedDelay: cfg.ClosedDelay,
	}, s.gateway, verifier, s.lib, s.state, s.logger.Named("checkout"))
}

func (s *surface) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.logger.Debug("close", zap.Error(err))
		}
	}
}
