// Package notification sends receipts for completed payments.
package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/example/clipswift/internal/payment"
	"go.uber.org/zap"
)

// Mailer sends the upgrade receipt.
type Mailer interface {
	SendReceipt(to, sessionID string, paidAt time.Time) error
}

// Handler processes events for sending notifications
type Handler struct {
	mailer   Mailer
	sessions payment.Registry
	logger   *zap.Logger
}

// NewHandler creates a new notification handler. sessions is consulted when
// an event carries no email address and may be nil.
func NewHandler(mailer Mailer, sessions payment.Registry, logger *zap.Logger) *Handler {
	return &Handler{
		mailer:   mailer,
		sessions: sessions,
		logger:   logger,
	}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event payment.Event
	if err := json.Unmarshal(value, &event); err != nil {
		h.logger.Error("failed to unmarshal event", zap.Error(err))
		return err
	}

	// Only process PaymentCompleted events
	if event.Type == payment.EventPaymentCompleted {
		return h.handlePaymentCompleted(ctx, event)
	}
	return nil
}

func (h *Handler) handlePaymentCompleted(ctx context.Context, event payment.Event) error {
	var e payment.PaymentCompleted
	if err := json.Unmarshal(event.Data, &e); err != nil {
		h.logger.Error("failed to unmarshal PaymentCompleted event", zap.Error(err))
		return err
	}

	log := h.logger.With(zap.String("session_id", e.SessionID), zap.String("event_id", event.ID))
	log.Info("processing PaymentCompleted event", zap.String("source", e.Source))

	to := e.Email
	if to == "" && h.sessions != nil {
		rec, ok, err := h.sessions.Get(ctx, e.SessionID)
		if err != nil {
			log.Error("error looking up session", zap.Error(err))
			return nil
		}
		if ok {
			to = rec.Email
		}
	}
	if to == "" {
		log.Warn("no email address for session")
		return nil
	}

	if err := h.mailer.SendReceipt(to, e.SessionID, e.CompletedAt); err != nil {
		log.Error("failed to send receipt", zap.String("to", to), zap.Error(err))
		return err
	}

	log.Info("receipt sent", zap.String("to", to))
	return nil
}
