// Package payment is the backend half of the upgrade flow: it opens Stripe
// checkout sessions, answers verification requests and consumes webhooks.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/example/clipswift/internal/auth"
	"github.com/example/clipswift/internal/domain/apperr"
	"github.com/example/clipswift/internal/infrastructure/kafka"
	"go.uber.org/zap"
)

var ErrSessionIDRequired = fmt.Errorf("%w: Session ID required", apperr.ErrValidation)

// CheckoutRequest is the body of POST /create-checkout-session.
type CheckoutRequest struct {
	PriceID       string `json:"priceId"`
	SuccessURL    string `json:"successUrl"`
	CancelURL     string `json:"cancelUrl"`
	CustomerEmail string `json:"customerEmail"`
}

func (r CheckoutRequest) Validate() error {
	var errs []error
	if strings.TrimSpace(r.PriceID) == "" {
		errs = append(errs, errors.New("priceId is required"))
	}
	if strings.TrimSpace(r.SuccessURL) == "" {
		errs = append(errs, errors.New("successUrl is required"))
	}
	if strings.TrimSpace(r.CancelURL) == "" {
		errs = append(errs, errors.New("cancelUrl is required"))
	}
	if _, err := mail.ParseAddress(r.CustomerEmail); err != nil {
		errs = append(errs, errors.New("customerEmail is invalid"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", apperr.ErrValidation, errors.Join(errs...))
	}
	return nil
}

// CheckoutResponse is what the extension opens in a new window.
type CheckoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// VerifyResponse mirrors checkout.Verification on the wire.
type VerifyResponse struct {
	PaymentStatus    string `json:"paymentStatus"`
	EntitlementToken string `json:"entitlementToken,omitempty"`
}

type Service struct {
	provider      Provider
	registry      Registry
	tokens        *auth.TokenService
	events        kafka.Publisher
	webhookSecret string
	logger        *zap.Logger
	now           func() time.Time
}

// NewService wires the backend. events may be nil when no broker is
// configured; completions are then only logged.
func NewService(provider Provider, registry Registry, tokens *auth.TokenService, events kafka.Publisher, webhookSecret string, logger *zap.Logger) *Service {
	return &Service{
		provider:      provider,
		registry:      registry,
		tokens:        tokens,
		events:        events,
		webhookSecret: webhookSecret,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutResponse, error) {
	if err := req.Validate(); err != nil {
		return CheckoutResponse{}, err
	}

	sess, err := s.provider.CreateSession(ctx, SessionParams{
		PriceID:       req.PriceID,
		SuccessURL:    req.SuccessURL,
		CancelURL:     req.CancelURL,
		CustomerEmail: req.CustomerEmail,
	})
	if err != nil {
		return CheckoutResponse{}, fmt.Errorf("create checkout session: %w", err)
	}

	if err := s.registry.Create(ctx, Record{
		SessionID: sess.ID,
		Email:     req.CustomerEmail,
		Status:    StatusPending,
		CreatedAt: s.now(),
	}); err != nil {
		return CheckoutResponse{}, err
	}

	s.logger.Info("checkout session created",
		zap.String("session_id", sess.ID),
		zap.String("email", req.CustomerEmail))
	return CheckoutResponse{SessionID: sess.ID, URL: sess.URL}, nil
}

// VerifyPayment asks the provider about a session. A completed session
// always carries a fresh entitlement token.
func (s *Service) VerifyPayment(ctx context.Context, sessionID string) (VerifyResponse, error) {
	if strings.TrimSpace(sessionID) == "" {
		return VerifyResponse{}, ErrSessionIDRequired
	}

	sess, err := s.provider.GetSession(ctx, sessionID)
	if err != nil {
		return VerifyResponse{}, fmt.Errorf("retrieve checkout session: %w", err)
	}

	switch sess.Outcome() {
	case StatusCompleted:
		if err := s.complete(ctx, sess, "verify"); err != nil {
			return VerifyResponse{}, err
		}
		token, _, err := s.tokens.Issue(sessionID, s.emailFor(ctx, sess))
		if err != nil {
			return VerifyResponse{}, fmt.Errorf("issue entitlement: %w", err)
		}
		return VerifyResponse{PaymentStatus: StatusCompleted, EntitlementToken: token}, nil
	case StatusExpired:
		if err := s.registry.SetStatus(ctx, sessionID, StatusExpired); err != nil {
			return VerifyResponse{}, err
		}
		return VerifyResponse{PaymentStatus: StatusExpired}, nil
	}
	return VerifyResponse{PaymentStatus: StatusPending}, nil
}

// HandleWebhook verifies and applies one Stripe event. Unknown event types
// are accepted and ignored.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := VerifyWebhook(payload, signature, s.webhookSecret)
	if err != nil {
		s.logger.Warn("webhook rejected", zap.Error(err))
		return err
	}

	switch string(event.Type) {
	case EventCheckoutSessionCompleted:
		sess, err := decodeCheckoutSession(event)
		if err != nil {
			return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
		}
		return s.complete(ctx, sess, "webhook")
	case EventCustomerSubscriptionCreated:
		s.logger.Info("subscription created", zap.String("event_id", event.ID))
	default:
		s.logger.Debug("webhook ignored", zap.String("type", string(event.Type)))
	}
	return nil
}

func (s *Service) complete(ctx context.Context, sess ProviderSession, source string) error {
	at := s.now()
	newly, err := s.registry.Complete(ctx, sess.ID, sess.CustomerEmail, at)
	if err != nil {
		return err
	}
	if !newly {
		return nil
	}

	email := s.emailFor(ctx, sess)
	s.logger.Info("payment completed",
		zap.String("session_id", sess.ID),
		zap.String("email", email),
		zap.String("source", source))

	if s.events == nil {
		return nil
	}
	event, err := NewEvent(EventPaymentCompleted, PaymentCompleted{
		SessionID:   sess.ID,
		Email:       email,
		CompletedAt: at,
		Source:      source,
	}, at)
	if err != nil {
		return err
	}
	// the session is already recorded as completed; a lost event only
	// costs the receipt email
	if err := s.events.Publish(ctx, sess.ID, event); err != nil {
		s.logger.Error("failed to publish payment event", zap.String("session_id", sess.ID), zap.Error(err))
	}
	return nil
}

func (s *Service) emailFor(ctx context.Context, sess ProviderSession) string {
	if sess.CustomerEmail != "" {
		return sess.CustomerEmail
	}
	rec, ok, err := s.registry.Get(ctx, sess.ID)
	if err != nil || !ok {
		return ""
	}
	return rec.Email
}
