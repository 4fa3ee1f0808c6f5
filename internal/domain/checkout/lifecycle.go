// Package checkout drives the upgrade flow: create an external payment
// session, remember it as the pending checkout, and resolve it exactly once
// when the payment page closes or on the next launch.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/example/clipswift/internal/domain/apperr"
	"github.com/example/clipswift/internal/domain/entitlement"
	"github.com/example/clipswift/internal/infrastructure/store"
	"go.uber.org/zap"
)

type State string

const (
	StateIdle       State = "idle"
	StateInitiating State = "initiating"
	StateAwaiting   State = "awaiting_confirmation"
	StateConfirmed  State = "confirmed"
	StateFailed     State = "failed"
	StateExpired    State = "expired"
)

const (
	// DefaultWindow bounds how long a pending checkout stays resolvable.
	DefaultWindow = 15 * time.Minute
	// DefaultClosedDelay is the wait between the payment page closing and
	// the confirmation request.
	DefaultClosedDelay = 2 * time.Second
)

// Pending is the persisted record of an in-flight payment session.
type Pending struct {
	SessionID string    `json:"sessionId"`
	CreatedAt time.Time `json:"createdAt"`
}

// SessionRequest is sent to the payment backend to open a session.
type SessionRequest struct {
	PriceID       string `json:"priceId"`
	SuccessURL    string `json:"successUrl"`
	CancelURL     string `json:"cancelUrl"`
	CustomerEmail string `json:"customerEmail"`
}

// Session is an opened external payment session.
type Session struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

// Verification is the backend's answer about a session.
type Verification struct {
	PaymentStatus    string `json:"paymentStatus"`
	EntitlementToken string `json:"entitlementToken,omitempty"`
}

// Grant is the backend's reading of a stored entitlement token.
type Grant struct {
	Tier      string    `json:"tier"`
	SessionID string    `json:"sessionId"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Paid reports whether the status confirms the payment.
func (v Verification) Paid() bool {
	switch strings.ToLower(v.PaymentStatus) {
	case "completed", "complete", "paid":
		return true
	}
	return false
}

// Backend opens sessions on the payment service.
type Backend interface {
	Health(ctx context.Context) error
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
}

// Verifier confirms a session's payment status.
type Verifier interface {
	Verify(ctx context.Context, sessionID string) (Verification, error)
}

// Entitlements is the part of the snippet store the lifecycle drives.
type Entitlements interface {
	Tier() entitlement.Tier
	SetTier(ctx context.Context, tier entitlement.Tier) error
}

// Outcome is the terminal result of one resolution attempt. The zero value
// means there was nothing to resolve.
type Outcome struct {
	State         State
	SessionID     string
	PaymentStatus string
	Err           error
}

func (o Outcome) IsNoop() bool { return o.State == "" }

// Message is the feedback line shown to the user.
func (o Outcome) Message() string {
	switch o.State {
	case StateConfirmed:
		return "Upgrade successful! All your snippets are now unlocked."
	case StateExpired:
		return "Your previous checkout expired. Start a new upgrade to try again."
	case StateFailed:
		if o.Err != nil {
			return "Payment could not be confirmed: " + o.Err.Error()
		}
		return "Payment was not completed. You can try again any time."
	}
	return ""
}

// Notifier receives every non-noop outcome.
type Notifier func(Outcome)

type Config struct {
	PriceID     string
	SuccessURL  string
	CancelURL   string
	Window      time.Duration
	ClosedDelay time.Duration
}

type Lifecycle struct {
	cfg          Config
	backend      Backend
	verifier     Verifier
	entitlements Entitlements
	state        store.StateStore
	notify       Notifier
	logger       *zap.Logger
	now          func() time.Time

	mu             sync.Mutex
	current        State
	downgradeArmed bool
}

func NewLifecycle(cfg Config, backend Backend, verifier Verifier, ents Entitlements, state store.StateStore, logger *zap.Logger) *Lifecycle {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.ClosedDelay <= 0 {
		cfg.ClosedDelay = DefaultClosedDelay
	}
	return &Lifecycle{
		cfg:          cfg,
		backend:      backend,
		verifier:     verifier,
		entitlements: ents,
		state:        state,
		logger:       logger,
		now:          time.Now,
		current:      StateIdle,
	}
}

// OnOutcome registers the feedback callback.
func (l *Lifecycle) OnOutcome(n Notifier) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notify = n
}

// SetClock replaces time.Now.
func (l *Lifecycle) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Initiate opens a payment session for email and records it as the pending
// checkout, replacing any earlier one. Nothing is recorded on failure.
func (l *Lifecycle) Initiate(ctx context.Context, email string) (Session, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return Session{}, fmt.Errorf("%w: billing email is required", apperr.ErrValidation)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return Session{}, fmt.Errorf("%w: billing email is not valid", apperr.ErrValidation)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.current = StateInitiating
	l.logger.Info("checkout initiating")

	if err := l.backend.Health(ctx); err != nil {
		return Session{}, l.fail(fmt.Errorf("%w: %v", apperr.ErrServiceUnavailable, err))
	}

	sess, err := l.backend.CreateSession(ctx, SessionRequest{
		PriceID:       l.cfg.PriceID,
		SuccessURL:    l.cfg.SuccessURL,
		CancelURL:     l.cfg.CancelURL,
		CustomerEmail: email,
	})
	if err != nil {
		return Session{}, l.fail(asNetwork(err))
	}

	pending := Pending{SessionID: sess.ID, CreatedAt: l.now().UTC()}
	if err := store.SetJSON(ctx, l.state, map[string]any{store.KeyPendingCheckout: pending}); err != nil {
		return Session{}, l.fail(fmt.Errorf("persist pending checkout: %w", err))
	}

	l.current = StateAwaiting
	l.logger.Info("checkout awaiting confirmation", zap.String("session_id", sess.ID))
	return sess, nil
}

// WatchClosed schedules ExternalClosed once the configured delay has passed.
// The returned function cancels the check if it has not fired yet.
func (l *Lifecycle) WatchClosed(sessionID string, done func(Outcome)) (stop func() bool) {
	t := time.AfterFunc(l.cfg.ClosedDelay, func() {
		out := l.ExternalClosed(context.Background(), sessionID)
		if done != nil {
			done(out)
		}
	})
	return t.Stop
}

// ExternalClosed resolves sessionID after the payment page went away. A
// session that is no longer pending is a no-op.
func (l *Lifecycle) ExternalClosed(ctx context.Context, sessionID string) Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()

	pending, ok, err := l.pending(ctx)
	if err != nil {
		l.logger.Warn("read pending checkout", zap.Error(err))
		return Outcome{}
	}
	if !ok || pending.SessionID != sessionID {
		return Outcome{}
	}
	return l.resolve(ctx, pending)
}

// Launch inspects the pending checkout at startup: an expired one is
// discarded without asking the backend, a fresh one is resolved.
func (l *Lifecycle) Launch(ctx context.Context) Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()

	pending, ok, err := l.pending(ctx)
	if err != nil {
		l.logger.Warn("read pending checkout", zap.Error(err))
		return Outcome{}
	}
	if !ok {
		return Outcome{}
	}

	if age := l.now().Sub(pending.CreatedAt); age > l.cfg.Window {
		l.logger.Info("pending checkout expired",
			zap.String("session_id", pending.SessionID), zap.Duration("age", age))
		if err := l.state.Delete(ctx, store.KeyPendingCheckout); err != nil {
			l.logger.Warn("discard pending checkout", zap.Error(err))
		}
		return l.finish(Outcome{State: StateExpired, SessionID: pending.SessionID})
	}
	return l.resolve(ctx, pending)
}

// resolve asks the verifier about pending and applies the answer. Callers
// hold l.mu.
func (l *Lifecycle) resolve(ctx context.Context, pending Pending) Outcome {
	out := Outcome{SessionID: pending.SessionID}

	v, err := l.verifier.Verify(ctx, pending.SessionID)
	switch {
	case err != nil:
		out.State = StateFailed
		out.Err = asNetwork(err)
	case !v.Paid():
		out.State = StateFailed
		out.PaymentStatus = v.PaymentStatus
	default:
		out.PaymentStatus = v.PaymentStatus
		if err := l.entitlements.SetTier(ctx, entitlement.TierPaid); err != nil {
			// keep the pending checkout so the next launch can retry
			out.State = StateFailed
			out.Err = err
			return l.finish(out)
		}
		out.State = StateConfirmed
		if v.EntitlementToken != "" {
			if err := store.SetJSON(ctx, l.state, map[string]any{store.KeyEntitlementToken: v.EntitlementToken}); err != nil {
				l.logger.Warn("persist entitlement token", zap.Error(err))
			}
		}
	}

	if err := l.state.Delete(ctx, store.KeyPendingCheckout); err != nil {
		l.logger.Warn("delete pending checkout", zap.Error(err))
	}
	return l.finish(out)
}

func (l *Lifecycle) finish(out Outcome) Outcome {
	l.current = out.State
	l.logger.Info("checkout resolved",
		zap.String("state", string(out.State)),
		zap.String("session_id", out.SessionID),
		zap.String("payment_status", out.PaymentStatus),
		zap.Error(out.Err))
	if l.notify != nil {
		l.notify(out)
	}
	l.current = StateIdle
	return out
}

func (l *Lifecycle) fail(err error) error {
	l.finish(Outcome{State: StateFailed, Err: err})
	return err
}

func (l *Lifecycle) pending(ctx context.Context) (Pending, bool, error) {
	var p Pending
	ok, err := store.GetJSON(ctx, l.state, store.KeyPendingCheckout, &p)
	if err != nil || !ok {
		return Pending{}, false, err
	}
	return p, p.SessionID != "", nil
}

// EntitlementToken returns the token stored by the last confirmed checkout.
func (l *Lifecycle) EntitlementToken(ctx context.Context) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var token string
	ok, err := store.GetJSON(ctx, l.state, store.KeyEntitlementToken, &token)
	if err != nil || !ok || token == "" {
		return "", false, err
	}
	return token, true, nil
}

// PendingCheckout returns the current pending checkout, if any.
func (l *Lifecycle) PendingCheckout(ctx context.Context) (Pending, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pending(ctx)
}

const downgradePrompt = "Downgrading to the free tier keeps only your 2 most recently created snippets active. Confirm to continue."

// RequestDowngrade arms the downgrade and returns the confirmation prompt.
func (l *Lifecycle) RequestDowngrade() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.entitlements.Tier().IsPaid() {
		return "", fmt.Errorf("%w: already on the free tier", apperr.ErrValidation)
	}
	l.downgradeArmed = true
	return downgradePrompt, nil
}

// ConfirmDowngrade applies a previously requested downgrade.
func (l *Lifecycle) ConfirmDowngrade(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.downgradeArmed {
		return fmt.Errorf("%w: downgrade was not requested", apperr.ErrValidation)
	}
	l.downgradeArmed = false
	if err := l.entitlements.SetTier(ctx, entitlement.TierFree); err != nil {
		return err
	}
	if err := l.state.Delete(ctx, store.KeyEntitlementToken); err != nil {
		l.logger.Warn("drop entitlement token", zap.Error(err))
	}
	return nil
}

func (l *Lifecycle) CancelDowngrade() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.downgradeArmed = false
}

// RequirePaid gates paid-only features such as content generation.
func RequirePaid(tier entitlement.Tier) error {
	if tier.IsPaid() {
		return nil
	}
	return fmt.Errorf("%w: this feature needs the paid tier", apperr.ErrQuotaExceeded)
}

func asNetwork(err error) error {
	if errors.Is(err, apperr.ErrNetwork) {
		return err
	}
	return fmt.Errorf("%w: %v", apperr.ErrNetwork, err)
}
