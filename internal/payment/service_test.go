package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/example/clipswift/internal/auth"
	"github.com/example/clipswift/internal/domain/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testWebhookSecret = "whsec_test"

// ============================================
// Test doubles
// ============================================

type fakeProvider struct {
	mu       sync.Mutex
	sessions map[string]ProviderSession
	created  []SessionParams
	err      error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{sessions: make(map[string]ProviderSession)}
}

func (f *fakeProvider) CreateSession(ctx context.Context, p SessionParams) (ProviderSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return ProviderSession{}, f.err
	}
	f.created = append(f.created, p)
	id := fmt.Sprintf("cs_test_%d", len(f.created))
	s := ProviderSession{ID: id, URL: "https://checkout.stripe.com/c/pay/" + id, Status: "open", PaymentStatus: "unpaid"}
	f.sessions[id] = s
	return s, nil
}

func (f *fakeProvider) GetSession(ctx context.Context, id string) (ProviderSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return ProviderSession{}, f.err
	}
	s, ok := f.sessions[id]
	if !ok {
		return ProviderSession{}, errors.New("no such checkout session")
	}
	return s, nil
}

func (f *fakeProvider) set(s ProviderSession) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = s
}

type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	events []Event
}

func (p *recordingPublisher) Publish(ctx context.Context, key string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.events = append(p.events, payload.(Event))
	return nil
}

type fixture struct {
	svc      *Service
	provider *fakeProvider
	registry *MemoryRegistry
	events   *recordingPublisher
	tokens   *auth.TokenService
}

func newFixture() fixture {
	f := fixture{
		provider: newFakeProvider(),
		registry: NewMemoryRegistry(),
		events:   &recordingPublisher{},
		tokens:   auth.NewTokenService("a-test-secret-that-is-at-least-32-chars", time.Hour),
	}
	f.svc = NewService(f.provider, f.registry, f.tokens, f.events, testWebhookSecret, zap.NewNop())
	return f
}

func validRequest() CheckoutRequest {
	return CheckoutRequest{
		PriceID:       "price_123",
		SuccessURL:    "https://example.com/success",
		CancelURL:     "https://example.com/cancel",
		CustomerEmail: "ann@example.com",
	}
}

func sign(t *testing.T, payload []byte, secret string, at time.Time) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func webhookPayload(t *testing.T, eventType string, object map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"id":     "evt_1",
		"object": "event",
		"type":   eventType,
		"data":   map[string]any{"object": object},
	})
	require.NoError(t, err)
	return data
}

// ============================================
// CreateCheckoutSession Tests
// ============================================

func TestCreateCheckoutSession_Success(t *testing.T) {
	f := newFixture()

	resp, err := f.svc.CreateCheckoutSession(context.Background(), validRequest())

	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", resp.SessionID)
	assert.Contains(t, resp.URL, "cs_test_1")
	require.Len(t, f.provider.created, 1)
	assert.Equal(t, "price_123", f.provider.created[0].PriceID)

	rec, ok, err := f.registry.Get(context.Background(), "cs_test_1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, "ann@example.com", rec.Email)
}

func TestCreateCheckoutSession_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CheckoutRequest)
	}{
		{"missing price", func(r *CheckoutRequest) { r.PriceID = "" }},
		{"missing success url", func(r *CheckoutRequest) { r.SuccessURL = " " }},
		{"missing cancel url", func(r *CheckoutRequest) { r.CancelURL = "" }},
		{"bad email", func(r *CheckoutRequest) { r.CustomerEmail = "not-an-email" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			req := validRequest()
			tt.mutate(&req)

			_, err := f.svc.CreateCheckoutSession(context.Background(), req)

			assert.ErrorIs(t, err, apperr.ErrValidation)
			assert.Empty(t, f.provider.created)
		})
	}
}

func TestCreateCheckoutSession_ProviderFailure(t *testing.T) {
	f := newFixture()
	f.provider.err = errors.New("stripe down")

	_, err := f.svc.CreateCheckoutSession(context.Background(), validRequest())

	require.Error(t, err)
	assert.NotErrorIs(t, err, apperr.ErrValidation)
}

// ============================================
// VerifyPayment Tests
// ============================================

func TestVerifyPayment_RequiresSessionID(t *testing.T) {
	f := newFixture()

	_, err := f.svc.VerifyPayment(context.Background(), "")

	assert.ErrorIs(t, err, ErrSessionIDRequired)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestVerifyPayment_Pending(t *testing.T) {
	f := newFixture()
	resp, err := f.svc.CreateCheckoutSession(context.Background(), validRequest())
	require.NoError(t, err)

	got, err := f.svc.VerifyPayment(context.Background(), resp.SessionID)

	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.PaymentStatus)
	assert.Empty(t, got.EntitlementToken)
	assert.Empty(t, f.events.events)
}

func TestVerifyPayment_PaidIssuesToken(t *testing.T) {
	f := newFixture()
	resp, err := f.svc.CreateCheckoutSession(context.Background(), validRequest())
	require.NoError(t, err)
	f.provider.set(ProviderSession{ID: resp.SessionID, PaymentStatus: "paid", Status: "complete"})

	got, err := f.svc.VerifyPayment(context.Background(), resp.SessionID)

	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.PaymentStatus)
	claims, err := f.tokens.Validate(got.EntitlementToken)
	require.NoError(t, err)
	assert.Equal(t, resp.SessionID, claims.SessionID)
	assert.Equal(t, "ann@example.com", claims.Email)
	assert.Equal(t, "paid", claims.Tier)

	rec, _, _ := f.registry.Get(context.Background(), resp.SessionID)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.NotNil(t, rec.CompletedAt)
}

func TestVerifyPayment_PublishesOnce(t *testing.T) {
	f := newFixture()
	resp, err := f.svc.CreateCheckoutSession(context.Background(), validRequest())
	require.NoError(t, err)
	f.provider.set(ProviderSession{ID: resp.SessionID, PaymentStatus: "paid", Status: "complete"})

	for i := 0; i < 3; i++ {
		got, err := f.svc.VerifyPayment(context.Background(), resp.SessionID)
		require.NoError(t, err)
		assert.NotEmpty(t, got.EntitlementToken)
	}

	require.Len(t, f.events.events, 1)
	assert.Equal(t, resp.SessionID, f.events.keys[0])
	assert.Equal(t, EventPaymentCompleted, f.events.events[0].Type)

	var data PaymentCompleted
	require.NoError(t, json.Unmarshal(f.events.events[0].Data, &data))
	assert.Equal(t, "verify", data.Source)
	assert.Equal(t, "ann@example.com", data.Email)
}

func TestVerifyPayment_Expired(t *testing.T) {
	f := newFixture()
	resp, err := f.svc.CreateCheckoutSession(context.Background(), validRequest())
	require.NoError(t, err)
	f.provider.set(ProviderSession{ID: resp.SessionID, PaymentStatus: "unpaid", Status: "expired"})

	got, err := f.svc.VerifyPayment(context.Background(), resp.SessionID)

	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.PaymentStatus)
	rec, _, _ := f.registry.Get(context.Background(), resp.SessionID)
	assert.Equal(t, StatusExpired, rec.Status)
}

func TestVerifyPayment_ProviderFailure(t *testing.T) {
	f := newFixture()

	_, err := f.svc.VerifyPayment(context.Background(), "cs_unknown")

	require.Error(t, err)
	assert.NotErrorIs(t, err, apperr.ErrValidation)
}

// ============================================
// HandleWebhook Tests
// ============================================

func TestHandleWebhook_BadSignature(t *testing.T) {
	f := newFixture()
	payload := webhookPayload(t, EventCheckoutSessionCompleted, map[string]any{"id": "cs_1"})

	err := f.svc.HandleWebhook(context.Background(), payload, sign(t, payload, "whsec_other", time.Now()))

	assert.ErrorIs(t, err, apperr.ErrSignatureVerification)
	_, ok, _ := f.registry.Get(context.Background(), "cs_1")
	assert.False(t, ok)
}

func TestHandleWebhook_MissingSignature(t *testing.T) {
	f := newFixture()
	payload := webhookPayload(t, EventCheckoutSessionCompleted, map[string]any{"id": "cs_1"})

	err := f.svc.HandleWebhook(context.Background(), payload, "")

	assert.ErrorIs(t, err, apperr.ErrSignatureVerification)
}

func TestHandleWebhook_CheckoutCompleted(t *testing.T) {
	f := newFixture()
	resp, err := f.svc.CreateCheckoutSession(context.Background(), validRequest())
	require.NoError(t, err)
	payload := webhookPayload(t, EventCheckoutSessionCompleted, map[string]any{
		"id":             resp.SessionID,
		"object":         "checkout.session",
		"payment_status": "paid",
		"status":         "complete",
		"customer_email": "ann@example.com",
	})

	err = f.svc.HandleWebhook(context.Background(), payload, sign(t, payload, testWebhookSecret, time.Now()))

	require.NoError(t, err)
	rec, ok, _ := f.registry.Get(context.Background(), resp.SessionID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, rec.Status)
	require.Len(t, f.events.events, 1)

	// a later verify sees the completion and does not publish again
	f.provider.set(ProviderSession{ID: resp.SessionID, PaymentStatus: "paid", Status: "complete"})
	got, err := f.svc.VerifyPayment(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.PaymentStatus)
	assert.Len(t, f.events.events, 1)
}

func TestHandleWebhook_UnknownSession(t *testing.T) {
	f := newFixture()
	payload := webhookPayload(t, EventCheckoutSessionCompleted, map[string]any{
		"id":             "cs_elsewhere",
		"object":         "checkout.session",
		"customer_email": "bob@example.com",
	})

	err := f.svc.HandleWebhook(context.Background(), payload, sign(t, payload, testWebhookSecret, time.Now()))

	require.NoError(t, err)
	rec, ok, _ := f.registry.Get(context.Background(), "cs_elsewhere")
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, "bob@example.com", rec.Email)
}

func TestHandleWebhook_OtherEventsAccepted(t *testing.T) {
	f := newFixture()
	for _, typ := range []string{EventCustomerSubscriptionCreated, "invoice.paid"} {
		payload := webhookPayload(t, typ, map[string]any{"id": "sub_1"})

		err := f.svc.HandleWebhook(context.Background(), payload, sign(t, payload, testWebhookSecret, time.Now()))

		assert.NoError(t, err, typ)
	}
	assert.Empty(t, f.events.events)
}

func TestHandleWebhook_StaleTimestamp(t *testing.T) {
	f := newFixture()
	payload := webhookPayload(t, EventCheckoutSessionCompleted, map[string]any{"id": "cs_1"})

	err := f.svc.HandleWebhook(context.Background(), payload, sign(t, payload, testWebhookSecret, time.Now().Add(-time.Hour)))

	assert.ErrorIs(t, err, apperr.ErrSignatureVerification)
}

// ============================================
// Registry Tests
// ============================================

func TestMemoryRegistry_CompleteOnce(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, r.Create(ctx, Record{SessionID: "cs_1", Email: "a@example.com", Status: StatusPending, CreatedAt: at}))

	first, err := r.Complete(ctx, "cs_1", "", at.Add(time.Minute))
	require.NoError(t, err)
	second, err := r.Complete(ctx, "cs_1", "b@example.com", at.Add(2*time.Minute))
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)
	rec, _, _ := r.Get(ctx, "cs_1")
	assert.Equal(t, "a@example.com", rec.Email)
	assert.True(t, at.Add(time.Minute).Equal(*rec.CompletedAt))
}

func TestMemoryRegistry_CompletedIsFinal(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()
	_, err := r.Complete(ctx, "cs_1", "a@example.com", time.Now())
	require.NoError(t, err)

	require.NoError(t, r.SetStatus(ctx, "cs_1", StatusExpired))

	rec, _, _ := r.Get(ctx, "cs_1")
	assert.Equal(t, StatusCompleted, rec.Status)
}

func TestProviderSession_Outcome(t *testing.T) {
	tests := []struct {
		session ProviderSession
		want    string
	}{
		{ProviderSession{PaymentStatus: "paid", Status: "complete"}, StatusCompleted},
		{ProviderSession{PaymentStatus: "paid", Status: "open"}, StatusCompleted},
		{ProviderSession{PaymentStatus: "no_payment_required", Status: "complete"}, StatusCompleted},
		{ProviderSession{PaymentStatus: "unpaid", Status: "expired"}, StatusExpired},
		{ProviderSession{PaymentStatus: "unpaid", Status: "open"}, StatusPending},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.session.Outcome(), "%+v", tt.session)
	}
}
