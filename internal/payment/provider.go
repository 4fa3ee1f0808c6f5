package payment

import (
	"context"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// SessionParams describes the checkout the customer is sent to.
type SessionParams struct {
	PriceID       string
	SuccessURL    string
	CancelURL     string
	CustomerEmail string
}

// ProviderSession is the provider's view of a checkout session.
type ProviderSession struct {
	ID            string
	URL           string
	PaymentStatus string
	Status        string
	CustomerEmail string
}

// Provider opens and inspects checkout sessions.
type Provider interface {
	CreateSession(ctx context.Context, p SessionParams) (ProviderSession, error)
	GetSession(ctx context.Context, id string) (ProviderSession, error)
}

const productName = "ClipSwift Premium"

// StripeProvider is a Provider backed by Stripe Checkout.
type StripeProvider struct {
	api *client.API
}

func NewStripeProvider(secretKey string) *StripeProvider {
	return &StripeProvider{api: client.New(secretKey, nil)}
}

func (p *StripeProvider) CreateSession(ctx context.Context, sp SessionParams) (ProviderSession, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(sp.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Mode:          stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:    stripe.String(sp.SuccessURL),
		CancelURL:     stripe.String(sp.CancelURL),
		CustomerEmail: stripe.String(sp.CustomerEmail),
	}
	params.Context = ctx
	params.AddMetadata("product", productName)
	params.AddMetadata("customerEmail", sp.CustomerEmail)

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return ProviderSession{}, err
	}
	return fromStripe(s), nil
}

func (p *StripeProvider) GetSession(ctx context.Context, id string) (ProviderSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := p.api.CheckoutSessions.Get(id, params)
	if err != nil {
		return ProviderSession{}, err
	}
	return fromStripe(s), nil
}

func fromStripe(s *stripe.CheckoutSession) ProviderSession {
	email := s.CustomerEmail
	if email == "" && s.CustomerDetails != nil {
		email = s.CustomerDetails.Email
	}
	return ProviderSession{
		ID:            s.ID,
		URL:           s.URL,
		PaymentStatus: string(s.PaymentStatus),
		Status:        string(s.Status),
		CustomerEmail: email,
	}
}

// Outcome collapses a provider session into completed, pending or expired.
func (s ProviderSession) Outcome() string {
	switch {
	case s.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusPaid),
		s.Status == string(stripe.CheckoutSessionStatusComplete):
		return StatusCompleted
	case s.Status == string(stripe.CheckoutSessionStatusExpired):
		return StatusExpired
	}
	return StatusPending
}
