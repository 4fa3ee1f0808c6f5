package payment

import (
	"encoding/json"
	"fmt"

	"github.com/example/clipswift/internal/domain/apperr"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	EventCheckoutSessionCompleted    = "checkout.session.completed"
	EventCustomerSubscriptionCreated = "customer.subscription.created"
)

// VerifyWebhook checks the Stripe-Signature header against secret and
// decodes the event. Nothing in payload is trusted before this succeeds.
func VerifyWebhook(payload []byte, header, secret string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, header, secret, webhook.ConstructEventOptions{
		// the endpoint reads only a few stable fields
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", apperr.ErrSignatureVerification, err)
	}
	return event, nil
}

func decodeCheckoutSession(event stripe.Event) (ProviderSession, error) {
	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return ProviderSession{}, fmt.Errorf("decode checkout session: %w", err)
	}
	return fromStripe(&s), nil
}
