package payments

import (
	"context"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
)

// StripeGateway captures deferred-method ride fares through Stripe
// PaymentIntents. Cash rides never reach this code.
type StripeGateway struct {
	currency string
}

// NewStripeGateway initializes the stripe client with the given secret key.
func NewStripeGateway(apiKey, currency string) *StripeGateway {
	stripe.Key = apiKey
	if currency == "" {
		currency = "inr"
	}
	return &StripeGateway{currency: currency}
}

// Capture creates and immediately confirms a PaymentIntent for the final
// fare. amount is in the smallest currency unit. Returns the provider's
// order reference.
func (s *StripeGateway) Capture(ctx context.Context, rideID string, amount int64) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(s.currency),
	}
	params.AddMetadata("ride_id", rideID)
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}
