package stripe

import (
	"context"

	stripe "github.com/stripe/stripe-go/v82"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
)

// SessionFetcher retrieves a checkout session with its line items.
type SessionFetcher interface {
	FetchSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error)
}

// APISessionFetcher reads sessions from the Stripe API.
type APISessionFetcher struct {
	client checkoutsession.Client
}

// NewSessionFetcher creates a fetcher authenticated with a secret API key.
func NewSessionFetcher(apiKey string) *APISessionFetcher {
	return &APISessionFetcher{
		client: checkoutsession.Client{B: stripe.GetBackend(stripe.APIBackend), Key: apiKey},
	}
}

// FetchSession gets sessionID with line_items expanded.
func (f *APISessionFetcher) FetchSession(ctx context.Context, sessionID string) (*stripe.CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("line_items")
	return f.client.Get(sessionID, params)
}
