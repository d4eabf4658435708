// Package payment defines the normalized form of a processor callback.
package payment

import (
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/types"
)

// Provider names a payment processor.
type Provider string

const (
	ProviderStripe      Provider = "stripe"
	ProviderNOWPayments Provider = "nowpayments"
)

// Kind classifies a payment event.
type Kind string

const (
	KindOneTimePurchase      Kind = "one_time_purchase"
	KindSubscriptionCreated  Kind = "subscription_created"
	KindSubscriptionUpdated  Kind = "subscription_updated"
	KindSubscriptionRenewed  Kind = "subscription_renewed"
	KindSubscriptionCanceled Kind = "subscription_canceled"
)

// Credits reports whether events of this kind can fund an account.
func (k Kind) Credits() bool {
	switch k {
	case KindOneTimePurchase, KindSubscriptionCreated, KindSubscriptionRenewed:
		return true
	}
	return false
}

// Event is a verified processor callback. AccountID may be empty when the
// processor only knows the BillingIdentity; the engine resolves it.
type Event struct {
	EventID         string                     `json:"event_id"`
	Provider        Provider                   `json:"provider"`
	Kind            Kind                       `json:"kind"`
	AccountID       string                     `json:"account_id,omitempty"`
	BillingIdentity string                     `json:"billing_identity,omitempty"`
	ProductID       string                     `json:"product_id,omitempty"`
	AmountPaid      types.Amount               `json:"amount_paid"`
	CreditsDelta    int64                      `json:"credits_delta"`
	Subscription    *account.SubscriptionState `json:"subscription,omitempty"`
	ReceivedAt      time.Time                  `json:"received_at"`
}

// Result is what a verifier produces: either an Event or a reason the
// callback was acknowledged without effect.
type Result struct {
	Event   *Event `json:"event,omitempty"`
	Ignored bool   `json:"ignored"`
	Reason  string `json:"reason,omitempty"`
}

// Ignore returns a Result acknowledging a callback that carries nothing to
// apply.
func Ignore(reason string) Result {
	return Result{Ignored: true, Reason: reason}
}

// Apply returns a Result carrying ev.
func Apply(ev *Event) Result {
	return Result{Event: ev}
}
