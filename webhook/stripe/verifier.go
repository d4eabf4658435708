// Package stripe verifies Stripe webhooks and turns the events that move
// credits into payment events.
package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/types"
	"github.com/xraph/credits/webhook"
)

// SignatureHeader is the header carrying the Stripe signature.
const SignatureHeader = "Stripe-Signature"

// Verifier authenticates Stripe webhooks.
type Verifier struct {
	secret    string
	sessions  SessionFetcher
	tolerance time.Duration
}

var _ webhook.Verifier = (*Verifier)(nil)

// Option configures a Verifier.
type Option func(*Verifier)

// WithSessionFetcher sets how checkout sessions without inline line items
// are retrieved.
func WithSessionFetcher(f SessionFetcher) Option {
	return func(v *Verifier) { v.sessions = f }
}

// WithTolerance sets how old a signed timestamp may be.
func WithTolerance(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.tolerance = d
		}
	}
}

// New creates a Verifier for the endpoint signing secret.
func New(secret string, opts ...Option) *Verifier {
	v := &Verifier{secret: secret, tolerance: stripewebhook.DefaultTolerance}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Provider returns payment.ProviderStripe.
func (v *Verifier) Provider() payment.Provider { return payment.ProviderStripe }

// Configured reports whether a usable signing secret is set.
func (v *Verifier) Configured() bool { return webhook.Configured(v.secret) }

// Verify checks the signature over the raw body and normalizes the event.
func (v *Verifier) Verify(ctx context.Context, body []byte, header http.Header) (payment.Result, error) {
	if !v.Configured() {
		return payment.Result{}, fmt.Errorf("stripe: %w: webhook signing secret", credits.ErrNotConfigured)
	}

	ev, err := stripewebhook.ConstructEventWithOptions(body, header.Get(SignatureHeader), v.secret,
		stripewebhook.ConstructEventOptions{
			Tolerance:                v.tolerance,
			IgnoreAPIVersionMismatch: true,
		})
	if err != nil {
		return payment.Result{}, fmt.Errorf("stripe: %w: %v", credits.ErrInvalidSignature, err)
	}
	if ev.Data == nil {
		return payment.Result{}, fmt.Errorf("stripe: %w: event %s has no data", credits.ErrMalformedPayload, ev.ID)
	}

	switch ev.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		return v.checkoutCompleted(ctx, ev)
	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		return subscriptionChanged(ev)
	case stripe.EventTypeInvoicePaymentSucceeded:
		return invoicePaid(ev)
	default:
		return payment.Ignore("unhandled event type " + string(ev.Type)), nil
	}
}

func (v *Verifier) checkoutCompleted(ctx context.Context, ev stripe.Event) (payment.Result, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &session); err != nil {
		return payment.Result{}, fmt.Errorf("stripe: %w: checkout session: %v", credits.ErrMalformedPayload, err)
	}
	if session.ClientReferenceID == "" {
		return payment.Result{}, fmt.Errorf("stripe: %w: session %s has no client_reference_id",
			credits.ErrMissingAccountReference, session.ID)
	}
	if session.PaymentStatus != "" &&
		session.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid &&
		session.PaymentStatus != stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
		return payment.Ignore("checkout session " + session.ID + " is " + string(session.PaymentStatus)), nil
	}

	priceID := firstLineItemPrice(session.LineItems)
	if priceID == "" {
		if v.sessions == nil {
			return payment.Result{}, fmt.Errorf("stripe: %w: session %s carries no line items and no API key is set",
				credits.ErrNotConfigured, session.ID)
		}
		full, err := v.sessions.FetchSession(ctx, session.ID)
		if err != nil {
			return payment.Result{}, credits.Unavailable(fmt.Errorf("stripe: fetch session %s: %w", session.ID, err))
		}
		priceID = firstLineItemPrice(full.LineItems)
		if priceID == "" {
			return payment.Result{}, fmt.Errorf("stripe: %w: session %s has no line items", credits.ErrMalformedPayload, session.ID)
		}
	}

	out := &payment.Event{
		EventID:    ev.ID,
		Provider:   payment.ProviderStripe,
		Kind:       payment.KindOneTimePurchase,
		AccountID:  session.ClientReferenceID,
		ProductID:  priceID,
		AmountPaid: centsToAmount(session.AmountTotal),
		ReceivedAt: time.Now().UTC(),
	}
	if session.Customer != nil {
		out.BillingIdentity = session.Customer.ID
	}
	if session.Mode == stripe.CheckoutSessionModeSubscription {
		out.Kind = payment.KindSubscriptionCreated
		if session.Subscription != nil {
			out.Subscription = &account.SubscriptionState{
				SubscriptionID: session.Subscription.ID,
				Status:         account.StatusActive,
				PlanID:         priceID,
			}
		}
	}
	return payment.Apply(out), nil
}

func subscriptionChanged(ev stripe.Event) (payment.Result, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
		return payment.Result{}, fmt.Errorf("stripe: %w: subscription: %v", credits.ErrMalformedPayload, err)
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return payment.Result{}, fmt.Errorf("stripe: %w: subscription %s has no customer",
			credits.ErrMissingAccountReference, sub.ID)
	}

	state := &account.SubscriptionState{
		SubscriptionID: sub.ID,
		Status:         account.Status(sub.Status),
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			state.PlanID = item.Price.ID
		}
		if item.CurrentPeriodEnd > 0 {
			state.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		}
	}

	kind := payment.KindSubscriptionUpdated
	if ev.Type == stripe.EventTypeCustomerSubscriptionDeleted {
		kind = payment.KindSubscriptionCanceled
		state.Status = account.StatusCanceled
	}

	return payment.Apply(&payment.Event{
		EventID:         ev.ID,
		Provider:        payment.ProviderStripe,
		Kind:            kind,
		BillingIdentity: sub.Customer.ID,
		ProductID:       state.PlanID,
		Subscription:    state,
		ReceivedAt:      time.Now().UTC(),
	}), nil
}

// invoicePaid credits recurring renewals. The first invoice of a
// subscription is credited through its checkout session instead.
func invoicePaid(ev stripe.Event) (payment.Result, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(ev.Data.Raw, &inv); err != nil {
		return payment.Result{}, fmt.Errorf("stripe: %w: invoice: %v", credits.ErrMalformedPayload, err)
	}
	if inv.BillingReason != stripe.InvoiceBillingReasonSubscriptionCycle {
		return payment.Ignore("invoice billing reason " + string(inv.BillingReason)), nil
	}
	if inv.Customer == nil || inv.Customer.ID == "" {
		return payment.Result{}, fmt.Errorf("stripe: %w: invoice %s has no customer",
			credits.ErrMissingAccountReference, inv.ID)
	}

	state := &account.SubscriptionState{Status: account.StatusActive}
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil && inv.Parent.SubscriptionDetails.Subscription != nil {
		state.SubscriptionID = inv.Parent.SubscriptionDetails.Subscription.ID
	}
	if inv.Lines != nil && len(inv.Lines.Data) > 0 {
		line := inv.Lines.Data[0]
		if line.Pricing != nil && line.Pricing.PriceDetails != nil {
			state.PlanID = line.Pricing.PriceDetails.Price
		}
		if line.Period != nil && line.Period.End > 0 {
			state.CurrentPeriodEnd = time.Unix(line.Period.End, 0).UTC()
		}
	}
	if state.PlanID == "" {
		return payment.Result{}, fmt.Errorf("stripe: %w: invoice %s has no priced line", credits.ErrMalformedPayload, inv.ID)
	}

	out := &payment.Event{
		EventID:         ev.ID,
		Provider:        payment.ProviderStripe,
		Kind:            payment.KindSubscriptionRenewed,
		BillingIdentity: inv.Customer.ID,
		ProductID:       state.PlanID,
		AmountPaid:      centsToAmount(inv.AmountPaid),
		ReceivedAt:      time.Now().UTC(),
	}
	if state.SubscriptionID != "" {
		out.Subscription = state
	}
	return payment.Apply(out), nil
}

func firstLineItemPrice(items *stripe.LineItemList) string {
	if items == nil || len(items.Data) == 0 {
		return ""
	}
	if p := items.Data[0].Price; p != nil {
		return p.ID
	}
	return ""
}

func centsToAmount(cents int64) types.Amount {
	return types.Amount(cents * (types.AmountScale / 100))
}
