package stripe_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripeapi "github.com/stripe/stripe-go/v82"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/webhook/stripe"
)

const secret = "whsec_test_secret"

func signed(t *testing.T, body string) ([]byte, http.Header) {
	t.Helper()
	p := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload: []byte(body),
		Secret:  secret,
	})
	h := http.Header{}
	h.Set(stripe.SignatureHeader, p.Header)
	return p.Payload, h
}

const checkoutPaid = `{
  "id": "evt_checkout_1",
  "object": "event",
  "type": "checkout.session.completed",
  "data": {"object": {
    "id": "cs_1",
    "object": "checkout.session",
    "client_reference_id": "user_1",
    "customer": "cus_1",
    "mode": "payment",
    "payment_status": "paid",
    "amount_total": 1000,
    "line_items": {"object": "list", "data": [{"id": "li_1", "price": {"id": "price_starter"}}]}
  }}
}`

type fakeFetcher struct {
	session *stripeapi.CheckoutSession
	err     error
	calls   int
}

func (f *fakeFetcher) FetchSession(_ context.Context, _ string) (*stripeapi.CheckoutSession, error) {
	f.calls++
	return f.session, f.err
}

func TestCheckoutCompleted(t *testing.T) {
	v := stripe.New(secret)
	body, h := signed(t, checkoutPaid)

	res, err := v.Verify(context.Background(), body, h)
	require.NoError(t, err)
	require.False(t, res.Ignored)

	ev := res.Event
	assert.Equal(t, "evt_checkout_1", ev.EventID)
	assert.Equal(t, payment.ProviderStripe, ev.Provider)
	assert.Equal(t, payment.KindOneTimePurchase, ev.Kind)
	assert.Equal(t, "user_1", ev.AccountID)
	assert.Equal(t, "cus_1", ev.BillingIdentity)
	assert.Equal(t, "price_starter", ev.ProductID)
	assert.Equal(t, "10.00000000", ev.AmountPaid.String())
}

func TestRejectsBadSignature(t *testing.T) {
	v := stripe.New(secret)
	body, h := signed(t, checkoutPaid)

	tampered := append([]byte{}, body...)
	tampered[len(tampered)-2] = ' '
	_, err := v.Verify(context.Background(), tampered, h)
	require.ErrorIs(t, err, credits.ErrInvalidSignature)

	_, err = v.Verify(context.Background(), body, http.Header{})
	require.ErrorIs(t, err, credits.ErrInvalidSignature)

	other := stripe.New("whsec_other")
	_, err = other.Verify(context.Background(), body, h)
	require.ErrorIs(t, err, credits.ErrInvalidSignature)
}

func TestUnconfigured(t *testing.T) {
	for _, s := range []string{"", "whsec_..."} {
		v := stripe.New(s)
		assert.False(t, v.Configured())
		_, err := v.Verify(context.Background(), []byte(`{}`), http.Header{})
		require.ErrorIs(t, err, credits.ErrNotConfigured)
	}
}

func TestCheckoutMissingReference(t *testing.T) {
	body, h := signed(t, `{
  "id": "evt_2", "object": "event", "type": "checkout.session.completed",
  "data": {"object": {"id": "cs_2", "object": "checkout.session", "payment_status": "paid",
    "line_items": {"object": "list", "data": [{"id": "li", "price": {"id": "price_pro"}}]}}}
}`)
	_, err := stripe.New(secret).Verify(context.Background(), body, h)
	require.ErrorIs(t, err, credits.ErrMissingAccountReference)
}

func TestCheckoutFetchesLineItems(t *testing.T) {
	body, h := signed(t, `{
  "id": "evt_3", "object": "event", "type": "checkout.session.completed",
  "data": {"object": {"id": "cs_3", "object": "checkout.session", "client_reference_id": "user_3",
    "mode": "subscription", "payment_status": "paid", "subscription": "sub_3"}}
}`)
	f := &fakeFetcher{session: &stripeapi.CheckoutSession{
		ID: "cs_3",
		LineItems: &stripeapi.LineItemList{Data: []*stripeapi.LineItem{
			{Price: &stripeapi.Price{ID: "price_pro"}},
		}},
	}}

	res, err := stripe.New(secret, stripe.WithSessionFetcher(f)).Verify(context.Background(), body, h)
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls)
	assert.Equal(t, "price_pro", res.Event.ProductID)
	assert.Equal(t, payment.KindSubscriptionCreated, res.Event.Kind)
	require.NotNil(t, res.Event.Subscription)
	assert.Equal(t, "sub_3", res.Event.Subscription.SubscriptionID)
	assert.Equal(t, account.StatusActive, res.Event.Subscription.Status)
}

func TestCheckoutFetchFailureIsRetryable(t *testing.T) {
	body, h := signed(t, `{
  "id": "evt_4", "object": "event", "type": "checkout.session.completed",
  "data": {"object": {"id": "cs_4", "object": "checkout.session", "client_reference_id": "user_4", "payment_status": "paid"}}
}`)
	f := &fakeFetcher{err: errors.New("api down")}
	_, err := stripe.New(secret, stripe.WithSessionFetcher(f)).Verify(context.Background(), body, h)
	require.ErrorIs(t, err, credits.ErrStoreUnavailable)
}

func TestCheckoutUnpaidIgnored(t *testing.T) {
	body, h := signed(t, `{
  "id": "evt_5", "object": "event", "type": "checkout.session.completed",
  "data": {"object": {"id": "cs_5", "object": "checkout.session", "client_reference_id": "user_5", "payment_status": "unpaid"}}
}`)
	res, err := stripe.New(secret).Verify(context.Background(), body, h)
	require.NoError(t, err)
	assert.True(t, res.Ignored)
}

func TestRenewalInvoice(t *testing.T) {
	body, h := signed(t, `{
  "id": "evt_inv", "object": "event", "type": "invoice.payment_succeeded",
  "data": {"object": {
    "id": "in_1", "object": "invoice", "customer": "cus_9", "billing_reason": "subscription_cycle", "amount_paid": 2500,
    "parent": {"type": "subscription_details", "subscription_details": {"subscription": "sub_9"}},
    "lines": {"object": "list", "data": [{"id": "il_1", "object": "line_item",
      "period": {"start": 1700000000, "end": 1702592000},
      "pricing": {"type": "price_details", "price_details": {"price": "price_pro", "product": "prod_1"}}}]}
  }}
}`)
	res, err := stripe.New(secret).Verify(context.Background(), body, h)
	require.NoError(t, err)
	require.False(t, res.Ignored)

	ev := res.Event
	assert.Equal(t, payment.KindSubscriptionRenewed, ev.Kind)
	assert.Empty(t, ev.AccountID)
	assert.Equal(t, "cus_9", ev.BillingIdentity)
	assert.Equal(t, "price_pro", ev.ProductID)
	require.NotNil(t, ev.Subscription)
	assert.Equal(t, "sub_9", ev.Subscription.SubscriptionID)
	assert.Equal(t, int64(1702592000), ev.Subscription.CurrentPeriodEnd.Unix())
}

func TestFirstInvoiceIgnored(t *testing.T) {
	body, h := signed(t, `{
  "id": "evt_inv0", "object": "event", "type": "invoice.payment_succeeded",
  "data": {"object": {"id": "in_0", "object": "invoice", "customer": "cus_9", "billing_reason": "subscription_create"}}
}`)
	res, err := stripe.New(secret).Verify(context.Background(), body, h)
	require.NoError(t, err)
	assert.True(t, res.Ignored)
}

func TestSubscriptionDeleted(t *testing.T) {
	body, h := signed(t, `{
  "id": "evt_del", "object": "event", "type": "customer.subscription.deleted",
  "data": {"object": {"id": "sub_9", "object": "subscription", "customer": "cus_9", "status": "canceled",
    "items": {"object": "list", "data": [{"id": "si_1", "price": {"id": "price_pro"}, "current_period_end": 1702592000}]}}}
}`)
	res, err := stripe.New(secret).Verify(context.Background(), body, h)
	require.NoError(t, err)

	ev := res.Event
	assert.Equal(t, payment.KindSubscriptionCanceled, ev.Kind)
	assert.Equal(t, account.StatusCanceled, ev.Subscription.Status)
	assert.Equal(t, "price_pro", ev.Subscription.PlanID)
}

func TestUnhandledEventIgnored(t *testing.T) {
	body, h := signed(t, `{"id": "evt_x", "object": "event", "type": "charge.refunded", "data": {"object": {"id": "ch_1"}}}`)
	res, err := stripe.New(secret).Verify(context.Background(), body, h)
	require.NoError(t, err)
	assert.True(t, res.Ignored)
	assert.Contains(t, res.Reason, "charge.refunded")
}
