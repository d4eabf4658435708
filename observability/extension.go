// Package observability provides a metrics plugin for the credits engine
// that records lifecycle event counts via a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/grant"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/reservation"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnAccountCreated      = (*MetricsExtension)(nil)
	_ plugin.OnCreditsReserved     = (*MetricsExtension)(nil)
	_ plugin.OnCreditsCommitted    = (*MetricsExtension)(nil)
	_ plugin.OnCreditsRefunded     = (*MetricsExtension)(nil)
	_ plugin.OnRefundFailed        = (*MetricsExtension)(nil)
	_ plugin.OnInsufficientCredits = (*MetricsExtension)(nil)
	_ plugin.OnWebhookReceived     = (*MetricsExtension)(nil)
	_ plugin.OnSignatureRejected   = (*MetricsExtension)(nil)
	_ plugin.OnPaymentApplied      = (*MetricsExtension)(nil)
	_ plugin.OnDuplicateEvent      = (*MetricsExtension)(nil)
	_ plugin.OnPaymentUnresolved   = (*MetricsExtension)(nil)
	_ plugin.OnAdminGrant          = (*MetricsExtension)(nil)
	_ plugin.OnGrantDenied         = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide credit metrics.
// Register it as an engine plugin to track spending and purchases.
type MetricsExtension struct {
	// Account metrics
	AccountsCreated Counter
	SignupCredits   Counter

	// Metered action metrics
	ActionsReserved     Counter
	ActionsCommitted    Counter
	ActionsRefunded     Counter
	RefundFailures      Counter
	InsufficientCredits Counter
	CreditsSpent        Counter
	FreeActionsSpent    Counter
	CreditsRefunded     Counter
	GenerationLatency   Histogram

	// Payment metrics
	WebhookReceived    Counter
	SignatureRejected  Counter
	PaymentsApplied    Counter
	DuplicateEvents    Counter
	UnresolvedPayments Counter
	CreditsPurchased   Counter

	// Admin metrics
	GrantsApplied Counter
	GrantsDenied  Counter
	CreditsGrant  Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		AccountsCreated: factory.Counter("credits.account.created"),
		SignupCredits:   factory.Counter("credits.account.signup_credits"),

		ActionsReserved:     factory.Counter("credits.action.reserved"),
		ActionsCommitted:    factory.Counter("credits.action.committed"),
		ActionsRefunded:     factory.Counter("credits.action.refunded"),
		RefundFailures:      factory.Counter("credits.action.refund_failed"),
		InsufficientCredits: factory.Counter("credits.action.insufficient"),
		CreditsSpent:        factory.Counter("credits.action.credits_spent"),
		FreeActionsSpent:    factory.Counter("credits.action.free_spent"),
		CreditsRefunded:     factory.Counter("credits.action.credits_refunded"),
		GenerationLatency:   factory.Histogram("credits.action.latency_ms"),

		WebhookReceived:    factory.Counter("credits.webhook.received"),
		SignatureRejected:  factory.Counter("credits.webhook.signature_rejected"),
		PaymentsApplied:    factory.Counter("credits.payment.applied"),
		DuplicateEvents:    factory.Counter("credits.payment.duplicate"),
		UnresolvedPayments: factory.Counter("credits.payment.unresolved"),
		CreditsPurchased:   factory.Counter("credits.payment.credits"),

		GrantsApplied: factory.Counter("credits.grant.applied"),
		GrantsDenied:  factory.Counter("credits.grant.denied"),
		CreditsGrant:  factory.Counter("credits.grant.credits"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnAccountCreated implements plugin.OnAccountCreated.
func (m *MetricsExtension) OnAccountCreated(_ context.Context, a *account.Account) error {
	m.AccountsCreated.Inc()
	m.SignupCredits.Add(float64(a.Credits))
	return nil
}

// ──────────────────────────────────────────────────
// Metered action hooks
// ──────────────────────────────────────────────────

// OnCreditsReserved implements plugin.OnCreditsReserved.
func (m *MetricsExtension) OnCreditsReserved(_ context.Context, _ *reservation.Reservation) error {
	m.ActionsReserved.Inc()
	return nil
}

// OnCreditsCommitted implements plugin.OnCreditsCommitted.
func (m *MetricsExtension) OnCreditsCommitted(_ context.Context, r *reservation.Reservation, elapsed time.Duration) error {
	m.ActionsCommitted.Inc()
	m.CreditsSpent.Add(float64(r.Credits))
	m.FreeActionsSpent.Add(float64(r.FreeActions))
	m.GenerationLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}

// OnCreditsRefunded implements plugin.OnCreditsRefunded.
func (m *MetricsExtension) OnCreditsRefunded(_ context.Context, r *reservation.Reservation, _ error) error {
	m.ActionsRefunded.Inc()
	m.CreditsRefunded.Add(float64(r.Credits))
	return nil
}

// OnRefundFailed implements plugin.OnRefundFailed.
func (m *MetricsExtension) OnRefundFailed(_ context.Context, _ *reservation.Reservation, _, _ error) error {
	m.RefundFailures.Inc()
	return nil
}

// OnInsufficientCredits implements plugin.OnInsufficientCredits.
func (m *MetricsExtension) OnInsufficientCredits(_ context.Context, _ string, _ reservation.Action, _ int64) error {
	m.InsufficientCredits.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnWebhookReceived implements plugin.OnWebhookReceived.
func (m *MetricsExtension) OnWebhookReceived(_ context.Context, _ string, _ []byte) error {
	m.WebhookReceived.Inc()
	return nil
}

// OnSignatureRejected implements plugin.OnSignatureRejected.
func (m *MetricsExtension) OnSignatureRejected(_ context.Context, _ string, _ error) error {
	m.SignatureRejected.Inc()
	return nil
}

// OnPaymentApplied implements plugin.OnPaymentApplied.
func (m *MetricsExtension) OnPaymentApplied(_ context.Context, ev *payment.Event) error {
	m.PaymentsApplied.Inc()
	m.CreditsPurchased.Add(float64(ev.CreditsDelta))
	return nil
}

// OnDuplicateEvent implements plugin.OnDuplicateEvent.
func (m *MetricsExtension) OnDuplicateEvent(_ context.Context, _ *payment.Event) error {
	m.DuplicateEvents.Inc()
	return nil
}

// OnPaymentUnresolved implements plugin.OnPaymentUnresolved.
func (m *MetricsExtension) OnPaymentUnresolved(_ context.Context, _ *payment.Event) error {
	m.UnresolvedPayments.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Admin hooks
// ──────────────────────────────────────────────────

// OnAdminGrant implements plugin.OnAdminGrant.
func (m *MetricsExtension) OnAdminGrant(_ context.Context, g *grant.Grant) error {
	m.GrantsApplied.Inc()
	m.CreditsGrant.Add(float64(g.Credits))
	return nil
}

// OnGrantDenied implements plugin.OnGrantDenied.
func (m *MetricsExtension) OnGrantDenied(_ context.Context, _, _ string, _ error) error {
	m.GrantsDenied.Inc()
	return nil
}
