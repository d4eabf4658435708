// Package audithook bridges credit lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit store. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/grant"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/reservation"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnAccountCreated    = (*Extension)(nil)
	_ plugin.OnCreditsRefunded   = (*Extension)(nil)
	_ plugin.OnRefundFailed      = (*Extension)(nil)
	_ plugin.OnSignatureRejected = (*Extension)(nil)
	_ plugin.OnPaymentApplied    = (*Extension)(nil)
	_ plugin.OnDuplicateEvent    = (*Extension)(nil)
	_ plugin.OnPaymentUnresolved = (*Extension)(nil)
	_ plugin.OnAdminGrant        = (*Extension)(nil)
	_ plugin.OnGrantDenied       = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges credit lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnAccountCreated implements plugin.OnAccountCreated.
func (e *Extension) OnAccountCreated(ctx context.Context, a *account.Account) error {
	return e.record(ctx, ActionAccountCreated, SeverityInfo, OutcomeSuccess,
		ResourceAccount, a.ID, CategoryAccount, nil,
		"origin", string(a.Origin),
		"credits", a.Credits,
		"free_actions", a.FreeActions,
	)
}

// ──────────────────────────────────────────────────
// Metered action hooks
// ──────────────────────────────────────────────────

// OnCreditsRefunded implements plugin.OnCreditsRefunded.
func (e *Extension) OnCreditsRefunded(ctx context.Context, r *reservation.Reservation, cause error) error {
	return e.record(ctx, ActionCreditsRefunded, SeverityInfo, OutcomeSuccess,
		ResourceReservation, r.ID.String(), CategoryUsage, cause,
		"account_id", r.AccountID,
		"action", string(r.Action),
		"credits", r.Credits,
		"free_actions", r.FreeActions,
	)
}

// OnRefundFailed implements plugin.OnRefundFailed. The account was
// charged for work it did not receive.
func (e *Extension) OnRefundFailed(ctx context.Context, r *reservation.Reservation, cause, refundErr error) error {
	return e.record(ctx, ActionRefundFailed, SeverityCritical, OutcomeFailure,
		ResourceReservation, r.ID.String(), CategoryUsage, refundErr,
		"account_id", r.AccountID,
		"action", string(r.Action),
		"credits", r.Credits,
		"free_actions", r.FreeActions,
		"cause", errString(cause),
	)
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnSignatureRejected implements plugin.OnSignatureRejected.
func (e *Extension) OnSignatureRejected(ctx context.Context, provider string, err error) error {
	return e.record(ctx, ActionSignatureRejected, SeverityWarning, OutcomeFailure,
		ResourceWebhook, provider, CategorySecurity, err,
		"provider", provider,
	)
}

// OnPaymentApplied implements plugin.OnPaymentApplied.
func (e *Extension) OnPaymentApplied(ctx context.Context, ev *payment.Event) error {
	return e.record(ctx, ActionPaymentApplied, SeverityInfo, OutcomeSuccess,
		ResourcePayment, ev.EventID, CategoryPayment, nil,
		paymentMeta(ev)...,
	)
}

// OnDuplicateEvent implements plugin.OnDuplicateEvent.
func (e *Extension) OnDuplicateEvent(ctx context.Context, ev *payment.Event) error {
	return e.record(ctx, ActionPaymentDuplicate, SeverityInfo, OutcomeSuccess,
		ResourcePayment, ev.EventID, CategoryPayment, nil,
		paymentMeta(ev)...,
	)
}

// OnPaymentUnresolved implements plugin.OnPaymentUnresolved.
func (e *Extension) OnPaymentUnresolved(ctx context.Context, ev *payment.Event) error {
	return e.record(ctx, ActionPaymentUnresolved, SeverityError, OutcomeFailure,
		ResourcePayment, ev.EventID, CategoryPayment, nil,
		paymentMeta(ev)...,
	)
}

// ──────────────────────────────────────────────────
// Admin hooks
// ──────────────────────────────────────────────────

// OnAdminGrant implements plugin.OnAdminGrant.
func (e *Extension) OnAdminGrant(ctx context.Context, g *grant.Grant) error {
	return e.record(ctx, ActionGrantApplied, SeverityInfo, OutcomeSuccess,
		ResourceGrant, g.ID.String(), CategoryAdmin, nil,
		"account_id", g.AccountID,
		"admin_id", g.AdminID,
		"credits", g.Credits,
		"reason", g.Reason,
	)
}

// OnGrantDenied implements plugin.OnGrantDenied.
func (e *Extension) OnGrantDenied(ctx context.Context, actorID, accountID string, reason error) error {
	return e.record(ctx, ActionGrantDenied, SeverityWarning, OutcomeFailure,
		ResourceGrant, "", CategorySecurity, reason,
		"actor_id", actorID,
		"account_id", accountID,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}

func paymentMeta(ev *payment.Event) []any {
	return []any{
		"provider", string(ev.Provider),
		"kind", string(ev.Kind),
		"account_id", ev.AccountID,
		"billing_identity", ev.BillingIdentity,
		"product_id", ev.ProductID,
		"credits", ev.CreditsDelta,
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
