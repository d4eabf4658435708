// Package plugin provides an extensible plugin system for credits.
// Plugins can hook into engine lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/grant"
	"github.com/xraph/credits/payment"
	"github.com/xraph/credits/reservation"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnAccountCreated is called after a new account received its signup allotment.
type OnAccountCreated interface {
	Plugin
	OnAccountCreated(ctx context.Context, a *account.Account) error
}

// ──────────────────────────────────────────────────
// Metered action hooks
// ──────────────────────────────────────────────────

// OnCreditsReserved is called once credits have been provisionally debited.
type OnCreditsReserved interface {
	Plugin
	OnCreditsReserved(ctx context.Context, r *reservation.Reservation) error
}

// OnCreditsCommitted is called when the generation succeeded and the debit stands.
type OnCreditsCommitted interface {
	Plugin
	OnCreditsCommitted(ctx context.Context, r *reservation.Reservation, elapsed time.Duration) error
}

// OnCreditsRefunded is called when a failed generation was refunded.
type OnCreditsRefunded interface {
	Plugin
	OnCreditsRefunded(ctx context.Context, r *reservation.Reservation, cause error) error
}

// OnRefundFailed is called when a refund could not be applied. The
// reservation needs operator reconciliation.
type OnRefundFailed interface {
	Plugin
	OnRefundFailed(ctx context.Context, r *reservation.Reservation, cause, refundErr error) error
}

// OnInsufficientCredits is called when an action was refused for lack of balance.
type OnInsufficientCredits interface {
	Plugin
	OnInsufficientCredits(ctx context.Context, accountID string, action reservation.Action, cost int64) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnWebhookReceived is called when a webhook is received, before verification.
type OnWebhookReceived interface {
	Plugin
	OnWebhookReceived(ctx context.Context, provider string, payload []byte) error
}

// OnSignatureRejected is called when a webhook fails verification.
type OnSignatureRejected interface {
	Plugin
	OnSignatureRejected(ctx context.Context, provider string, err error) error
}

// OnPaymentApplied is called after a payment event changed the ledger.
type OnPaymentApplied interface {
	Plugin
	OnPaymentApplied(ctx context.Context, ev *payment.Event) error
}

// OnDuplicateEvent is called when an already processed event is delivered again.
type OnDuplicateEvent interface {
	Plugin
	OnDuplicateEvent(ctx context.Context, ev *payment.Event) error
}

// OnPaymentUnresolved is called when no account could be linked to an event.
type OnPaymentUnresolved interface {
	Plugin
	OnPaymentUnresolved(ctx context.Context, ev *payment.Event) error
}

// ──────────────────────────────────────────────────
// Admin hooks
// ──────────────────────────────────────────────────

// OnAdminGrant is called after an administrator granted credits.
type OnAdminGrant interface {
	Plugin
	OnAdminGrant(ctx context.Context, g *grant.Grant) error
}

// OnGrantDenied is called when a grant was refused before any mutation.
type OnGrantDenied interface {
	Plugin
	OnGrantDenied(ctx context.Context, actorID, accountID string, reason error) error
}
