package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/idempotency"
	"github.com/xraph/credits/payment"
)

// PaymentOutcome reports what ApplyPayment did with an event.
type PaymentOutcome struct {
	EventID   string `json:"event_id"`
	AccountID string `json:"account_id"`
	Credits   int64  `json:"credits"`
	Duplicate bool   `json:"duplicate"`
}

// Err returns an error matching ErrDuplicateEvent when the event had
// already been processed, and nil otherwise.
func (o *PaymentOutcome) Err() error {
	if o == nil || !o.Duplicate {
		return nil
	}
	return fmt.Errorf("event %s: %w", o.EventID, ErrDuplicateEvent)
}

// ──────────────────────────────────────────────────
// Payment reconciliation
// ──────────────────────────────────────────────────

// ApplyPayment credits the account named by a verified payment event, at
// most once per event id.
//
// The billing identity and subscription state carried by the event are
// written first, then the event is marked processed, then the balance is
// adjusted. Both writes are set-once or set-state and safe to repeat, so a
// failure before the mark leaves the event retryable. A second delivery of
// a marked event is reported as a duplicate and succeeds without effect.
// When the adjust fails after the mark, the error matches
// ErrStoreUnavailable; a redelivery will then be seen as a duplicate, so
// the failure is logged at error level with the event id for manual
// reconciliation.
//
// Errors:
//   - ErrAccountUnresolved: only a billing identity was known and no account
//     is linked to it. Nothing was marked.
//   - ErrAccountNotFound: the event names an account that does not exist.
//     Nothing was marked.
//   - ErrStoreUnavailable: the store failed.
func (e *Engine) ApplyPayment(ctx context.Context, ev *payment.Event) (*PaymentOutcome, error) {
	if ev == nil || ev.EventID == "" {
		return nil, ValidationError{Field: "event_id", Message: "payment event id is required"}
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now().UTC()
	}

	acct, err := e.resolveAccount(ctx, ev)
	if err != nil {
		if errors.Is(err, ErrAccountUnresolved) {
			e.plugins.EmitPaymentUnresolved(ctx, ev)
			e.logger.Warn("payment event has no linked account",
				"event_id", ev.EventID,
				"provider", ev.Provider,
				"kind", ev.Kind,
				"billing_identity", ev.BillingIdentity,
			)
		}
		return nil, err
	}
	ev.AccountID = acct.ID

	n, known := e.table.Load().Translate(ev.Kind, ev.ProductID, ev.AmountPaid)
	if !known {
		e.logger.Warn("no credits configured for product",
			"event_id", ev.EventID,
			"provider", ev.Provider,
			"product_id", ev.ProductID,
			"amount_paid", ev.AmountPaid.String(),
		)
	}
	ev.CreditsDelta = n

	outcome := &PaymentOutcome{EventID: ev.EventID, AccountID: acct.ID, Credits: n}

	done, err := e.guard.IsProcessed(ctx, ev.EventID)
	if err != nil {
		return nil, Unavailable(err)
	}
	if !done {
		if err := e.linkAccount(ctx, acct, ev); err != nil {
			return nil, err
		}
		err = e.guard.MarkProcessed(ctx, &idempotency.Record{
			EventID:     ev.EventID,
			Provider:    string(ev.Provider),
			AccountID:   acct.ID,
			Credits:     n,
			ProcessedAt: ev.ReceivedAt,
		})
		switch {
		case errors.Is(err, ErrConflict):
			done = true
		case err != nil:
			return nil, Unavailable(err)
		}
	}
	if done {
		outcome.Duplicate = true
		outcome.Credits = 0
		e.plugins.EmitDuplicateEvent(ctx, ev)
		e.logger.Info("duplicate payment event ignored",
			"event_id", ev.EventID,
			"provider", ev.Provider,
			"account_id", acct.ID,
			"reason", outcome.Err(),
		)
		return outcome, nil
	}

	if n > 0 {
		if err := e.store.Adjust(ctx, acct.ID, n, 0); err != nil {
			e.logger.Error("payment event marked but credits not applied",
				"event_id", ev.EventID,
				"provider", ev.Provider,
				"account_id", acct.ID,
				"credits", n,
				"error", err,
			)
			return nil, Unavailable(fmt.Errorf("apply %d credits for %s: %w", n, ev.EventID, err))
		}
	}

	e.plugins.EmitPaymentApplied(ctx, ev)
	e.logger.Info("payment applied",
		"event_id", ev.EventID,
		"provider", ev.Provider,
		"kind", ev.Kind,
		"account_id", acct.ID,
		"credits", n,
	)
	return outcome, nil
}

// resolveAccount finds the account an event pays for.
func (e *Engine) resolveAccount(ctx context.Context, ev *payment.Event) (*account.Account, error) {
	if ev.AccountID != "" {
		a, err := e.store.GetAccount(ctx, ev.AccountID)
		switch {
		case err == nil:
			return a, nil
		case errors.Is(err, ErrAccountNotFound):
			return nil, fmt.Errorf("payment %s: %w", ev.EventID, err)
		default:
			return nil, Unavailable(err)
		}
	}
	if ev.BillingIdentity == "" {
		return nil, fmt.Errorf("payment %s: %w", ev.EventID, ErrMissingAccountReference)
	}
	a, err := e.store.GetAccountByBillingIdentity(ctx, ev.BillingIdentity)
	switch {
	case err == nil:
		return a, nil
	case errors.Is(err, ErrAccountNotFound):
		return nil, fmt.Errorf("payment %s: billing identity %s: %w", ev.EventID, ev.BillingIdentity, ErrAccountUnresolved)
	default:
		return nil, Unavailable(err)
	}
}

// linkAccount records the billing identity and subscription state carried
// by ev.
func (e *Engine) linkAccount(ctx context.Context, acct *account.Account, ev *payment.Event) error {
	if ev.BillingIdentity != "" && acct.BillingIdentity == "" {
		err := e.store.SetBillingIdentity(ctx, acct.ID, ev.BillingIdentity)
		switch {
		case errors.Is(err, ErrConflict):
			// First link wins; the identity belongs to another account.
			e.logger.Warn("billing identity already linked elsewhere",
				"event_id", ev.EventID,
				"account_id", acct.ID,
				"billing_identity", ev.BillingIdentity,
			)
		case err != nil:
			e.logger.Error("failed to link billing identity",
				"event_id", ev.EventID,
				"account_id", acct.ID,
				"billing_identity", ev.BillingIdentity,
				"error", err,
			)
			return Unavailable(fmt.Errorf("link billing identity for %s: %w", ev.EventID, err))
		}
	}
	if ev.Subscription != nil {
		if err := e.store.SetSubscriptionState(ctx, acct.ID, ev.Subscription); err != nil {
			e.logger.Error("failed to record subscription state",
				"event_id", ev.EventID,
				"account_id", acct.ID,
				"subscription_id", ev.Subscription.SubscriptionID,
				"error", err,
			)
			return Unavailable(fmt.Errorf("record subscription state for %s: %w", ev.EventID, err))
		}
	}
	return nil
}
