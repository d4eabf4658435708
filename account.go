package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/grant"
	"github.com/xraph/credits/reservation"
	"github.com/xraph/credits/types"
)

// ──────────────────────────────────────────────────
// Account Management
// ──────────────────────────────────────────────────

// EnsureAccount returns the account for accountID, creating it with the
// signup allotment for origin when it does not exist yet. An existing
// account is returned unchanged. created reports whether this call made it.
func (e *Engine) EnsureAccount(ctx context.Context, accountID string, origin account.Origin) (a *account.Account, created bool, err error) {
	if accountID == "" {
		return nil, false, ValidationError{Field: "id", Message: "account id is required"}
	}
	if origin == "" {
		origin = account.OriginEmail
	}
	if !origin.Valid() {
		return nil, false, ValidationError{Field: "origin", Message: fmt.Sprintf("unknown origin %q", origin)}
	}

	existing, err := e.store.GetAccount(ctx, accountID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, false, Unavailable(err)
	}

	allot := e.allotments[origin]
	a = &account.Account{
		Entity:      types.NewEntity(),
		ID:          accountID,
		Credits:     allot.Credits,
		FreeActions: allot.FreeActions,
		Origin:      origin,
	}
	if err := e.store.CreateAccount(ctx, a); err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			// Lost a creation race; the winner's record stands.
			existing, getErr := e.store.GetAccount(ctx, accountID)
			if getErr != nil {
				return nil, false, Unavailable(getErr)
			}
			return existing, false, nil
		}
		return nil, false, Unavailable(err)
	}

	e.plugins.EmitAccountCreated(ctx, a)
	e.logger.Info("account created",
		"account_id", accountID,
		"origin", origin,
		"credits", a.Credits,
		"free_actions", a.FreeActions,
	)
	return a, true, nil
}

// GetAccount retrieves an account by ID.
func (e *Engine) GetAccount(ctx context.Context, accountID string) (*account.Account, error) {
	return e.store.GetAccount(ctx, accountID)
}

// Balance returns the spendable counters of an account.
func (e *Engine) Balance(ctx context.Context, accountID string) (account.Balance, error) {
	return e.store.ReadBalance(ctx, accountID)
}

// SetAdmin grants or revokes administrator rights. It is an operator
// action and is not exposed over HTTP.
func (e *Engine) SetAdmin(ctx context.Context, accountID string, isAdmin bool) error {
	if err := e.store.SetAdmin(ctx, accountID, isAdmin); err != nil {
		return err
	}
	e.logger.Warn("account admin flag changed",
		"account_id", accountID,
		"is_admin", isAdmin,
	)
	return nil
}

// ListGrants returns admin grants made to an account, newest first.
func (e *Engine) ListGrants(ctx context.Context, accountID string, opts grant.ListOpts) ([]*grant.Grant, error) {
	return e.store.ListGrants(ctx, accountID, opts)
}

// ListReservations returns journal entries. Filter on
// reservation.StateRefundFailed to find debits awaiting reconciliation.
func (e *Engine) ListReservations(ctx context.Context, opts reservation.ListOpts) ([]*reservation.Reservation, error) {
	return e.store.ListReservations(ctx, opts)
}
