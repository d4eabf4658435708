package account

import (
	"context"
)

// Store is the ledger store contract. Adjust is the only way balances
// change and must apply both deltas as one atomic relative increment.
// A negative delta that would take its counter below zero fails with
// credits.ErrInsufficientCredits and changes nothing.
type Store interface {
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	GetAccountByBillingIdentity(ctx context.Context, billingIdentity string) (*Account, error)
	ListAccounts(ctx context.Context, opts ListOpts) ([]*Account, error)
	ReadBalance(ctx context.Context, accountID string) (Balance, error)
	Adjust(ctx context.Context, accountID string, creditsDelta, freeActionsDelta int64) error
	SetBillingIdentity(ctx context.Context, accountID, billingIdentity string) error
	SetSubscriptionState(ctx context.Context, accountID string, state *SubscriptionState) error
	SetAdmin(ctx context.Context, accountID string, isAdmin bool) error
}

// ListOpts pages through accounts ordered by creation time.
type ListOpts struct {
	AdminsOnly bool
	Limit      int
	Offset     int
}
