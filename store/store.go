package store

import (
	"context"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/grant"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/idempotency"
	"github.com/xraph/credits/reservation"
)

// Store is the unified storage interface for all credits entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
type Store interface {
	// Account methods
	CreateAccount(ctx context.Context, a *account.Account) error
	GetAccount(ctx context.Context, accountID string) (*account.Account, error)
	GetAccountByBillingIdentity(ctx context.Context, billingIdentity string) (*account.Account, error)
	ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error)
	ReadBalance(ctx context.Context, accountID string) (account.Balance, error)
	Adjust(ctx context.Context, accountID string, creditsDelta, freeActionsDelta int64) error
	SetBillingIdentity(ctx context.Context, accountID, billingIdentity string) error
	SetSubscriptionState(ctx context.Context, accountID string, state *account.SubscriptionState) error
	SetAdmin(ctx context.Context, accountID string, isAdmin bool) error

	// Idempotency methods
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, r *idempotency.Record) error
	GetProcessed(ctx context.Context, eventID string) (*idempotency.Record, error)

	// Reservation journal methods
	CreateReservation(ctx context.Context, r *reservation.Reservation) error
	GetReservation(ctx context.Context, rsvID id.ReservationID) (*reservation.Reservation, error)
	UpdateReservationState(ctx context.Context, rsvID id.ReservationID, state reservation.State, errMsg string) error
	ListReservations(ctx context.Context, opts reservation.ListOpts) ([]*reservation.Reservation, error)

	// Grant methods
	CreateGrant(ctx context.Context, g *grant.Grant) error
	GetGrant(ctx context.Context, grantID id.GrantID) (*grant.Grant, error)
	ListGrants(ctx context.Context, accountID string, opts grant.ListOpts) ([]*grant.Grant, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ account.Store     = Store(nil)
	_ idempotency.Store = Store(nil)
	_ reservation.Store = Store(nil)
	_ grant.Store       = Store(nil)
)
