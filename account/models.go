// Package account defines the credit account record and its ledger store
// contract.
package account

import (
	"time"

	"github.com/xraph/credits/types"
)

// Origin identifies how an account first signed up.
type Origin string

const (
	OriginEmail  Origin = "email"
	OriginWallet Origin = "wallet"
)

// Valid reports whether o is a known origin.
func (o Origin) Valid() bool {
	switch o {
	case OriginEmail, OriginWallet:
		return true
	}
	return false
}

// Status is the lifecycle state of a processor subscription.
type Status string

const (
	StatusActive   Status = "active"
	StatusTrialing Status = "trialing"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
	StatusUnpaid   Status = "unpaid"
	StatusPaused   Status = "paused"
)

// SubscriptionState mirrors the processor's view of a recurring plan.
type SubscriptionState struct {
	SubscriptionID   string    `json:"subscription_id"`
	Status           Status    `json:"status"`
	PlanID           string    `json:"plan_id,omitempty"`
	CurrentPeriodEnd time.Time `json:"current_period_end,omitempty"`
}

// Active reports whether the subscription currently entitles renewals.
func (s *SubscriptionState) Active() bool {
	if s == nil {
		return false
	}
	return s.Status == StatusActive || s.Status == StatusTrialing
}

// Account is a holder of credits. ID is the external identity: a wallet
// address or an auth subject.
type Account struct {
	types.Entity
	ID              string             `json:"id"`
	Credits         int64              `json:"credits"`
	FreeActions     int64              `json:"free_actions"`
	BillingIdentity string             `json:"billing_identity,omitempty"`
	Subscription    *SubscriptionState `json:"subscription,omitempty"`
	IsAdmin         bool               `json:"is_admin"`
	Origin          Origin             `json:"origin,omitempty"`
}

// Balance returns the account's spendable counters.
func (a *Account) Balance() Balance {
	return Balance{Credits: a.Credits, FreeActions: a.FreeActions}
}

// Balance is a snapshot of an account's counters.
type Balance struct {
	Credits     int64 `json:"credits"`
	FreeActions int64 `json:"freeActions"`
}

// Covers reports whether the balance can pay cost, either with a free
// action (when allowFree is set) or with credits.
func (b Balance) Covers(cost int64, allowFree bool) bool {
	if allowFree && b.FreeActions > 0 {
		return true
	}
	return b.Credits >= cost
}

// Allotment is the starting balance granted to a new account.
type Allotment struct {
	Credits     int64 `json:"credits" yaml:"credits"`
	FreeActions int64 `json:"free_actions" yaml:"free_actions"`
}

// DefaultAllotments returns the signup grants per origin.
func DefaultAllotments() map[Origin]Allotment {
	return map[Origin]Allotment{
		OriginEmail:  {Credits: 8},
		OriginWallet: {Credits: 5, FreeActions: 5},
	}
}
