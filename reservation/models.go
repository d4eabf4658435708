// Package reservation describes provisional debits taken before an
// external generation call, and the catalogue of what actions cost.
package reservation

import (
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/types"
)

// State is the settlement state of a reservation.
type State string

const (
	StateReserved     State = "reserved"
	StateCommitted    State = "committed"
	StateRefunded     State = "refunded"
	StateRefundFailed State = "refund_failed"
)

// Settled reports whether the reservation reached a final state.
func (s State) Settled() bool {
	return s == StateCommitted || s == StateRefunded || s == StateRefundFailed
}

// Reservation is a journal entry for one metered action. Credits and
// FreeActions are the units actually debited.
type Reservation struct {
	types.Entity
	ID          id.ReservationID `json:"id"`
	AccountID   string           `json:"account_id"`
	Action      Action           `json:"action"`
	Credits     int64            `json:"credits"`
	FreeActions int64            `json:"free_actions"`
	State       State            `json:"state"`
	Error       string           `json:"error,omitempty"`
}
