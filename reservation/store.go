package reservation

import (
	"context"

	"github.com/xraph/credits/id"
)

// Store is the reservation journal. It is an operator record, not part
// of the debit protocol.
type Store interface {
	CreateReservation(ctx context.Context, r *Reservation) error
	GetReservation(ctx context.Context, rsvID id.ReservationID) (*Reservation, error)
	UpdateReservationState(ctx context.Context, rsvID id.ReservationID, state State, errMsg string) error
	ListReservations(ctx context.Context, opts ListOpts) ([]*Reservation, error)
}

// ListOpts filters the journal. Zero values match everything.
type ListOpts struct {
	AccountID string
	State     State
	Limit     int
	Offset    int
}
