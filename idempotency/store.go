package idempotency

import (
	"context"
)

// Store persists processed event records. MarkProcessed must be backed by
// a unique key and fail with credits.ErrConflict when the event id was
// already marked, so concurrent deliveries of one event serialize on it.
type Store interface {
	IsProcessed(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, r *Record) error
	GetProcessed(ctx context.Context, eventID string) (*Record, error)
}
