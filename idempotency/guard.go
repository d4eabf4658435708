package idempotency

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of recently marked event ids a Guard
// remembers.
const DefaultCacheSize = 4096

// Guard fronts a Store with an in-process cache of recently marked event
// ids. Cache hits answer IsProcessed without a store round trip.
// MarkProcessed always reaches the store, which stays the authority.
type Guard struct {
	store Store
	seen  *lru.Cache[string, struct{}]
}

var _ Store = (*Guard)(nil)

// NewGuard wraps s. A non-positive size selects DefaultCacheSize.
func NewGuard(s Store, size int) *Guard {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, struct{}](size)
	if err != nil {
		// lru.New only fails for non-positive sizes.
		panic(err)
	}
	return &Guard{store: s, seen: cache}
}

// IsProcessed reports whether eventID has been marked.
func (g *Guard) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	if g.seen.Contains(eventID) {
		return true, nil
	}
	done, err := g.store.IsProcessed(ctx, eventID)
	if err != nil {
		return false, err
	}
	if done {
		g.seen.Add(eventID, struct{}{})
	}
	return done, nil
}

// MarkProcessed records r in the store and remembers its id on success.
func (g *Guard) MarkProcessed(ctx context.Context, r *Record) error {
	if err := g.store.MarkProcessed(ctx, r); err != nil {
		return err
	}
	g.seen.Add(r.EventID, struct{}{})
	return nil
}

// GetProcessed returns the stored record for eventID.
func (g *Guard) GetProcessed(ctx context.Context, eventID string) (*Record, error) {
	return g.store.GetProcessed(ctx, eventID)
}

// Len returns the number of cached ids.
func (g *Guard) Len() int {
	return g.seen.Len()
}
