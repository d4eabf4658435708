package idempotency_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/xraph/credits/idempotency"
)

var errDup = errors.New("duplicate")

type countingStore struct {
	mu      sync.Mutex
	records map[string]*idempotency.Record
	lookups int
}

func newCountingStore() *countingStore {
	return &countingStore{records: make(map[string]*idempotency.Record)}
}

func (s *countingStore) IsProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups++
	_, ok := s.records[eventID]
	return ok, nil
}

func (s *countingStore) MarkProcessed(_ context.Context, r *idempotency.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.EventID]; ok {
		return errDup
	}
	s.records[r.EventID] = r
	return nil
}

func (s *countingStore) GetProcessed(_ context.Context, eventID string) (*idempotency.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[eventID], nil
}

func TestGuardCachesMarkedIDs(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	g := idempotency.NewGuard(s, 8)

	done, err := g.IsProcessed(ctx, "evt_1")
	if err != nil || done {
		t.Fatalf("IsProcessed before mark = %v, %v", done, err)
	}
	if err := g.MarkProcessed(ctx, &idempotency.Record{EventID: "evt_1"}); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}

	before := s.lookups
	done, err = g.IsProcessed(ctx, "evt_1")
	if err != nil || !done {
		t.Fatalf("IsProcessed after mark = %v, %v", done, err)
	}
	if s.lookups != before {
		t.Errorf("cached id hit the store: %d lookups, want %d", s.lookups, before)
	}
}

func TestGuardMarkAlwaysReachesStore(t *testing.T) {
	ctx := context.Background()
	s := newCountingStore()
	g := idempotency.NewGuard(s, 8)

	if err := g.MarkProcessed(ctx, &idempotency.Record{EventID: "evt_1"}); err != nil {
		t.Fatalf("first mark: %v", err)
	}
	if err := g.MarkProcessed(ctx, &idempotency.Record{EventID: "evt_1"}); !errors.Is(err, errDup) {
		t.Fatalf("second mark error = %v, want store duplicate", err)
	}
}

func TestGuardEvictsOldest(t *testing.T) {
	ctx := context.Background()
	g := idempotency.NewGuard(newCountingStore(), 2)
	for _, id := range []string{"a", "b", "c"} {
		if err := g.MarkProcessed(ctx, &idempotency.Record{EventID: id}); err != nil {
			t.Fatalf("mark %s: %v", id, err)
		}
	}
	if g.Len() != 2 {
		t.Errorf("Len() = %d, want 2", g.Len())
	}
	// Evicted ids are still answered by the store.
	done, err := g.IsProcessed(ctx, "a")
	if err != nil || !done {
		t.Errorf("IsProcessed(a) = %v, %v", done, err)
	}
}
