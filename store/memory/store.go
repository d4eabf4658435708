// Package memory provides an in-process Store for tests and single-node
// development. Records are copied in and out so callers never share state
// with the store.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/grant"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/idempotency"
	"github.com/xraph/credits/reservation"
	"github.com/xraph/credits/store"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	// Account storage
	accounts map[string]*account.Account

	// Processed event storage
	processed map[string]*idempotency.Record

	// Reservation journal
	reservations map[string]*reservation.Reservation

	// Grant storage
	grants map[string]*grant.Grant
}

func New() *Store {
	return &Store{
		accounts:     make(map[string]*account.Account),
		processed:    make(map[string]*idempotency.Record),
		reservations: make(map[string]*reservation.Reservation),
		grants:       make(map[string]*grant.Grant),
	}
}

// Account Store implementation
func (s *Store) CreateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.ID]; exists {
		return credits.ErrAlreadyExists
	}
	s.accounts[a.ID] = cloneAccount(a)
	return nil
}

func (s *Store) GetAccount(_ context.Context, accountID string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if a, ok := s.accounts[accountID]; ok {
		return cloneAccount(a), nil
	}
	return nil, credits.ErrAccountNotFound
}

func (s *Store) GetAccountByBillingIdentity(_ context.Context, billingIdentity string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if billingIdentity == "" {
		return nil, credits.ErrAccountNotFound
	}
	for _, a := range s.accounts {
		if a.BillingIdentity == billingIdentity {
			return cloneAccount(a), nil
		}
	}
	return nil, credits.ErrAccountNotFound
}

func (s *Store) ListAccounts(_ context.Context, opts account.ListOpts) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*account.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		if opts.AdminsOnly && !a.IsAdmin {
			continue
		}
		result = append(result, cloneAccount(a))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) ReadBalance(_ context.Context, accountID string) (account.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return account.Balance{}, credits.ErrAccountNotFound
	}
	return a.Balance(), nil
}

func (s *Store) Adjust(_ context.Context, accountID string, creditsDelta, freeActionsDelta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return credits.ErrAccountNotFound
	}
	if (creditsDelta < 0 && a.Credits+creditsDelta < 0) ||
		(freeActionsDelta < 0 && a.FreeActions+freeActionsDelta < 0) {
		return credits.ErrInsufficientCredits
	}
	a.Credits += creditsDelta
	a.FreeActions += freeActionsDelta
	a.Touch()
	return nil
}

func (s *Store) SetBillingIdentity(_ context.Context, accountID, billingIdentity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return credits.ErrAccountNotFound
	}
	// Set once. A different value later is ignored.
	if a.BillingIdentity == "" {
		for _, other := range s.accounts {
			if other.ID != accountID && other.BillingIdentity == billingIdentity {
				return credits.ErrConflict
			}
		}
		a.BillingIdentity = billingIdentity
		a.Touch()
	}
	return nil
}

func (s *Store) SetSubscriptionState(_ context.Context, accountID string, state *account.SubscriptionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return credits.ErrAccountNotFound
	}
	if state == nil {
		a.Subscription = nil
	} else {
		st := *state
		a.Subscription = &st
	}
	a.Touch()
	return nil
}

func (s *Store) SetAdmin(_ context.Context, accountID string, isAdmin bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return credits.ErrAccountNotFound
	}
	a.IsAdmin = isAdmin
	a.Touch()
	return nil
}

// Idempotency Store implementation
func (s *Store) IsProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.processed[eventID]
	return ok, nil
}

func (s *Store) MarkProcessed(_ context.Context, r *idempotency.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.processed[r.EventID]; exists {
		return credits.ErrConflict
	}
	rec := *r
	if rec.ProcessedAt.IsZero() {
		rec.ProcessedAt = time.Now().UTC()
	}
	s.processed[r.EventID] = &rec
	return nil
}

func (s *Store) GetProcessed(_ context.Context, eventID string) (*idempotency.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.processed[eventID]; ok {
		rec := *r
		return &rec, nil
	}
	return nil, credits.ErrEventNotFound
}

// Reservation Store implementation
func (s *Store) CreateReservation(_ context.Context, r *reservation.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.reservations[r.ID.String()]; exists {
		return credits.ErrAlreadyExists
	}
	rsv := *r
	s.reservations[r.ID.String()] = &rsv
	return nil
}

func (s *Store) GetReservation(_ context.Context, rsvID id.ReservationID) (*reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.reservations[rsvID.String()]; ok {
		rsv := *r
		return &rsv, nil
	}
	return nil, credits.ErrReservationNotFound
}

func (s *Store) UpdateReservationState(_ context.Context, rsvID id.ReservationID, state reservation.State, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reservations[rsvID.String()]
	if !ok {
		return credits.ErrReservationNotFound
	}
	r.State = state
	r.Error = errMsg
	r.Touch()
	return nil
}

func (s *Store) ListReservations(_ context.Context, opts reservation.ListOpts) ([]*reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*reservation.Reservation, 0)
	for _, r := range s.reservations {
		if opts.AccountID != "" && r.AccountID != opts.AccountID {
			continue
		}
		if opts.State != "" && r.State != opts.State {
			continue
		}
		rsv := *r
		result = append(result, &rsv)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

// Grant Store implementation
func (s *Store) CreateGrant(_ context.Context, g *grant.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.grants[g.ID.String()]; exists {
		return credits.ErrAlreadyExists
	}
	gr := *g
	s.grants[g.ID.String()] = &gr
	return nil
}

func (s *Store) GetGrant(_ context.Context, grantID id.GrantID) (*grant.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if g, ok := s.grants[grantID.String()]; ok {
		gr := *g
		return &gr, nil
	}
	return nil, credits.ErrGrantNotFound
}

func (s *Store) ListGrants(_ context.Context, accountID string, opts grant.ListOpts) ([]*grant.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*grant.Grant, 0)
	for _, g := range s.grants {
		if g.AccountID == accountID {
			gr := *g
			result = append(result, &gr)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, opts.Offset, opts.Limit), nil
}

// Core methods
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}

func cloneAccount(a *account.Account) *account.Account {
	c := *a
	if a.Subscription != nil {
		st := *a.Subscription
		c.Subscription = &st
	}
	return &c
}

func paginate[T any](items []T, offset, limit int) []T {
	start := offset
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
