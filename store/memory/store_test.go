package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/grant"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/idempotency"
	"github.com/xraph/credits/reservation"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/store/storetest"
	"github.com/xraph/credits/types"
)

func seed(t *testing.T, s *memory.Store, accountID string, creditsBal, free int64) {
	t.Helper()
	err := s.CreateAccount(context.Background(), &account.Account{
		Entity:      types.NewEntity(),
		ID:          accountID,
		Credits:     creditsBal,
		FreeActions: free,
	})
	if err != nil {
		t.Fatalf("CreateAccount(%s): %v", accountID, err)
	}
}

func TestAccountLifecycle(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seed(t, s, "0xabc", 5, 5)

	if err := s.CreateAccount(ctx, &account.Account{ID: "0xabc"}); !errors.Is(err, credits.ErrAlreadyExists) {
		t.Fatalf("duplicate create error = %v, want ErrAlreadyExists", err)
	}

	if err := s.Adjust(ctx, "0xabc", -3, -1); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	bal, err := s.ReadBalance(ctx, "0xabc")
	if err != nil {
		t.Fatalf("ReadBalance: %v", err)
	}
	if bal.Credits != 2 || bal.FreeActions != 4 {
		t.Errorf("balance = %+v, want {2 4}", bal)
	}

	if _, err := s.ReadBalance(ctx, "missing"); !errors.Is(err, credits.ErrAccountNotFound) {
		t.Errorf("ReadBalance(missing) error = %v", err)
	}
	if err := s.Adjust(ctx, "missing", 1, 0); !errors.Is(err, credits.ErrAccountNotFound) {
		t.Errorf("Adjust(missing) error = %v", err)
	}
}

func TestReturnedAccountsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seed(t, s, "acct", 10, 0)

	a, err := s.GetAccount(ctx, "acct")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	a.Credits = 999

	bal, _ := s.ReadBalance(ctx, "acct")
	if bal.Credits != 10 {
		t.Errorf("mutating a returned account changed the store: %d", bal.Credits)
	}
}

func TestBillingIdentitySetOnce(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seed(t, s, "acct", 0, 0)

	if err := s.SetBillingIdentity(ctx, "acct", "cus_1"); err != nil {
		t.Fatalf("SetBillingIdentity: %v", err)
	}
	if err := s.SetBillingIdentity(ctx, "acct", "cus_2"); err != nil {
		t.Fatalf("SetBillingIdentity second: %v", err)
	}

	a, err := s.GetAccountByBillingIdentity(ctx, "cus_1")
	if err != nil {
		t.Fatalf("GetAccountByBillingIdentity: %v", err)
	}
	if a.ID != "acct" {
		t.Errorf("resolved %q, want acct", a.ID)
	}
	if _, err := s.GetAccountByBillingIdentity(ctx, "cus_2"); !errors.Is(err, credits.ErrAccountNotFound) {
		t.Errorf("second identity should not link, got %v", err)
	}
}

func TestConcurrentAdjust(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seed(t, s, "acct", 0, 0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Adjust(ctx, "acct", 1, 0)
		}()
	}
	wg.Wait()

	bal, _ := s.ReadBalance(ctx, "acct")
	if bal.Credits != 100 {
		t.Errorf("credits = %d, want 100", bal.Credits)
	}
}

func TestMarkProcessedUnique(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	rec := &idempotency.Record{EventID: "evt_1", Provider: "stripe", AccountID: "acct", Credits: 40}
	if err := s.MarkProcessed(ctx, rec); err != nil {
		t.Fatalf("first MarkProcessed: %v", err)
	}
	if err := s.MarkProcessed(ctx, rec); !errors.Is(err, credits.ErrConflict) {
		t.Fatalf("second MarkProcessed error = %v, want ErrConflict", err)
	}

	done, err := s.IsProcessed(ctx, "evt_1")
	if err != nil || !done {
		t.Errorf("IsProcessed = %v, %v", done, err)
	}
	got, err := s.GetProcessed(ctx, "evt_1")
	if err != nil {
		t.Fatalf("GetProcessed: %v", err)
	}
	if got.ProcessedAt.IsZero() {
		t.Error("ProcessedAt not stamped")
	}
}

func TestConcurrentMarkProcessedSerializes(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.MarkProcessed(ctx, &idempotency.Record{EventID: "evt_race"}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Errorf("MarkProcessed succeeded %d times, want 1", wins)
	}
}

func TestReservationJournal(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	r := &reservation.Reservation{
		Entity:    types.NewEntity(),
		ID:        id.NewReservationID(),
		AccountID: "acct",
		Action:    reservation.ActionPlan,
		Credits:   3,
		State:     reservation.StateReserved,
	}
	if err := s.CreateReservation(ctx, r); err != nil {
		t.Fatalf("CreateReservation: %v", err)
	}
	if err := s.UpdateReservationState(ctx, r.ID, reservation.StateRefundFailed, "boom"); err != nil {
		t.Fatalf("UpdateReservationState: %v", err)
	}

	list, err := s.ListReservations(ctx, reservation.ListOpts{State: reservation.StateRefundFailed})
	if err != nil {
		t.Fatalf("ListReservations: %v", err)
	}
	if len(list) != 1 || list[0].Error != "boom" {
		t.Errorf("ListReservations = %+v", list)
	}

	if err := s.UpdateReservationState(ctx, id.NewReservationID(), reservation.StateCommitted, ""); !errors.Is(err, credits.ErrReservationNotFound) {
		t.Errorf("update unknown reservation error = %v", err)
	}
}

func TestGrants(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	for i := 0; i < 3; i++ {
		g := &grant.Grant{ID: id.NewGrantID(), AccountID: "acct", AdminID: "admin", Credits: int64(i + 1)}
		if err := s.CreateGrant(ctx, g); err != nil {
			t.Fatalf("CreateGrant: %v", err)
		}
	}
	_ = s.CreateGrant(ctx, &grant.Grant{ID: id.NewGrantID(), AccountID: "other", Credits: 1})

	list, err := s.ListGrants(ctx, "acct", grant.ListOpts{Limit: 2})
	if err != nil {
		t.Fatalf("ListGrants: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("ListGrants returned %d, want 2", len(list))
	}

	if _, err := s.GetGrant(ctx, id.NewGrantID()); !errors.Is(err, credits.ErrGrantNotFound) {
		t.Errorf("GetGrant(unknown) error = %v", err)
	}
}

func TestAdjustNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	seed(t, s, "acct", 2, 0)

	if err := s.Adjust(ctx, "acct", -3, 0); !errors.Is(err, credits.ErrInsufficientCredits) {
		t.Fatalf("overdraw error = %v, want ErrInsufficientCredits", err)
	}
	if err := s.Adjust(ctx, "acct", 0, -1); !errors.Is(err, credits.ErrInsufficientCredits) {
		t.Fatalf("free overdraw error = %v, want ErrInsufficientCredits", err)
	}
	bal, _ := s.ReadBalance(ctx, "acct")
	if bal.Credits != 2 || bal.FreeActions != 0 {
		t.Errorf("balance changed after refused debit: %+v", bal)
	}
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}
