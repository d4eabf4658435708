// Package storetest is a behavioural suite every store.Store backend must
// pass. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/grant"
	"github.com/xraph/credits/id"
	"github.com/xraph/credits/idempotency"
	"github.com/xraph/credits/reservation"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/types"
)

// Factory returns an empty, migrated store.
type Factory func(t *testing.T) store.Store

// Run executes the suite against stores made by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"AccountLifecycle", testAccountLifecycle},
		{"AdjustNeverGoesNegative", testAdjustNeverGoesNegative},
		{"AdjustMixedDeltas", testAdjustMixedDeltas},
		{"ConcurrentDebits", testConcurrentDebits},
		{"BillingIdentitySetOnce", testBillingIdentitySetOnce},
		{"SubscriptionState", testSubscriptionState},
		{"MarkProcessedOnce", testMarkProcessedOnce},
		{"ReservationJournal", testReservationJournal},
		{"Grants", testGrants},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func seed(t *testing.T, s store.Store, accountID string, creditsBal, free int64) {
	t.Helper()
	err := s.CreateAccount(context.Background(), &account.Account{
		Entity:      types.NewEntity(),
		ID:          accountID,
		Credits:     creditsBal,
		FreeActions: free,
		Origin:      account.OriginEmail,
	})
	if err != nil {
		t.Fatalf("CreateAccount(%s): %v", accountID, err)
	}
}

func balance(t *testing.T, s store.Store, accountID string) account.Balance {
	t.Helper()
	b, err := s.ReadBalance(context.Background(), accountID)
	if err != nil {
		t.Fatalf("ReadBalance(%s): %v", accountID, err)
	}
	return b
}

func testAccountLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s, "0xabc", 5, 5)

	err := s.CreateAccount(ctx, &account.Account{Entity: types.NewEntity(), ID: "0xabc"})
	if !errors.Is(err, credits.ErrAlreadyExists) {
		t.Fatalf("duplicate create error = %v, want ErrAlreadyExists", err)
	}

	if err := s.Adjust(ctx, "0xabc", -3, -1); err != nil {
		t.Fatalf("Adjust: %v", err)
	}
	if b := balance(t, s, "0xabc"); b.Credits != 2 || b.FreeActions != 4 {
		t.Errorf("balance = %+v, want {2 4}", b)
	}

	if _, err := s.GetAccount(ctx, "missing"); !errors.Is(err, credits.ErrAccountNotFound) {
		t.Errorf("GetAccount(missing) error = %v", err)
	}
	if _, err := s.ReadBalance(ctx, "missing"); !errors.Is(err, credits.ErrAccountNotFound) {
		t.Errorf("ReadBalance(missing) error = %v", err)
	}
	if err := s.Adjust(ctx, "missing", 1, 0); !errors.Is(err, credits.ErrAccountNotFound) {
		t.Errorf("Adjust(missing) error = %v", err)
	}

	if err := s.SetAdmin(ctx, "0xabc", true); err != nil {
		t.Fatalf("SetAdmin: %v", err)
	}
	admins, err := s.ListAccounts(ctx, account.ListOpts{AdminsOnly: true})
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(admins) != 1 || admins[0].ID != "0xabc" || !admins[0].IsAdmin {
		t.Errorf("admins = %+v", admins)
	}
}

func testAdjustNeverGoesNegative(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s, "acct", 2, 1)

	if err := s.Adjust(ctx, "acct", -3, 0); !errors.Is(err, credits.ErrInsufficientCredits) {
		t.Fatalf("overdraw credits error = %v, want ErrInsufficientCredits", err)
	}
	if err := s.Adjust(ctx, "acct", 0, -2); !errors.Is(err, credits.ErrInsufficientCredits) {
		t.Fatalf("overdraw free actions error = %v, want ErrInsufficientCredits", err)
	}
	if b := balance(t, s, "acct"); b.Credits != 2 || b.FreeActions != 1 {
		t.Errorf("refused adjust changed the balance: %+v", b)
	}
	if err := s.Adjust(ctx, "acct", 10, 0); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if b := balance(t, s, "acct"); b.Credits != 12 {
		t.Errorf("credits = %d, want 12", b.Credits)
	}
}

func testAdjustMixedDeltas(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s, "acct", 0, 1)

	// A credit alongside a free action debit is refused as a whole when
	// the debit side would go negative.
	if err := s.Adjust(ctx, "acct", 3, -1); err != nil {
		t.Fatalf("Adjust(3, -1): %v", err)
	}
	if err := s.Adjust(ctx, "acct", 3, -1); !errors.Is(err, credits.ErrInsufficientCredits) {
		t.Fatalf("second Adjust(3, -1) error = %v, want ErrInsufficientCredits", err)
	}
	if b := balance(t, s, "acct"); b.Credits != 3 || b.FreeActions != 0 {
		t.Errorf("balance = %+v, want 3 credits and no free actions", b)
	}
	if err := s.Adjust(ctx, "acct", 0, 2); err != nil {
		t.Fatalf("Adjust(0, 2): %v", err)
	}
	if b := balance(t, s, "acct"); b.Credits != 3 || b.FreeActions != 2 {
		t.Errorf("balance = %+v, want 3 credits and 2 free actions", b)
	}
}

func testConcurrentDebits(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s, "acct", 10, 0)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Adjust(ctx, "acct", -1, 0)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			} else if !errors.Is(err, credits.ErrInsufficientCredits) {
				t.Errorf("Adjust: %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 10 {
		t.Errorf("successful debits = %d, want 10", success)
	}
	if b := balance(t, s, "acct"); b.Credits != 0 {
		t.Errorf("credits = %d, want 0", b.Credits)
	}
}

func testBillingIdentitySetOnce(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s, "acct", 0, 0)

	if err := s.SetBillingIdentity(ctx, "acct", "cus_1"); err != nil {
		t.Fatalf("SetBillingIdentity: %v", err)
	}
	if err := s.SetBillingIdentity(ctx, "acct", "cus_2"); err != nil {
		t.Fatalf("second SetBillingIdentity: %v", err)
	}
	a, err := s.GetAccountByBillingIdentity(ctx, "cus_1")
	if err != nil {
		t.Fatalf("GetAccountByBillingIdentity: %v", err)
	}
	if a.ID != "acct" || a.BillingIdentity != "cus_1" {
		t.Errorf("account = %+v", a)
	}
	if _, err := s.GetAccountByBillingIdentity(ctx, "cus_2"); !errors.Is(err, credits.ErrAccountNotFound) {
		t.Errorf("lookup of rejected identity error = %v", err)
	}
	if err := s.SetBillingIdentity(ctx, "missing", "cus_3"); !errors.Is(err, credits.ErrAccountNotFound) {
		t.Errorf("SetBillingIdentity(missing) error = %v", err)
	}

	seed(t, s, "other", 0, 0)
	if err := s.SetBillingIdentity(ctx, "other", "cus_1"); !errors.Is(err, credits.ErrConflict) {
		t.Errorf("SetBillingIdentity(taken) error = %v, want ErrConflict", err)
	}
}

func testSubscriptionState(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s, "acct", 0, 0)

	end := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	st := &account.SubscriptionState{
		SubscriptionID:   "sub_1",
		Status:           account.StatusActive,
		PlanID:           "price_pro",
		CurrentPeriodEnd: end,
	}
	if err := s.SetSubscriptionState(ctx, "acct", st); err != nil {
		t.Fatalf("SetSubscriptionState: %v", err)
	}
	a, err := s.GetAccount(ctx, "acct")
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if a.Subscription == nil || a.Subscription.SubscriptionID != "sub_1" || !a.Subscription.Active() {
		t.Fatalf("subscription = %+v", a.Subscription)
	}
	if !a.Subscription.CurrentPeriodEnd.Equal(end) {
		t.Errorf("period end = %v, want %v", a.Subscription.CurrentPeriodEnd, end)
	}

	if err := s.SetSubscriptionState(ctx, "acct", nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
	a, _ = s.GetAccount(ctx, "acct")
	if a.Subscription != nil {
		t.Errorf("subscription not cleared: %+v", a.Subscription)
	}
}

func testMarkProcessedOnce(t *testing.T, s store.Store) {
	ctx := context.Background()

	ok, err := s.IsProcessed(ctx, "evt_1")
	if err != nil || ok {
		t.Fatalf("IsProcessed before mark = %v, %v", ok, err)
	}

	rec := &idempotency.Record{EventID: "evt_1", Provider: "stripe", AccountID: "acct", Credits: 40}
	if err := s.MarkProcessed(ctx, rec); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	if err := s.MarkProcessed(ctx, rec); !errors.Is(err, credits.ErrConflict) {
		t.Fatalf("second MarkProcessed error = %v, want ErrConflict", err)
	}

	ok, err = s.IsProcessed(ctx, "evt_1")
	if err != nil || !ok {
		t.Fatalf("IsProcessed after mark = %v, %v", ok, err)
	}
	got, err := s.GetProcessed(ctx, "evt_1")
	if err != nil {
		t.Fatalf("GetProcessed: %v", err)
	}
	if got.Credits != 40 || got.ProcessedAt.IsZero() {
		t.Errorf("record = %+v", got)
	}
	if _, err := s.GetProcessed(ctx, "evt_2"); !errors.Is(err, credits.ErrEventNotFound) {
		t.Errorf("GetProcessed(missing) error = %v", err)
	}
}

func testReservationJournal(t *testing.T, s store.Store) {
	ctx := context.Background()

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
	if err := s.UpdateReservationState(ctx, r.ID, reservation.StateRefundFailed, "store down"); err != nil {
		t.Fatalf("UpdateReservationState: %v", err)
	}

	got, err := s.GetReservation(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetReservation: %v", err)
	}
	if got.State != reservation.StateRefundFailed || got.Error != "store down" || got.Credits != 3 {
		t.Errorf("reservation = %+v", got)
	}

	list, err := s.ListReservations(ctx, reservation.ListOpts{State: reservation.StateRefundFailed})
	if err != nil {
		t.Fatalf("ListReservations: %v", err)
	}
	if len(list) != 1 || list[0].ID != r.ID {
		t.Errorf("list = %+v", list)
	}

	missing := id.NewReservationID()
	if err := s.UpdateReservationState(ctx, missing, reservation.StateCommitted, ""); !errors.Is(err, credits.ErrReservationNotFound) {
		t.Errorf("UpdateReservationState(missing) error = %v", err)
	}
}

func testGrants(t *testing.T, s store.Store) {
	ctx := context.Background()

	g := &grant.Grant{
		ID:        id.NewGrantID(),
		AccountID: "acct",
		AdminID:   "admin",
		Credits:   25,
		Reason:    "support",
		CreatedAt: time.Now().UTC(),
	}
	if err := s.CreateGrant(ctx, g); err != nil {
		t.Fatalf("CreateGrant: %v", err)
	}
	got, err := s.GetGrant(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGrant: %v", err)
	}
	if got.Credits != 25 || got.AdminID != "admin" {
		t.Errorf("grant = %+v", got)
	}
	list, err := s.ListGrants(ctx, "acct", grant.ListOpts{})
	if err != nil {
		t.Fatalf("ListGrants: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("grants = %d, want 1", len(list))
	}
	if _, err := s.GetGrant(ctx, id.NewGrantID()); !errors.Is(err, credits.ErrGrantNotFound) {
		t.Errorf("GetGrant(missing) error = %v", err)
	}
}
