package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/sqlite"
	"github.com/xraph/credits/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		s, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "credits.db"))
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		if err := s.Migrate(ctx); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
		return s
	})
}

func TestInfrastructureFaultsAreUnavailable(t *testing.T) {
	ctx := context.Background()
	s, err := sqlite.Open(ctx, filepath.Join(t.TempDir(), "credits.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := s.Adjust(ctx, "acct", 1, 0); !errors.Is(err, credits.ErrStoreUnavailable) {
		t.Errorf("Adjust on closed store error = %v, want ErrStoreUnavailable", err)
	}
	if err := s.SetBillingIdentity(ctx, "acct", "cus_1"); !errors.Is(err, credits.ErrStoreUnavailable) {
		t.Errorf("SetBillingIdentity on closed store error = %v, want ErrStoreUnavailable", err)
	}
	if _, err := s.ReadBalance(ctx, "acct"); !errors.Is(err, credits.ErrStoreUnavailable) {
		t.Errorf("ReadBalance on closed store error = %v, want ErrStoreUnavailable", err)
	}
}
