package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/xraph/grove/drivers/pgdriver"

	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/postgres"
	"github.com/xraph/credits/store/storetest"
)

// Set CREDITS_TEST_POSTGRES_DSN to a scratch database to run. Tables are
// truncated before each case.
func TestStore(t *testing.T) {
	dsn := os.Getenv("CREDITS_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CREDITS_TEST_POSTGRES_DSN not set")
	}
	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		s, err := postgres.Open(ctx, dsn)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		if err := s.Migrate(ctx); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
		_, err = pgdriver.Unwrap(s.DB()).Exec(ctx, `TRUNCATE credits_accounts, credits_processed_events, credits_reservations, credits_grants`)
		if err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return s
	})
}
