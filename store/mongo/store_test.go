package mongo_test

import (
	"context"
	"os"
	"testing"

	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/mongo"
	"github.com/xraph/credits/store/storetest"
)

// Set CREDITS_TEST_MONGO_URI (with a database name) to run. The database is
// dropped before each case.
func TestStore(t *testing.T) {
	uri := os.Getenv("CREDITS_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("CREDITS_TEST_MONGO_URI not set")
	}
	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		s, err := mongo.Open(ctx, uri, "")
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		if err := mongodriver.Unwrap(s.DB()).Database().Drop(ctx); err != nil {
			t.Fatalf("drop: %v", err)
		}
		if err := s.Migrate(ctx); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
		return s
	})
}
