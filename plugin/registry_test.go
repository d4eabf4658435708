package plugin_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/credits/grant"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/reservation"
)

type recorder struct {
	name string

	mu       sync.Mutex
	reserved []string
	grants   []int64
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnCreditsReserved(_ context.Context, rsv *reservation.Reservation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reserved = append(r.reserved, rsv.AccountID)
	return nil
}

func (r *recorder) OnAdminGrant(_ context.Context, g *grant.Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants = append(r.grants, g.Credits)
	return errors.New("hook errors are logged, not returned")
}

type slowPlugin struct{}

func (slowPlugin) Name() string { return "slow" }

func (slowPlugin) OnCreditsReserved(ctx context.Context, _ *reservation.Reservation) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	reg := plugin.NewRegistry()
	if err := reg.Register(&recorder{name: "a"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := reg.Register(&recorder{name: "a"}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
	if reg.Count() != 1 {
		t.Errorf("Count() = %d, want 1", reg.Count())
	}
	if reg.Get("a") == nil || reg.Get("b") != nil {
		t.Error("Get returned unexpected plugins")
	}
}

func TestEmitDispatchesToImplementers(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{name: "rec"}
	reg := plugin.NewRegistry()
	if err := reg.Register(rec); err != nil {
		t.Fatalf("Register: %v", err)
	}

	reg.EmitCreditsReserved(ctx, &reservation.Reservation{AccountID: "acct"})
	reg.EmitAdminGrant(ctx, &grant.Grant{Credits: 7})
	// No implementer; must not panic.
	reg.EmitShutdown(ctx)

	if len(rec.reserved) != 1 || rec.reserved[0] != "acct" {
		t.Errorf("reserved = %v", rec.reserved)
	}
	if len(rec.grants) != 1 || rec.grants[0] != 7 {
		t.Errorf("grants = %v", rec.grants)
	}
}

func TestSlowHookIsBounded(t *testing.T) {
	reg := plugin.NewRegistry().WithTimeout(20 * time.Millisecond)
	if err := reg.Register(slowPlugin{}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	reg.EmitCreditsReserved(ctx, &reservation.Reservation{})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("emit blocked for %v", elapsed)
	}
}
