package audithook_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/account"
	audithook "github.com/xraph/credits/audit_hook"
	"github.com/xraph/credits/store/memory"
)

type captured struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
}

func (c *captured) Record(_ context.Context, ev *audithook.AuditEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captured) actions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Action
	}
	return out
}

func TestGrantAudit(t *testing.T) {
	rec := &captured{}
	eng := credits.New(memory.New(), credits.WithPlugin(audithook.New(rec)))
	ctx := context.Background()

	for _, id := range []string{"admin", "u1"} {
		if _, _, err := eng.EnsureAccount(ctx, id, account.OriginEmail); err != nil {
			t.Fatal(err)
		}
	}

	_, err := eng.Grant(ctx, credits.GrantInput{ActorID: "u1", AccountID: "u1", Credits: 100})
	if !errors.Is(err, credits.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := eng.SetAdmin(ctx, "admin", true); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Grant(ctx, credits.GrantInput{ActorID: "admin", AccountID: "u1", Credits: 5, Reason: "support"}); err != nil {
		t.Fatal(err)
	}

	want := []string{
		audithook.ActionAccountCreated,
		audithook.ActionAccountCreated,
		audithook.ActionGrantDenied,
		audithook.ActionGrantApplied,
	}
	got := rec.actions()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	denied := rec.events[2]
	if denied.Severity != audithook.SeverityWarning || denied.Outcome != audithook.OutcomeFailure {
		t.Errorf("unexpected denied event: %+v", denied)
	}
	if denied.Metadata["actor_id"] != "u1" {
		t.Errorf("expected actor_id u1, got %v", denied.Metadata["actor_id"])
	}
	applied := rec.events[3]
	if applied.Metadata["credits"] != int64(5) {
		t.Errorf("expected credits 5, got %v", applied.Metadata["credits"])
	}
}

func TestEnabledActions(t *testing.T) {
	rec := &captured{}
	ext := audithook.New(rec, audithook.WithDisabledActions(audithook.ActionAccountCreated))
	eng := credits.New(memory.New(), credits.WithPlugin(ext))

	if _, _, err := eng.EnsureAccount(context.Background(), "u1", account.OriginWallet); err != nil {
		t.Fatal(err)
	}
	if n := len(rec.actions()); n != 0 {
		t.Fatalf("expected no events, got %d", n)
	}
}

func TestRecorderErrorsAreSwallowed(t *testing.T) {
	fail := audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	})
	ext := audithook.New(fail)
	if err := ext.OnSignatureRejected(context.Background(), "stripe", credits.ErrInvalidSignature); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
