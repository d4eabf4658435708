package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	credits "github.com/xraph/credits"
)

func executeCLI(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--store-driver", "sqlite", "--store-dsn", dbPath, "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), err
}

func TestGrantFlow(t *testing.T) {
	db := filepath.Join(t.TempDir(), "credits.db")

	out, err := executeCLI(t, db, "accounts", "create", "user-1")
	require.NoError(t, err)
	assert.Contains(t, out, "user-1\tcreated\tcredits=8\tfree_actions=0")

	out, err = executeCLI(t, db, "accounts", "create", "0xwallet", "--origin", "wallet")
	require.NoError(t, err)
	assert.Contains(t, out, "credits=5\tfree_actions=5")

	_, err = executeCLI(t, db, "grant", "user-1", "10", "--actor", "0xwallet")
	require.ErrorIs(t, err, credits.ErrUnauthorized)

	out, err = executeCLI(t, db, "set-admin", "0xwallet")
	require.NoError(t, err)
	assert.Contains(t, out, "admin=true")

	out, err = executeCLI(t, db, "grant", "user-1", "10", "--actor", "0xwallet", "--reason", "support")
	require.NoError(t, err)
	assert.Contains(t, out, "granted=10\tcredits=18")

	out, err = executeCLI(t, db, "balance", "user-1")
	require.NoError(t, err)
	assert.Equal(t, "credits=18\tfree_actions=0\n", out)

	out, err = executeCLI(t, db, "accounts", "list", "--admins")
	require.NoError(t, err)
	assert.Contains(t, out, "0xwallet")
	assert.NotContains(t, out, "user-1")
}

func TestGrantRejectsBadAmount(t *testing.T) {
	db := filepath.Join(t.TempDir(), "credits.db")

	_, err := executeCLI(t, db, "grant", "user-1", "ten", "--actor", "admin")
	require.ErrorIs(t, err, credits.ErrInvalidAmount)

	_, err = executeCLI(t, db, "grant", "user-1", "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "actor" not set`)
}

func TestBalanceUnknownAccount(t *testing.T) {
	db := filepath.Join(t.TempDir(), "credits.db")

	_, err := executeCLI(t, db, "balance", "nobody")
	require.ErrorIs(t, err, credits.ErrAccountNotFound)
}

func TestReservationsEmpty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "credits.db")

	out, err := executeCLI(t, db, "reservations", "--state", "refund_failed")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGeneratorEcho(t *testing.T) {
	f := newGeneratorFactory("", http.DefaultClient)
	gen, err := f("plan", json.RawMessage(`{"prompt":"x"}`))
	require.NoError(t, err)

	out, err := gen.Generate(context.Background())
	require.NoError(t, err)
	m, ok := out.(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, "plan", m["action"])
}

func TestGeneratorUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/generate" {
			body, _ := io.ReadAll(r.Body)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"echo":` + string(body) + `}`))
			return
		}
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	f := newGeneratorFactory(srv.URL+"/", srv.Client())

	gen, err := f("generate", json.RawMessage(`{"n":1}`))
	require.NoError(t, err)
	out, err := gen.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"echo": map[string]any{"n": float64(1)}}, out)

	gen, err = f("audit", nil)
	require.NoError(t, err)
	_, err = gen.Generate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestLoadConfigEnv(t *testing.T) {
	t.Setenv("CREDITS_STORE_DRIVER", "postgres")
	t.Setenv("CREDITS_STRIPE_WEBHOOK_SECRET", "whsec_test")
	t.Setenv("CREDITS_ACTION_TIMEOUT", "30s")

	cfg, err := loadConfig(newViper(), "")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "whsec_test", cfg.Stripe.WebhookSecret)
	assert.Equal(t, "30s", cfg.ActionTimeout.String())
	assert.Equal(t, ":8080", cfg.Addr)
	assert.True(t, cfg.Metrics)
}
