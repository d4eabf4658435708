package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
	// Registers the "pg" migration executor.
	_ "github.com/xraph/grove/drivers/pgdriver/pgmigrate"
)

// Migrations is the grove migration group for the credits store.
var Migrations = migrate.NewGroup("credits")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_credits_accounts",
			Version: "20250601000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credits_accounts (
    id                      TEXT PRIMARY KEY,
    credits                 BIGINT NOT NULL DEFAULT 0 CHECK (credits >= 0),
    free_actions            BIGINT NOT NULL DEFAULT 0 CHECK (free_actions >= 0),
    billing_identity        TEXT NOT NULL DEFAULT '',
    subscription_id         TEXT NOT NULL DEFAULT '',
    subscription_status     TEXT NOT NULL DEFAULT '',
    subscription_plan_id    TEXT NOT NULL DEFAULT '',
    subscription_period_end TIMESTAMPTZ,
    is_admin                BOOLEAN NOT NULL DEFAULT FALSE,
    origin                  TEXT NOT NULL DEFAULT 'email',
    created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_credits_accounts_billing_identity
    ON credits_accounts (billing_identity) WHERE billing_identity != '';
CREATE INDEX IF NOT EXISTS idx_credits_accounts_admin
    ON credits_accounts (is_admin) WHERE is_admin;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credits_accounts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_credits_processed_events",
			Version: "20250601000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credits_processed_events (
    event_id     TEXT PRIMARY KEY,
    provider     TEXT NOT NULL DEFAULT '',
    account_id   TEXT NOT NULL DEFAULT '',
    credits      BIGINT NOT NULL DEFAULT 0,
    processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_credits_processed_events_account
    ON credits_processed_events (account_id, processed_at DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credits_processed_events`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_credits_reservations",
			Version: "20250601000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credits_reservations (
    id           TEXT PRIMARY KEY,
    account_id   TEXT NOT NULL,
    action       TEXT NOT NULL,
    credits      BIGINT NOT NULL DEFAULT 0,
    free_actions BIGINT NOT NULL DEFAULT 0,
    state        TEXT NOT NULL DEFAULT 'reserved',
    error        TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_credits_reservations_account
    ON credits_reservations (account_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_credits_reservations_state
    ON credits_reservations (state, created_at DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credits_reservations`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_credits_grants",
			Version: "20250601000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS credits_grants (
    id         TEXT PRIMARY KEY,
    account_id TEXT NOT NULL,
    admin_id   TEXT NOT NULL,
    credits    BIGINT NOT NULL CHECK (credits > 0),
    reason     TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_credits_grants_account
    ON credits_grants (account_id, created_at DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS credits_grants`)
				return err
			},
		},
	)
}
