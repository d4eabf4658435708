package main

import (
	"context"
	"fmt"
	"log/slog"

	credits "github.com/xraph/credits"
	audithook "github.com/xraph/credits/audit_hook"
	"github.com/xraph/credits/credit"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/store/mongo"
	"github.com/xraph/credits/store/postgres"
	"github.com/xraph/credits/store/sqlite"
)

// openStore connects the configured backend.
func openStore(ctx context.Context, cfg *config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "", "memory":
		return memory.New(), nil
	case "postgres", "pg":
		return postgres.Open(ctx, cfg.Store.DSN)
	case "sqlite":
		return sqlite.Open(ctx, cfg.Store.DSN)
	case "mongo", "mongodb":
		return mongo.Open(ctx, cfg.Store.DSN, cfg.Store.Database)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// app bundles what every command needs.
type app struct {
	cfg    *config
	logger *slog.Logger
	store  store.Store
	engine *credits.Engine
	table  *credit.Loader
}

// wireApp opens the store and builds the engine. Extra options are
// appended after the defaults.
func wireApp(ctx context.Context, cfg *config, extra ...credits.Option) (*app, error) {
	logger := newLogger(cfg.LogLevel)

	s, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}

	opts := []credits.Option{
		credits.WithLogger(logger),
		credits.WithActionTimeout(cfg.ActionTimeout),
		credits.WithRefundTimeout(cfg.RefundTimeout),
		credits.WithPlugin(audithook.New(audithook.LogRecorder(logger))),
	}

	a := &app{cfg: cfg, logger: logger, store: s}
	if cfg.CreditTable != "" {
		loader, err := credit.NewLoader(cfg.CreditTable, logger)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		a.table = loader
		opts = append(opts, credits.WithCreditTable(loader.Table()))
	}

	a.engine = credits.New(s, append(opts, extra...)...)
	return a, nil
}

// start migrates the store and runs plugin init hooks.
func (a *app) start(ctx context.Context) error {
	return a.engine.Start(ctx)
}

// close shuts down plugins and the store.
func (a *app) close() {
	if err := a.engine.Stop(); err != nil {
		a.logger.Warn("engine stop", "error", err)
	}
}
