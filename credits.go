package credits

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/credits/account"
	"github.com/xraph/credits/credit"
	"github.com/xraph/credits/idempotency"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/store"
)

// DefaultActionTimeout bounds a single generation call.
const DefaultActionTimeout = 60 * time.Second

// DefaultRefundTimeout bounds the compensating credit of a failed action.
const DefaultRefundTimeout = 10 * time.Second

const instrumentationName = "github.com/xraph/credits"

// Engine reconciles the credit ledger with payment processors and meters
// generation actions against it.
type Engine struct {
	store   store.Store
	guard   *idempotency.Guard
	plugins *plugin.Registry
	logger  *slog.Logger
	tracer  trace.Tracer

	table      atomic.Pointer[credit.Table]
	allotments map[account.Origin]account.Allotment

	// Configuration
	actionTimeout  time.Duration
	refundTimeout  time.Duration
	guardCacheSize int

	// tableErr holds a rejected WithCreditTable argument until New logs it.
	tableErr error
}

// New creates a new Engine instance.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:          s,
		plugins:        plugin.NewRegistry(),
		logger:         slog.Default(),
		tracer:         otel.Tracer(instrumentationName),
		allotments:     account.DefaultAllotments(),
		actionTimeout:  DefaultActionTimeout,
		refundTimeout:  DefaultRefundTimeout,
		guardCacheSize: idempotency.DefaultCacheSize,
	}
	e.table.Store(credit.DefaultTable())

	for _, opt := range opts {
		opt(e)
	}
	if e.tableErr != nil {
		e.logger.Error("credit table rejected, using built-in prices", "error", e.tableErr)
	}

	e.guard = idempotency.NewGuard(s, e.guardCacheSize)
	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithCreditTable replaces the built-in price list. The table is copied
// and normalized; a table that fails normalization is ignored and logged.
func WithCreditTable(t *credit.Table) Option {
	return func(e *Engine) {
		if t == nil {
			return
		}
		nt, err := normalizeTable(t)
		if err != nil {
			e.tableErr = err
			return
		}
		e.tableErr = nil
		e.table.Store(nt)
	}
}

// WithActionTimeout bounds each generation call.
func WithActionTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.actionTimeout = d
		}
	}
}

// WithRefundTimeout bounds the refund of a failed action.
func WithRefundTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.refundTimeout = d
		}
	}
}

// WithSignupAllotment sets the starting balance for accounts of origin.
func WithSignupAllotment(origin account.Origin, a account.Allotment) Option {
	return func(e *Engine) {
		e.allotments[origin] = a
	}
}

// WithTracer sets the tracer used for metered action spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithGuardCacheSize sets how many processed event ids are cached in memory.
func WithGuardCacheSize(n int) Option {
	return func(e *Engine) {
		e.guardCacheSize = n
	}
}

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("credits engine started",
		"action_timeout", e.actionTimeout,
		"guard_cache_size", e.guardCacheSize,
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop() error {
	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// Store returns the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Logger returns the engine logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// CreditTable returns the price list in effect.
func (e *Engine) CreditTable() *credit.Table { return e.table.Load() }

// SetCreditTable swaps the price list. It is safe to call while payments
// are being applied; each payment sees one table.
// A table that fails normalization is logged and the current one kept.
func (e *Engine) SetCreditTable(t *credit.Table) {
	if t == nil {
		return
	}
	nt, err := normalizeTable(t)
	if err != nil {
		e.logger.Error("credit table rejected, keeping current prices", "error", err)
		return
	}
	e.table.Store(nt)
	e.logger.Info("credit table replaced",
		"stripe_prices", len(t.Stripe),
		"nowpayments_amounts", len(t.NOWPayments),
	)
}

func normalizeTable(t *credit.Table) (*credit.Table, error) {
	nt := t.Clone()
	if err := nt.Normalize(); err != nil {
		return nil, err
	}
	return nt, nil
}

// ActionTimeout returns the generation timeout.
func (e *Engine) ActionTimeout() time.Duration { return e.actionTimeout }

// Ping checks that the store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	if err := e.store.Ping(ctx); err != nil {
		return Unavailable(err)
	}
	return nil
}
