package extension

import (
	"time"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/httpapi"
	"github.com/xraph/credits/plugin"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/webhook"
)

// Option configures the credits Forge extension.
type Option func(*Extension)

// WithStore sets the store for the credits engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes a credits.Option through to the underlying engine.
func WithEngineOption(opt credits.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers a credits plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, credits.WithPlugin(p))
	}
}

// WithVerifier serves webhooks for the verifier's provider, replacing the
// verifier built from config.
func WithVerifier(v webhook.Verifier) Option {
	return func(e *Extension) {
		e.verifiers = append(e.verifiers, v)
	}
}

// WithGenerators enables the metered action routes.
func WithGenerators(f httpapi.GeneratorFactory) Option {
	return func(e *Extension) {
		e.generators = f
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes prevents HTTP route registration.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for credits routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithActionTimeout bounds each generation call.
func WithActionTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.ActionTimeout = d }
}

// WithRefundTimeout bounds the refund of a failed action.
func WithRefundTimeout(d time.Duration) Option {
	return func(e *Extension) { e.config.RefundTimeout = d }
}

// WithGuardCacheSize sets how many processed event ids are cached in memory.
func WithGuardCacheSize(n int) Option {
	return func(e *Extension) { e.config.GuardCacheSize = n }
}

// WithCreditTablePath loads the credit table from a YAML file and watches it.
func WithCreditTablePath(path string) Option {
	return func(e *Extension) { e.config.CreditTablePath = path }
}

// WithGroveDatabase sets the name of the grove.DB to resolve from the DI container.
// The extension will auto-construct the appropriate store backend (postgres/sqlite/mongo)
// based on the grove driver type. Pass an empty string to use the default (unnamed) grove.DB.
func WithGroveDatabase(name string) Option {
	return func(e *Extension) {
		e.config.GroveDatabase = name
		e.useGrove = true
	}
}
