// Package extension provides the Forge extension adapter for credits.
//
// It implements the forge.Extension interface to integrate the credits
// engine into a Forge application with store discovery, DI registration,
// route mounting and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.credits" or "credits" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/credit"
	"github.com/xraph/credits/httpapi"
	"github.com/xraph/credits/observability"
	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/memory"
	"github.com/xraph/credits/store/mongo"
	"github.com/xraph/credits/store/postgres"
	"github.com/xraph/credits/store/sqlite"
	"github.com/xraph/credits/webhook"
	"github.com/xraph/credits/webhook/nowpayments"
	"github.com/xraph/credits/webhook/stripe"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "credits"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Credit ledger with payment reconciliation and metered actions"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the credits engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *credits.Engine
	store      store.Store
	engineOpts []credits.Option
	verifiers  []webhook.Verifier
	generators httpapi.GeneratorFactory
	useGrove   bool
	loader     *credit.Loader
	stopWatch  func()
}

// New creates a new credits Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying credits engine.
// This is nil until Register is called.
func (e *Extension) Engine() *credits.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration, resolves
// the store, builds the engine, registers it in the DI container and
// mounts the HTTP routes.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil && e.useGrove {
		s, err := e.resolveGroveStore(fapp)
		if err != nil {
			return err
		}
		e.store = s
	}
	// Use memory store if no store was provided or discovered.
	if e.store == nil {
		e.store = memory.New()
	}

	opts, err := e.buildEngineOpts(fapp)
	if err != nil {
		return err
	}
	e.engine = credits.New(e.store, opts...)

	if err := vessel.Provide(fapp.Container(), func() (*credits.Engine, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}

	if e.config.DisableRoutes {
		return nil
	}
	return e.mountRoutes(fapp)
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("credits: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	if e.loader != nil {
		if err := e.watchCreditTable(); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.stopWatch != nil {
		e.stopWatch()
		e.stopWatch = nil
	}
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("credits: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildEngineOpts constructs credits.Option values from the resolved config.
func (e *Extension) buildEngineOpts(fapp forge.App) ([]credits.Option, error) {
	opts := make([]credits.Option, 0, len(e.engineOpts)+5)

	opts = append(opts,
		credits.WithActionTimeout(e.config.ActionTimeout),
		credits.WithRefundTimeout(e.config.RefundTimeout),
		credits.WithGuardCacheSize(e.config.GuardCacheSize),
	)

	if e.config.CreditTablePath != "" {
		loader, err := credit.NewLoader(e.config.CreditTablePath, nil)
		if err != nil {
			return nil, fmt.Errorf("credits: load credit table: %w", err)
		}
		e.loader = loader
		opts = append(opts, credits.WithCreditTable(loader.Table()))
	}

	if m := fapp.Metrics(); m != nil {
		opts = append(opts, credits.WithPlugin(
			observability.NewMetricsExtension(observability.ForgeFactory{F: m}),
		))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts, nil
}

// mountRoutes serves the HTTP API under BasePath on the forge router.
func (e *Extension) mountRoutes(fapp forge.App) error {
	hopts := []httpapi.Option{httpapi.WithLogger(e.engine.Logger())}

	var stripeOpts []stripe.Option
	if webhook.Configured(e.config.StripeAPIKey) {
		stripeOpts = append(stripeOpts, stripe.WithSessionFetcher(stripe.NewSessionFetcher(e.config.StripeAPIKey)))
	}
	hopts = append(hopts,
		httpapi.WithVerifier(stripe.New(e.config.StripeWebhookSecret, stripeOpts...)),
		httpapi.WithVerifier(nowpayments.New(e.config.NOWPaymentsIPNSecret)),
	)
	for _, v := range e.verifiers {
		hopts = append(hopts, httpapi.WithVerifier(v))
	}
	if e.generators != nil {
		hopts = append(hopts, httpapi.WithGenerators(e.generators))
	}

	base := strings.TrimRight(e.config.BasePath, "/")
	h := httpapi.New(e.engine, hopts...)
	if err := fapp.Router().Handle(base, http.StripPrefix(base, h)); err != nil {
		return fmt.Errorf("credits: mount routes at %s: %w", base, err)
	}

	e.Logger().Debug("credits: routes mounted", forge.F("base_path", base))
	return nil
}

// watchCreditTable hot reloads the credit table file into the engine.
func (e *Extension) watchCreditTable() error {
	e.loader.OnChange(e.engine.SetCreditTable)
	stop, err := e.loader.Watch()
	if err != nil {
		return fmt.Errorf("credits: watch credit table: %w", err)
	}
	e.stopWatch = stop
	return nil
}

// resolveGroveStore builds a store on the grove.DB registered in the container.
func (e *Extension) resolveGroveStore(fapp forge.App) (store.Store, error) {
	var (
		db  *grove.DB
		err error
	)
	if e.config.GroveDatabase != "" {
		db, err = vessel.InjectNamed[*grove.DB](fapp.Container(), e.config.GroveDatabase)
	} else {
		db, err = vessel.Inject[*grove.DB](fapp.Container())
	}
	if err != nil {
		return nil, fmt.Errorf("credits: resolve grove database %q: %w", e.config.GroveDatabase, err)
	}

	switch name := db.Driver().Name(); name {
	case "pg":
		return postgres.New(db), nil
	case "sqlite":
		return sqlite.New(db), nil
	case "mongo":
		return mongo.New(db), nil
	default:
		return nil, fmt.Errorf("credits: unsupported grove driver %q", name)
	}
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("credits: configuration is required but not found in config files; " +
				"ensure 'extensions.credits' or 'credits' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}
	if e.config.GroveDatabase != "" {
		e.useGrove = true
	}

	e.Logger().Debug("credits: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("action_timeout", e.config.ActionTimeout),
		forge.F("refund_timeout", e.config.RefundTimeout),
		forge.F("guard_cache_size", e.config.GuardCacheSize),
		forge.F("credit_table_path", e.config.CreditTablePath),
		forge.F("stripe_configured", webhook.Configured(e.config.StripeWebhookSecret)),
		forge.F("nowpayments_configured", webhook.Configured(e.config.NOWPaymentsIPNSecret)),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.credits" first (namespaced pattern).
	if cm.IsSet("extensions.credits") {
		if err := cm.Bind("extensions.credits", &cfg); err == nil {
			e.Logger().Debug("credits: loaded config from file",
				forge.F("key", "extensions.credits"),
			)
			return cfg, true
		}
		e.Logger().Warn("credits: failed to bind extensions.credits config",
			forge.F("error", "bind failed"),
		)
	}

	// Try top-level "credits" key.
	if cm.IsSet("credits") {
		if err := cm.Bind("credits", &cfg); err == nil {
			e.Logger().Debug("credits: loaded config from file",
				forge.F("key", "credits"),
			)
			return cfg, true
		}
		e.Logger().Warn("credits: failed to bind credits config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.ActionTimeout == 0 {
		cfg.ActionTimeout = defaults.ActionTimeout
	}
	if cfg.RefundTimeout == 0 {
		cfg.RefundTimeout = defaults.RefundTimeout
	}
	if cfg.GuardCacheSize == 0 {
		cfg.GuardCacheSize = defaults.GuardCacheSize
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
		}
	}
	fill(&yamlConfig.BasePath, programmaticConfig.BasePath)
	fill(&yamlConfig.CreditTablePath, programmaticConfig.CreditTablePath)
	fill(&yamlConfig.StripeWebhookSecret, programmaticConfig.StripeWebhookSecret)
	fill(&yamlConfig.StripeAPIKey, programmaticConfig.StripeAPIKey)
	fill(&yamlConfig.NOWPaymentsIPNSecret, programmaticConfig.NOWPaymentsIPNSecret)
	fill(&yamlConfig.GroveDatabase, programmaticConfig.GroveDatabase)

	// Duration/int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.ActionTimeout == 0 && programmaticConfig.ActionTimeout != 0 {
		yamlConfig.ActionTimeout = programmaticConfig.ActionTimeout
	}
	if yamlConfig.RefundTimeout == 0 && programmaticConfig.RefundTimeout != 0 {
		yamlConfig.RefundTimeout = programmaticConfig.RefundTimeout
	}
	if yamlConfig.GuardCacheSize == 0 && programmaticConfig.GuardCacheSize != 0 {
		yamlConfig.GuardCacheSize = programmaticConfig.GuardCacheSize
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
