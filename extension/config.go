package extension

import "time"

// Config holds the credits extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.credits" or "credits" keys).
type Config struct {
	// DisableRoutes prevents HTTP route registration.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for credits routes (default: "/credits").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// ActionTimeout bounds a single generation call (default: 60s).
	ActionTimeout time.Duration `json:"action_timeout" mapstructure:"action_timeout" yaml:"action_timeout"`

	// RefundTimeout bounds the compensating credit after a failed
	// generation (default: 10s).
	RefundTimeout time.Duration `json:"refund_timeout" mapstructure:"refund_timeout" yaml:"refund_timeout"`

	// GuardCacheSize is the number of processed event ids remembered
	// in-process in front of the store (default: 4096).
	GuardCacheSize int `json:"guard_cache_size" mapstructure:"guard_cache_size" yaml:"guard_cache_size"`

	// CreditTablePath points at a YAML credit table. When set, the table is
	// loaded on start and reloaded whenever the file changes.
	CreditTablePath string `json:"credit_table_path" mapstructure:"credit_table_path" yaml:"credit_table_path"`

	// StripeWebhookSecret enables POST /webhooks/stripe.
	StripeWebhookSecret string `json:"stripe_webhook_secret" mapstructure:"stripe_webhook_secret" yaml:"stripe_webhook_secret"`

	// StripeAPIKey lets the verifier fetch checkout sessions whose payload
	// carries no line items.
	StripeAPIKey string `json:"stripe_api_key" mapstructure:"stripe_api_key" yaml:"stripe_api_key"`

	// NOWPaymentsIPNSecret enables POST /webhooks/nowpayments.
	NOWPaymentsIPNSecret string `json:"nowpayments_ipn_secret" mapstructure:"nowpayments_ipn_secret" yaml:"nowpayments_ipn_secret"`

	// GroveDatabase is the name of a grove.DB registered in the DI container.
	// When set, the extension resolves this named database and auto-constructs
	// the appropriate store based on the driver type (pg/sqlite/mongo).
	// When empty and WithGroveDatabase was called, the default (unnamed) DB is used.
	GroveDatabase string `json:"grove_database" mapstructure:"grove_database" yaml:"grove_database"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:       "/credits",
		ActionTimeout:  60 * time.Second,
		RefundTimeout:  10 * time.Second,
		GuardCacheSize: 4096,
	}
}
