package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// config is the resolved server configuration. Keys map to CREDITS_*
// environment variables with dots replaced by underscores, e.g.
// store.dsn is CREDITS_STORE_DSN.
type config struct {
	Addr     string `mapstructure:"addr"`
	LogLevel string `mapstructure:"log_level"`

	Store struct {
		Driver   string `mapstructure:"driver"`
		DSN      string `mapstructure:"dsn"`
		Database string `mapstructure:"database"`
	} `mapstructure:"store"`

	Stripe struct {
		WebhookSecret string `mapstructure:"webhook_secret"`
		APIKey        string `mapstructure:"api_key"`
	} `mapstructure:"stripe"`

	NOWPayments struct {
		IPNSecret string `mapstructure:"ipn_secret"`
	} `mapstructure:"nowpayments"`

	CreditTable   string        `mapstructure:"credit_table"`
	ActionTimeout time.Duration `mapstructure:"action_timeout"`
	RefundTimeout time.Duration `mapstructure:"refund_timeout"`
	Metrics       bool          `mapstructure:"metrics"`

	Generator struct {
		UpstreamURL string `mapstructure:"upstream_url"`
	} `mapstructure:"generator"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.database", "")
	v.SetDefault("stripe.webhook_secret", "")
	v.SetDefault("stripe.api_key", "")
	v.SetDefault("nowpayments.ipn_secret", "")
	v.SetDefault("credit_table", "")
	v.SetDefault("action_timeout", 60*time.Second)
	v.SetDefault("refund_timeout", 10*time.Second)
	v.SetDefault("metrics", true)
	v.SetDefault("generator.upstream_url", "")

	v.SetEnvPrefix("credits")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// loadConfig reads the optional config file and unmarshals the result.
func loadConfig(v *viper.Viper, path string) (*config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
