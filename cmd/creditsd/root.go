package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	credits "github.com/xraph/credits"
)

// cli carries the state shared by all commands of one invocation.
type cli struct {
	v          *viper.Viper
	configPath string
}

func newRootCmd() *cobra.Command {
	c := &cli{v: newViper()}

	rootCmd := &cobra.Command{
		Use:           "creditsd",
		Short:         "Credit ledger server and operator commands",
		Long:          "creditsd serves processor webhooks, balances, admin grants and metered actions, and lets operators inspect and adjust the ledger directly.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (yaml, json or toml)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("store-driver", "memory", "store backend: memory, postgres, sqlite, mongo")
	flags.String("store-dsn", "", "store connection string or sqlite file path")
	_ = c.v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = c.v.BindPFlag("store.driver", flags.Lookup("store-driver"))
	_ = c.v.BindPFlag("store.dsn", flags.Lookup("store-dsn"))

	rootCmd.AddCommand(
		newServeCmd(c),
		newMigrateCmd(c),
		newAccountsCmd(c),
		newBalanceCmd(c),
		newGrantCmd(c),
		newSetAdminCmd(c),
		newReservationsCmd(c),
	)

	return rootCmd
}

// open loads config, wires the app and migrates the store.
func (c *cli) open(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(c.v, c.configPath)
	if err != nil {
		return nil, err
	}
	return c.openConfig(cmd, cfg)
}

func (c *cli) openConfig(cmd *cobra.Command, cfg *config, extra ...credits.Option) (*app, error) {
	a, err := wireApp(cmd.Context(), cfg, extra...)
	if err != nil {
		return nil, err
	}
	if err := a.start(cmd.Context()); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}
