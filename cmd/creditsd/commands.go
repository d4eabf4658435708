package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	credits "github.com/xraph/credits"
	"github.com/xraph/credits/account"
	"github.com/xraph/credits/reservation"
)

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "migrated %s store\n", a.cfg.Store.Driver)
			return nil
		},
	}
}

func newAccountsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage accounts",
	}
	cmd.AddCommand(
		newAccountsCreateCmd(c),
		newAccountsListCmd(c),
	)
	return cmd
}

func newAccountsCreateCmd(c *cli) *cobra.Command {
	var origin string
	cmd := &cobra.Command{
		Use:   "create <account-id>",
		Short: "Create an account with its signup allotment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			acct, created, err := a.engine.EnsureAccount(cmd.Context(), args[0], account.Origin(origin))
			if err != nil {
				return err
			}
			verb := "exists"
			if created {
				verb = "created"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tcredits=%d\tfree_actions=%d\n",
				acct.ID, verb, acct.Credits, acct.FreeActions)
			return nil
		},
	}
	cmd.Flags().StringVar(&origin, "origin", string(account.OriginEmail), "signup origin: email or wallet")
	return cmd
}

func newAccountsListCmd(c *cli) *cobra.Command {
	var (
		admins bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			accts, err := a.store.ListAccounts(cmd.Context(), account.ListOpts{AdminsOnly: admins, Limit: limit})
			if err != nil {
				return err
			}
			for _, acct := range accts {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\tcredits=%d\tfree_actions=%d\tadmin=%t\n",
					acct.ID, acct.Credits, acct.FreeActions, acct.IsAdmin)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&admins, "admins", false, "only list administrators")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of accounts")
	return cmd
}

func newBalanceCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <account-id>",
		Short: "Print an account balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			b, err := a.engine.Balance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "credits=%d\tfree_actions=%d\n", b.Credits, b.FreeActions)
			return nil
		},
	}
}

func newGrantCmd(c *cli) *cobra.Command {
	var (
		actor  string
		reason string
	)
	cmd := &cobra.Command{
		Use:   "grant <account-id> <credits>",
		Short: "Grant credits to an account as an administrator",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("credits must be an integer: %w", credits.ErrInvalidAmount)
			}

			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			g, err := a.engine.Grant(cmd.Context(), credits.GrantInput{
				ActorID:   actor,
				AccountID: args[0],
				Credits:   amount,
				Reason:    reason,
			})
			if err != nil {
				return err
			}
			b, err := a.engine.Balance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\tgranted=%d\tcredits=%d\n", g.ID, g.Credits, b.Credits)
			return nil
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "administrator account id")
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded with the grant")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func newSetAdminCmd(c *cli) *cobra.Command {
	var revoke bool
	cmd := &cobra.Command{
		Use:   "set-admin <account-id>",
		Short: "Grant or revoke administrator rights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.engine.SetAdmin(cmd.Context(), args[0], !revoke); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\tadmin=%t\n", args[0], !revoke)
			return nil
		},
	}
	cmd.Flags().BoolVar(&revoke, "revoke", false, "remove administrator rights instead")
	return cmd
}

func newReservationsCmd(c *cli) *cobra.Command {
	var (
		accountID string
		state     string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "reservations",
		Short: "List metered action reservations, e.g. --state refund_failed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			rsvs, err := a.engine.ListReservations(cmd.Context(), reservation.ListOpts{
				AccountID: accountID,
				State:     reservation.State(state),
				Limit:     limit,
			})
			if err != nil {
				return err
			}
			for _, r := range rsvs {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\tcredits=%d\tfree_actions=%d\t%s\n",
					r.ID, r.AccountID, r.Action, r.State, r.Credits, r.FreeActions, r.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&accountID, "account", "", "only this account")
	cmd.Flags().StringVar(&state, "state", "", "only this state: reserved, committed, refunded, refund_failed")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of reservations")
	return cmd
}
