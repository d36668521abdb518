package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/PortNumber53/techpost-ai/internal/session"
)

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Inspect users",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <email>",
		Short: "Print a user's credits and VIP flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.accounts().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\tcredits=%d\tvip=%t\tcreated=%s\n",
				u.Email, u.Credits, u.IsVIP, u.CreatedAt.Format("2006-01-02"))
			return nil
		},
	})
	return cmd
}

func newVIPCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vip",
		Short: "Grant or revoke unlimited generation",
	}
	set := func(vip bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if err := a.accounts().SetVIP(cmd.Context(), args[0], vip); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s vip=%t\n", args[0], vip)
			return nil
		}
	}
	cmd.AddCommand(
		&cobra.Command{Use: "grant <email>", Short: "Make a user VIP", Args: cobra.ExactArgs(1), RunE: set(true)},
		&cobra.Command{Use: "revoke <email>", Short: "Remove VIP from a user", Args: cobra.ExactArgs(1), RunE: set(false)},
	)
	return cmd
}

func newCreditsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Adjust free credits",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set <email> <n>",
		Short: "Set a user's remaining credits",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("credits must be an integer: %w", err)
			}
			if err := a.accounts().SetCredits(cmd.Context(), args[0], n); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s credits=%d\n", args[0], n)
			return nil
		},
	})
	return cmd
}

func newSessionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Maintain login sessions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete expired sessions now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := session.NewManager(a.db, session.Options{Logger: a.logger})
			n, err := m.DeleteExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired sessions\n", n)
			return nil
		},
	})
	return cmd
}
