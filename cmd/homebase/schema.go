// ABOUTME: migrate and status commands
// ABOUTME: Report per-module schema versions and outbox backlog

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/2389/homebase/internal/hub"
)

func newMigrateCmd(a *app) *cobra.Command {
	var dry bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Bring every module's schema up to date",
		Long: `Migrate opens the database, applies any pending migrations for every
module and prints the resulting schema versions. Every other command does the
same bootstrap implicitly; migrate just makes it explicit.

With --dry-run nothing is migrated: the pending migrations of each module are
listed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dry {
				plan, err := hub.Plan(cmd.Context(), a.db, a.logger)
				if err != nil {
					return fmt.Errorf("planning migrations: %w", err)
				}
				renderPlan(cmd.OutOrStdout(), plan)
				return nil
			}

			mods, err := a.hub.Runner.Modules(cmd.Context())
			if err != nil {
				return fmt.Errorf("reading schema versions: %w", err)
			}
			renderModules(cmd.OutOrStdout(), mods)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dry, "dry-run", false, "list pending migrations without applying them")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show schema versions and outbox counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			mods, err := a.hub.Runner.Modules(ctx)
			if err != nil {
				return fmt.Errorf("reading schema versions: %w", err)
			}

			fromUser := ""
			if !all {
				if fromUser, err = a.user(); err != nil {
					return err
				}
			}
			counts, err := a.hub.Outbox.CountByStatus(ctx, fromUser)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "\n  Database:  %s\n", a.cfg.Database.Path)
			if fromUser != "" {
				fmt.Fprintf(out, "  User:      %s\n", fromUser)
			}
			renderModules(out, mods)
			renderOutboxCounts(out, counts)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "count outbox entries for every sender")
	return cmd
}
