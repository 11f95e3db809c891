// ABOUTME: outbox command group
// ABOUTME: Inspect entries waiting for delivery and those that gave up

package main

import (
	"github.com/spf13/cobra"
)

func newOutboxCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect the delivery queue",
	}
	cmd.PersistentFlags().IntVar(&limit, "limit", 50, "maximum entries to show")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "due",
			Short: "List entries due for a delivery attempt now",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				user, err := a.user()
				if err != nil {
					return err
				}
				entries, err := a.hub.Outbox.ListDue(cmd.Context(), user, a.now(), limit)
				if err != nil {
					return err
				}
				renderOutbox(cmd.OutOrStdout(), "Due for Delivery", entries)
				return nil
			},
		},
		&cobra.Command{
			Use:   "failed",
			Short: "List entries that gave up",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				user, err := a.user()
				if err != nil {
					return err
				}
				entries, err := a.hub.Outbox.ListFailed(cmd.Context(), user, limit)
				if err != nil {
					return err
				}
				renderOutbox(cmd.OutOrStdout(), "Failed Deliveries", entries)
				return nil
			},
		},
	)
	return cmd
}
