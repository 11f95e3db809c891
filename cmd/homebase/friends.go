// ABOUTME: friends command group
// ABOUTME: List confirmed friends and end friendships

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newFriendsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "friends",
		Short: "Manage friends",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List your friends",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				user, err := a.user()
				if err != nil {
					return err
				}
				list, err := a.hub.Friends.ListFriends(cmd.Context(), user)
				if err != nil {
					return err
				}
				renderFriends(cmd.OutOrStdout(), list)
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <user-id>",
			Short: "End a friendship",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				user, err := a.user()
				if err != nil {
					return err
				}
				removed, err := a.hub.Friends.RemoveFriendship(cmd.Context(), user, args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("you are not friends with %s", args[0])
				}
				color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ Removed %s from your friends\n", args[0])
				return nil
			},
		},
	)
	return cmd
}
