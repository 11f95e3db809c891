// ABOUTME: profile command group
// ABOUTME: Set and show the public profile friends see

package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/homebase/internal/friends"
	"github.com/2389/homebase/internal/store"
)

func newProfileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage profiles",
	}
	cmd.AddCommand(newProfileSetCmd(a), newProfileShowCmd(a))
	return cmd
}

func newProfileSetCmd(a *app) *cobra.Command {
	var in friends.ProfileInput

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Create or update your profile",
		Example: `  homebase profile set --name "Alice Liddell" --handle @alice
  homebase --user bob profile set --name Bob --avatar https://example.com/bob.png`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := a.user()
			if err != nil {
				return err
			}
			in.UserID = user

			p, err := a.hub.Friends.UpsertProfile(cmd.Context(), in)
			if errors.Is(err, friends.ErrHandleTaken) {
				return fmt.Errorf("handle %q is already taken", in.Handle)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			color.New(color.FgGreen).Fprintf(out, "✓ Saved profile for %s\n", p.UserID)
			renderProfile(out, p)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.DisplayName, "name", "", "display name (required)")
	cmd.Flags().StringVar(&in.Handle, "handle", "", "unique handle, with or without a leading @")
	cmd.Flags().StringVar(&in.AvatarURL, "avatar", "", "avatar URL")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newProfileShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [user-id | @handle]",
		Short: "Show a profile (default: your own)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var (
				p   *friends.Profile
				err error
			)
			switch {
			case len(args) == 1 && len(args[0]) > 1 && args[0][0] == '@':
				p, err = a.hub.Friends.GetProfileByHandle(ctx, args[0])
			case len(args) == 1:
				p, err = a.hub.Friends.GetProfile(ctx, args[0])
			default:
				user, uerr := a.user()
				if uerr != nil {
					return uerr
				}
				p, err = a.hub.Friends.GetProfile(ctx, user)
			}
			if errors.Is(err, store.ErrNotFound) {
				return errors.New("profile not found")
			}
			if err != nil {
				return err
			}

			renderProfile(cmd.OutOrStdout(), p)
			return nil
		},
	}
}
