// ABOUTME: invite command group
// ABOUTME: Send, answer, withdraw and list friend invites

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/homebase/internal/friends"
)

func newInviteCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invite",
		Short: "Manage friend invites",
	}
	cmd.AddCommand(
		newInviteSendCmd(a),
		newInviteRespondCmd(a, "accept", "Accept an invite sent to you", a.hubAccept),
		newInviteRespondCmd(a, "decline", "Decline an invite sent to you", a.hubDecline),
		newInviteRespondCmd(a, "revoke", "Withdraw an invite you sent", a.hubRevoke),
		newInviteListCmd(a),
	)
	return cmd
}

func newInviteSendCmd(a *app) *cobra.Command {
	var message string

	cmd := &cobra.Command{
		Use:     "send <user-id>",
		Short:   "Invite a user to be your friend",
		Example: `  homebase invite send bob --message "it's alice from the climbing gym"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.user()
			if err != nil {
				return err
			}

			inv, err := a.hub.Friends.CreateInvite(cmd.Context(), friends.NewInvite{
				FromUserID: user,
				ToUserID:   args[0],
				Message:    message,
			})
			switch {
			case errors.Is(err, friends.ErrSelfInvite):
				return errors.New("you cannot invite yourself")
			case errors.Is(err, friends.ErrAlreadyFriends):
				return fmt.Errorf("you are already friends with %s", args[0])
			case err != nil:
				return err
			}

			out := cmd.OutOrStdout()
			color.New(color.FgGreen).Fprintf(out, "✓ Invited %s\n", inv.ToUserID)
			fmt.Fprintf(out, "  Invite ID:  %s\n", inv.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "note to include with the invite")
	return cmd
}

type respondFunc func(ctx context.Context, inviteID, actingUser string) (bool, error)

func (a *app) hubAccept(ctx context.Context, id, user string) (bool, error) {
	return a.hub.Friends.AcceptInvite(ctx, id, user)
}

func (a *app) hubDecline(ctx context.Context, id, user string) (bool, error) {
	return a.hub.Friends.DeclineInvite(ctx, id, user)
}

func (a *app) hubRevoke(ctx context.Context, id, user string) (bool, error) {
	return a.hub.Friends.RevokeInvite(ctx, id, user)
}

var respondPastTense = map[string]string{
	"accept":  "Accepted",
	"decline": "Declined",
	"revoke":  "Revoked",
}

func newInviteRespondCmd(a *app, verb, short string, respond respondFunc) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <invite-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := a.user()
			if err != nil {
				return err
			}

			ok, err := respond(cmd.Context(), args[0], user)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("cannot %s invite %s: it is unknown, no longer pending, or not yours to %s", verb, args[0], verb)
			}

			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ %s invite %s\n", respondPastTense[verb], args[0])
			return nil
		},
	}
}

func newInviteListCmd(a *app) *cobra.Command {
	var outgoing, all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invites sent to you (or by you with --outgoing)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := a.user()
			if err != nil {
				return err
			}

			var statuses []friends.InviteStatus
			if !all {
				statuses = []friends.InviteStatus{friends.InvitePending}
			}

			title := "Incoming Invites"
			list := a.hub.Friends.ListIncomingInvites
			if outgoing {
				title = "Outgoing Invites"
				list = a.hub.Friends.ListOutgoingInvites
			}

			invites, err := list(cmd.Context(), user, statuses...)
			if err != nil {
				return err
			}
			renderInvites(cmd.OutOrStdout(), title, invites)
			return nil
		},
	}
	cmd.Flags().BoolVar(&outgoing, "outgoing", false, "list invites you sent")
	cmd.Flags().BoolVar(&all, "all", false, "include answered and revoked invites")
	return cmd
}
