// ABOUTME: Messaging commands: send, inbox, chat, read and ingest
// ABOUTME: Reads go through the conversation engine; writes go through the outbox and ingester

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/homebase/internal/messaging"
)

func newSendCmd(a *app) *cobra.Command {
	var (
		to, text, contentType, clientID string
		force                           bool
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Queue a message to a friend",
		Long: `Send stores the message locally and queues it for delivery. It shows up
in the conversation immediately as pending until the server acknowledges it.`,
		Example: `  homebase send --to bob --text "running late, 10 min"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			user, err := a.user()
			if err != nil {
				return err
			}

			if !force {
				ok, err := a.hub.Friends.AreFriends(ctx, user, to)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%s is not your friend (use --force to queue anyway)", to)
				}
			}

			entry, err := a.hub.Send(ctx, messaging.NewMessage{
				ClientMessageID: clientID,
				SenderUserID:    user,
				RecipientUserID: to,
				ContentType:     contentType,
				Content:         text,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			color.New(color.FgGreen).Fprintf(out, "✓ Queued message to %s\n", entry.ToUserID)
			fmt.Fprintf(out, "  Client ID:  %s\n", entry.ClientMessageID)
			return nil
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "recipient user id (required)")
	cmd.Flags().StringVar(&text, "text", "", "message text (required)")
	cmd.Flags().StringVar(&contentType, "content-type", messaging.DefaultContentType, "content type")
	cmd.Flags().StringVar(&clientID, "client-id", "", "client message id (default: generated)")
	cmd.Flags().BoolVar(&force, "force", false, "queue even if the recipient is not a friend")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func newInboxCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "List conversations with unread counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := a.user()
			if err != nil {
				return err
			}
			entries, err := a.hub.Conversations.ListInbox(cmd.Context(), user, limit)
			if err != nil {
				return err
			}
			renderInbox(cmd.OutOrStdout(), user, entries)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum conversations to show (0 for all)")
	return cmd
}

func newChatCmd(a *app) *cobra.Command {
	var (
		peer, since string
		limit       int
	)

	cmd := &cobra.Command{
		Use:     "chat",
		Short:   "Show the conversation with a peer",
		Example: `  homebase chat --peer bob --since 2024-05-01T00:00:00Z`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := a.user()
			if err != nil {
				return err
			}

			var sincePtr *time.Time
			if since != "" {
				t, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return fmt.Errorf("parsing --since: %w", err)
				}
				sincePtr = &t
			}

			msgs, err := a.hub.Conversations.ListConversationMessages(cmd.Context(), user, peer, sincePtr, limit)
			if err != nil {
				return err
			}
			renderConversation(cmd.OutOrStdout(), user, peer, msgs)
			return nil
		},
	}
	cmd.Flags().StringVar(&peer, "peer", "", "the other participant (required)")
	cmd.Flags().StringVar(&since, "since", "", "only messages created after this RFC 3339 time")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum messages to show (0 for all)")
	_ = cmd.MarkFlagRequired("peer")
	return cmd
}

func newReadCmd(a *app) *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Mark a message as read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, err := a.user()
			if err != nil {
				return err
			}
			ok, err := a.hub.Conversations.MarkRead(cmd.Context(), id, user)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if !ok {
				fmt.Fprintf(out, "  message %s was already read or is not addressed to you\n", id)
				return nil
			}
			color.New(color.FgGreen).Fprintf(out, "✓ Marked %s read\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "message id (required)")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func newIngestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file | ->",
		Short: "Merge server messages from a JSON file",
		Long: `Ingest reads a JSON array of server messages and merges each one into the
local cache. Messages already merged are left unchanged; invalid entries are
reported and skipped. Use - to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("opening %s: %w", args[0], err)
				}
				defer f.Close()
				r = f
			}

			var payloads []messaging.ServerMessage
			if err := json.NewDecoder(r).Decode(&payloads); err != nil {
				return fmt.Errorf("decoding server messages: %w", err)
			}

			res, err := a.hub.Ingester.IngestBatch(cmd.Context(), payloads)
			if err != nil {
				return err
			}
			renderIngest(cmd.OutOrStdout(), res)
			return nil
		},
	}
}
