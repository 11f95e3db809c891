// ABOUTME: Terminal rendering for homebase command output
// ABOUTME: Colored headings and tab-aligned tables written to any io.Writer

package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/2389/homebase/internal/conversation"
	"github.com/2389/homebase/internal/friends"
	"github.com/2389/homebase/internal/hub"
	"github.com/2389/homebase/internal/messaging"
	"github.com/2389/homebase/internal/migrate"
	"github.com/2389/homebase/internal/syncer"
)

const previewLen = 40

func heading(w io.Writer, title string) {
	cyan := color.New(color.FgCyan)
	fmt.Fprintln(w)
	cyan.Fprintln(w, "  "+title)
	cyan.Fprintln(w, "  "+strings.Repeat("-", len([]rune(title))))
}

func empty(w io.Writer, what string) {
	fmt.Fprintf(w, "  (no %s)\n", what)
	fmt.Fprintln(w)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func truncate(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func when(t time.Time) string {
	return t.UTC().Format("Jan 02 15:04")
}

func renderModules(w io.Writer, mods []migrate.ModuleVersion) {
	heading(w, "Schema Versions")
	if len(mods) == 0 {
		empty(w, "modules")
		return
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "  MODULE\tVERSION")
	fmt.Fprintln(tw, "  ------\t-------")
	for _, m := range mods {
		fmt.Fprintf(tw, "  %s\t%d\n", m.ModuleID, m.Version)
	}
	tw.Flush()
	fmt.Fprintln(w)
}

func renderPlan(w io.Writer, plan []hub.PendingModule) {
	heading(w, "Pending Migrations")
	var rows int
	for _, p := range plan {
		rows += len(p.Migrations)
	}
	if rows == 0 {
		empty(w, "pending migrations")
		return
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "  MODULE\tFROM\tVERSION\tDESCRIPTION")
	fmt.Fprintln(tw, "  ------\t----\t-------\t-----------")
	for _, p := range plan {
		for _, m := range p.Migrations {
			fmt.Fprintf(tw, "  %s\t%d\t%d\t%s\n", p.ModuleID, p.Current, m.Version, m.Description)
		}
	}
	tw.Flush()
	fmt.Fprintln(w)
}

var outboxOrder = []messaging.OutboxStatus{
	messaging.OutboxPending,
	messaging.OutboxRetry,
	messaging.OutboxFailed,
}

func renderOutboxCounts(w io.Writer, counts map[messaging.OutboxStatus]int) {
	heading(w, "Outbox")
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)
	for _, status := range outboxOrder {
		n := counts[status]
		label := fmt.Sprintf("  %-8s %d\n", string(status)+":", n)
		switch {
		case n > 0 && status == messaging.OutboxFailed:
			red.Fprint(w, label)
		case n > 0 && status == messaging.OutboxRetry:
			yellow.Fprint(w, label)
		default:
			fmt.Fprint(w, label)
		}
	}
	fmt.Fprintln(w)
}

func renderProfile(w io.Writer, p *friends.Profile) {
	heading(w, "Profile")
	fmt.Fprintf(w, "  User ID:       %s\n", p.UserID)
	fmt.Fprintf(w, "  Display Name:  %s\n", p.DisplayName)
	if p.Handle != "" {
		fmt.Fprintf(w, "  Handle:        @%s\n", p.Handle)
	}
	if p.AvatarURL != "" {
		fmt.Fprintf(w, "  Avatar:        %s\n", p.AvatarURL)
	}
	fmt.Fprintf(w, "  Updated:       %s\n", when(p.UpdatedAt))
	fmt.Fprintln(w)
}

func renderInvites(w io.Writer, title string, invites []*friends.Invite) {
	heading(w, title)
	if len(invites) == 0 {
		empty(w, "invites")
		return
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "  ID\tFROM\tTO\tSTATUS\tCREATED\tMESSAGE")
	fmt.Fprintln(tw, "  --\t----\t--\t------\t-------\t-------")
	for _, inv := range invites {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			inv.ID, inv.FromUserID, inv.ToUserID, inv.Status, when(inv.CreatedAt), truncate(inv.Message, previewLen))
	}
	tw.Flush()
	fmt.Fprintln(w)
}

func renderFriends(w io.Writer, list []*friends.Friend) {
	heading(w, "Friends")
	if len(list) == 0 {
		empty(w, "friends")
		return
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "  USER\tNAME\tHANDLE\tSINCE")
	fmt.Fprintln(tw, "  ----\t----\t------\t-----")
	for _, f := range list {
		handle := "-"
		if f.Handle != "" {
			handle = "@" + f.Handle
		}
		name := f.DisplayName
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", f.UserID, name, handle, when(f.Since))
	}
	tw.Flush()
	fmt.Fprintln(w)
}

func renderInbox(w io.Writer, viewer string, entries []*conversation.InboxEntry) {
	heading(w, "Inbox")
	if len(entries) == 0 {
		empty(w, "conversations")
		return
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "  PEER\tUNREAD\tWHEN\tLAST MESSAGE")
	fmt.Fprintln(tw, "  ----\t------\t----\t------------")
	for _, e := range entries {
		peer := e.PeerUserID
		if e.PeerDisplayName != "" {
			peer = fmt.Sprintf("%s (%s)", e.PeerDisplayName, e.PeerUserID)
		}
		preview := truncate(e.LastMessage.Content, previewLen)
		if e.LastMessage.SenderUserID == viewer {
			preview = "you: " + preview
		}
		fmt.Fprintf(tw, "  %s\t%d\t%s\t%s\n", peer, e.UnreadCount, when(e.LastMessage.CreatedAt), preview)
	}
	tw.Flush()
	fmt.Fprintln(w)
}

func syncNote(m *messaging.Message) string {
	switch m.SyncState {
	case messaging.SyncPending:
		return "  [pending]"
	case messaging.SyncFailed:
		if m.LastError != "" {
			return "  [failed: " + truncate(m.LastError, previewLen) + "]"
		}
		return "  [failed]"
	default:
		return ""
	}
}

func renderConversation(w io.Writer, viewer, peer string, msgs []*messaging.Message) {
	heading(w, "Conversation with "+peer)
	if len(msgs) == 0 {
		empty(w, "messages")
		return
	}

	tw := newTable(w)
	for _, m := range msgs {
		who := m.SenderUserID
		if who == viewer {
			who = "you"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s%s\n", when(m.CreatedAt), who, m.Content, syncNote(m))
	}
	tw.Flush()
	fmt.Fprintln(w)
}

func renderOutbox(w io.Writer, title string, entries []*messaging.OutboxEntry) {
	heading(w, title)
	if len(entries) == 0 {
		empty(w, "entries")
		return
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "  CLIENT ID\tTO\tSTATUS\tATTEMPTS\tNEXT\tERROR")
	fmt.Fprintln(tw, "  ---------\t--\t------\t--------\t----\t-----")
	for _, e := range entries {
		errText := e.LastError
		if errText == "" {
			errText = "-"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%d\t%s\t%s\n",
			e.ClientMessageID, e.ToUserID, e.Status, e.Attempts, when(e.NextAttemptAt), truncate(errText, previewLen))
	}
	tw.Flush()
	fmt.Fprintln(w)
}

func renderIngest(w io.Writer, res syncer.IngestResult) {
	green := color.New(color.FgGreen)
	green.Fprintf(w, "✓ Merged %d message(s)\n", res.Merged)
	if res.Duplicate > 0 {
		fmt.Fprintf(w, "  skipped %d duplicate(s)\n", res.Duplicate)
	}
	if res.Invalid > 0 {
		color.New(color.FgYellow).Fprintf(w, "  dropped %d invalid payload(s)\n", res.Invalid)
	}
}
