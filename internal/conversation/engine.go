// ABOUTME: Conversation and inbox queries derived from the message cache
// ABOUTME: Per-peer history pages, latest timestamps, unread counts and read receipts

package conversation

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/homebase/internal/messaging"
	"github.com/2389/homebase/internal/store"
)

// DisplayNamer resolves user ids to display names. Users without a name are
// absent from the returned map.
type DisplayNamer interface {
	DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error)
}

// ReadMarker records read receipts
type ReadMarker interface {
	MarkRead(ctx context.Context, messageID, viewer string, at time.Time) (bool, error)
}

// InboxEntry summarizes the conversation with one peer
type InboxEntry struct {
	PeerUserID      string
	PeerDisplayName string // empty when the peer has no profile
	LastMessage     *messaging.Message
	UnreadCount     int
}

// Engine answers conversation queries over the friend_messages table
type Engine struct {
	db       store.Execer
	messages ReadMarker
	names    DisplayNamer
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a query engine. names may be nil, in which case inbox entries
// carry no display names.
func New(db store.Execer, messages ReadMarker, names DisplayNamer, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		db:       db,
		messages: messages,
		names:    names,
		logger:   logger.With("component", "conversation"),
		now:      time.Now,
	}
}

// SetClock overrides the time used for read receipts, for tests
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// ListConversationMessages returns the messages exchanged between viewer and
// peer, oldest first. With since set only messages created after it are
// returned. limit <= 0 means no limit; otherwise the first limit messages of
// that ordering are returned, so callers page forward by passing the last
// created_at they saw.
func (e *Engine) ListConversationMessages(ctx context.Context, viewer, peer string, since *time.Time, limit int) ([]*messaging.Message, error) {
	query := `SELECT ` + messaging.MessageColumns + ` FROM friend_messages
		WHERE ((sender_user_id = ? AND recipient_user_id = ?) OR (sender_user_id = ? AND recipient_user_id = ?))`
	args := []any{viewer, peer, peer, viewer}
	if since != nil {
		query += ` AND created_at > ?`
		args = append(args, store.FormatTime(*since))
	}
	query += ` ORDER BY created_at ASC, id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	msgs, err := store.Select(ctx, e.db, messaging.ScanMessage, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing conversation: %w", err)
	}
	return msgs, nil
}

// GetLatestMessageCreatedAt returns the newest created_at between viewer and
// peer. The bool is false when they have exchanged no messages.
func (e *Engine) GetLatestMessageCreatedAt(ctx context.Context, viewer, peer string) (time.Time, bool, error) {
	var latest sql.NullString
	err := e.db.QueryRow(ctx, `
		SELECT MAX(created_at) FROM friend_messages
		WHERE (sender_user_id = ? AND recipient_user_id = ?) OR (sender_user_id = ? AND recipient_user_id = ?)
	`, viewer, peer, peer, viewer).Scan(&latest)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading latest message time: %w", err)
	}
	if !latest.Valid {
		return time.Time{}, false, nil
	}
	t, err := store.ParseTime(latest.String)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// inboxQuery picks the newest message per peer and counts unread messages the
// peer sent to the viewer. ?1 is the viewer.
const inboxQuery = `
WITH mine AS (
	SELECT m.*,
		CASE WHEN m.sender_user_id = ?1 THEN m.recipient_user_id ELSE m.sender_user_id END AS peer_id
	FROM friend_messages m
	WHERE m.sender_user_id = ?1 OR m.recipient_user_id = ?1
),
ranked AS (
	SELECT mine.*,
		ROW_NUMBER() OVER (PARTITION BY peer_id ORDER BY created_at DESC, id DESC) AS rn
	FROM mine
),
unread AS (
	SELECT sender_user_id AS unread_peer, COUNT(*) AS unread_count
	FROM friend_messages
	WHERE recipient_user_id = ?1 AND read_at IS NULL
	GROUP BY sender_user_id
)
SELECT peer_id, COALESCE(unread_count, 0), ` + messaging.MessageColumns + `
FROM ranked
LEFT JOIN unread ON unread_peer = peer_id
WHERE rn = 1
ORDER BY created_at DESC, id DESC`

// ListInbox returns one entry per peer the viewer has exchanged messages
// with, most recent conversation first. limit <= 0 means no limit.
func (e *Engine) ListInbox(ctx context.Context, viewer string, limit int) ([]*InboxEntry, error) {
	query := inboxQuery
	args := []any{viewer}
	if limit > 0 {
		query += ` LIMIT ?2`
		args = append(args, limit)
	}

	entries, err := store.Select(ctx, e.db, scanInboxEntry, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing inbox: %w", err)
	}

	if e.names != nil && len(entries) > 0 {
		peers := make([]string, len(entries))
		for i, entry := range entries {
			peers[i] = entry.PeerUserID
		}
		names, err := e.names.DisplayNames(ctx, peers)
		if err != nil {
			return nil, fmt.Errorf("resolving inbox names: %w", err)
		}
		for _, entry := range entries {
			entry.PeerDisplayName = names[entry.PeerUserID]
		}
	}
	return entries, nil
}

// MarkRead marks a message read by viewer now. Returns false when viewer is
// not the recipient or the message was already read.
func (e *Engine) MarkRead(ctx context.Context, messageID, viewer string) (bool, error) {
	return e.messages.MarkRead(ctx, messageID, viewer, e.now())
}

// prefixScanner feeds leading columns into extra destinations before handing
// the rest to a message scanner.
type prefixScanner struct {
	sc     store.Scanner
	prefix []any
}

func (p prefixScanner) Scan(dest ...any) error {
	all := make([]any, 0, len(p.prefix)+len(dest))
	all = append(all, p.prefix...)
	all = append(all, dest...)
	return p.sc.Scan(all...)
}

func scanInboxEntry(sc store.Scanner) (*InboxEntry, error) {
	var entry InboxEntry
	msg, err := messaging.ScanMessage(prefixScanner{sc: sc, prefix: []any{&entry.PeerUserID, &entry.UnreadCount}})
	if err != nil {
		return nil, err
	}
	entry.LastMessage = msg
	return &entry, nil
}
