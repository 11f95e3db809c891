// ABOUTME: Message cache: durable copy of every friend message keyed by client id
// ABOUTME: Local inserts, the idempotent server merge, lookups and read receipts

package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/homebase/internal/store"
)

// Store is the message cache
type Store struct {
	db     store.Adapter
	logger *slog.Logger
	now    func() time.Time
}

// New creates a message cache over db. The module's migrations must already
// be applied.
func New(db store.Adapter, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "messages"),
		now:    time.Now,
	}
}

// SetClock overrides the time source, for tests
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// CreateLocalMessage stores a locally authored message as pending. If a
// message with the same client id already exists it is returned unchanged.
func (s *Store) CreateLocalMessage(ctx context.Context, in NewMessage) (*Message, error) {
	now := s.now()
	if err := in.normalize(now); err != nil {
		return nil, err
	}
	if err := insertLocal(ctx, s.db, in, now); err != nil {
		return nil, err
	}
	return s.GetByClientMessageID(ctx, in.ClientMessageID)
}

// insertLocal writes a pending local message, ignoring an existing client id.
// in must already be normalized.
func insertLocal(ctx context.Context, q store.Execer, in NewMessage, now time.Time) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating message id: %w", err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO friend_messages (
			id, client_message_id, sender_user_id, recipient_user_id, content_type, content,
			source, sync_state, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_message_id) DO NOTHING
	`, id.String(), in.ClientMessageID, in.SenderUserID, in.RecipientUserID, in.ContentType, in.Content,
		string(SourceLocal), string(SyncPending), store.FormatTime(in.CreatedAt), store.FormatTime(now))
	if err != nil {
		return fmt.Errorf("inserting local message: %w", err)
	}
	return nil
}

// UpsertFromServer merges a server copy of a message into the cache.
//
// New messages are stored as remote and synced. For an existing row the
// local/remote origin is kept, the row becomes synced, and server id and
// read_at are only filled where still empty. Merging the same payload again
// changes nothing, including updated_at.
func (s *Store) UpsertFromServer(ctx context.Context, p ServerMessage) (*Message, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	now := store.FormatTime(s.now())
	readAt := store.NullTime(p.ReadAt)

	// Matched by client id rather than ON CONFLICT: the payload id is also the
	// row id for remote messages and would trip the primary key first.
	err := s.db.Transaction(ctx, func(tx store.Execer) error {
		res, err := tx.Exec(ctx, `
			UPDATE friend_messages SET
				source = CASE WHEN source = 'local' THEN 'local' ELSE 'remote' END,
				updated_at = CASE
					WHEN sync_state <> 'synced'
					  OR server_message_id IS NULL
					  OR (read_at IS NULL AND ?1 IS NOT NULL)
					  OR last_error IS NOT NULL
					THEN ?2
					ELSE updated_at
				END,
				sync_state = 'synced',
				server_message_id = COALESCE(server_message_id, ?3),
				read_at = COALESCE(read_at, ?1),
				last_error = NULL
			WHERE client_message_id = ?4
		`, readAt, now, p.ID, p.ClientMessageID)
		if err != nil {
			return fmt.Errorf("merging server message: %w", err)
		}
		if store.RowsAffected(res) > 0 {
			return nil
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO friend_messages (
				id, client_message_id, sender_user_id, recipient_user_id, content_type, content,
				source, sync_state, server_message_id, created_at, read_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, p.ID, p.ClientMessageID, p.SenderUserID, p.RecipientUserID, p.ContentType, p.Content,
			string(SourceRemote), string(SyncSynced), p.ID, store.FormatTime(p.CreatedAt), readAt, now)
		if err != nil {
			return fmt.Errorf("inserting server message: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("server message merged", "client_message_id", p.ClientMessageID, "server_message_id", p.ID)
	return s.GetByClientMessageID(ctx, p.ClientMessageID)
}

// GetByID returns the message with the given row id or store.ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id string) (*Message, error) {
	return getMessage(ctx, s.db, `id = ?`, id)
}

// GetByClientMessageID returns the message with the given client id or
// store.ErrNotFound.
func (s *Store) GetByClientMessageID(ctx context.Context, clientMessageID string) (*Message, error) {
	return getMessage(ctx, s.db, `client_message_id = ?`, clientMessageID)
}

func getMessage(ctx context.Context, q store.Execer, where string, arg any) (*Message, error) {
	m, err := store.Get(ctx, q, ScanMessage, `SELECT `+MessageColumns+` FROM friend_messages WHERE `+where, arg)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("getting message: %w", err)
	}
	return m, nil
}

// MarkRead records that viewer read the message at the given time. Only the
// recipient can mark a message read and only the first read is kept.
// Returns false when nothing changed.
func (s *Store) MarkRead(ctx context.Context, messageID, viewer string, at time.Time) (bool, error) {
	res, err := s.db.Exec(ctx, `
		UPDATE friend_messages
		SET read_at = ?, updated_at = ?
		WHERE id = ? AND recipient_user_id = ? AND read_at IS NULL
	`, store.FormatTime(at), store.FormatTime(s.now()), messageID, viewer)
	if err != nil {
		return false, fmt.Errorf("marking message read: %w", err)
	}
	changed := store.RowsAffected(res) > 0
	if changed {
		s.logger.Debug("message marked read", "message_id", messageID, "viewer", viewer)
	}
	return changed, nil
}
