// ABOUTME: Outbound delivery queue for locally authored messages
// ABOUTME: Queue, due selection and the sent/retry/failed transitions, each atomic with the message cache

package messaging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/homebase/internal/store"
)

// OutboxStatus is the delivery state of an outbox entry
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxRetry   OutboxStatus = "retry"
	OutboxFailed  OutboxStatus = "failed"
	OutboxSent    OutboxStatus = "sent"
)

// DefaultDueLimit bounds ListDue and ListFailed when no limit is given
const DefaultDueLimit = 50

// OutboxEntry is the delivery bookkeeping for one unacknowledged local message
type OutboxEntry struct {
	ClientMessageID string
	FromUserID      string
	ToUserID        string
	ContentType     string
	Content         string
	Status          OutboxStatus
	Attempts        int
	NextAttemptAt   time.Time
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

const outboxColumns = `client_message_id, from_user_id, to_user_id, content_type, content,
	status, attempts, next_attempt_at, last_error, created_at, updated_at`

// Outbox schedules delivery of local messages
type Outbox struct {
	db     store.Adapter
	logger *slog.Logger
	now    func() time.Time
}

// NewOutbox creates an outbox over db. The module's migrations must already
// be applied.
func NewOutbox(db store.Adapter, logger *slog.Logger) *Outbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Outbox{
		db:     db,
		logger: logger.With("component", "outbox"),
		now:    time.Now,
	}
}

// SetClock overrides the time source used for updated_at, for tests
func (o *Outbox) SetClock(now func() time.Time) {
	o.now = now
}

// Queue stores the message as a pending local message (unless its client id
// already exists) and schedules it for delivery at now. Queueing an
// undelivered message again resets its entry to pending with zero attempts.
//
// Returns ErrAlreadyDelivered when the server already acknowledged the client
// id and ErrNotLocal when the id belongs to a message received from the server.
func (o *Outbox) Queue(ctx context.Context, in NewMessage, now time.Time) (*OutboxEntry, error) {
	if err := in.normalize(now); err != nil {
		return nil, err
	}
	ts := store.FormatTime(now)

	var entry *OutboxEntry
	err := o.db.Transaction(ctx, func(tx store.Execer) error {
		if err := insertLocal(ctx, tx, in, now); err != nil {
			return err
		}

		msg, err := getMessage(ctx, tx, `client_message_id = ?`, in.ClientMessageID)
		if err != nil {
			return err
		}
		if msg.Source != SourceLocal {
			return ErrNotLocal
		}
		if msg.SyncState == SyncSynced {
			return ErrAlreadyDelivered
		}

		// A previously failed message goes back to pending
		if msg.SyncState != SyncPending || msg.LastError != "" {
			if _, err := tx.Exec(ctx, `
				UPDATE friend_messages
				SET sync_state = 'pending', last_error = NULL, updated_at = ?
				WHERE client_message_id = ?
			`, ts, msg.ClientMessageID); err != nil {
				return fmt.Errorf("resetting message state: %w", err)
			}
		}

		// The cached message is authoritative for the payload
		_, err = tx.Exec(ctx, `
			INSERT INTO friend_outbox (
				client_message_id, from_user_id, to_user_id, content_type, content,
				status, attempts, next_attempt_at, last_error, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, 'pending', 0, ?, NULL, ?, ?)
			ON CONFLICT(client_message_id) DO UPDATE SET
				status = 'pending',
				attempts = 0,
				next_attempt_at = excluded.next_attempt_at,
				last_error = NULL,
				updated_at = excluded.updated_at
		`, msg.ClientMessageID, msg.SenderUserID, msg.RecipientUserID, msg.ContentType, msg.Content,
			ts, ts, ts)
		if err != nil {
			return fmt.Errorf("queueing outbox entry: %w", err)
		}

		entry, err = getEntry(ctx, tx, msg.ClientMessageID)
		return err
	})
	if err != nil {
		return nil, err
	}

	o.logger.Debug("message queued", "client_message_id", entry.ClientMessageID, "to", entry.ToUserID)
	return entry, nil
}

// Get returns the outbox entry for a client message id or store.ErrNotFound.
func (o *Outbox) Get(ctx context.Context, clientMessageID string) (*OutboxEntry, error) {
	return getEntry(ctx, o.db, clientMessageID)
}

func getEntry(ctx context.Context, q store.Execer, clientMessageID string) (*OutboxEntry, error) {
	e, err := store.Get(ctx, q, scanEntry,
		`SELECT `+outboxColumns+` FROM friend_outbox WHERE client_message_id = ?`, clientMessageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("getting outbox entry: %w", err)
	}
	return e, nil
}

// ListDue returns pending and retry entries whose next attempt is at or before
// now, earliest first. Entries whose message the server already merged are
// skipped; Settle finishes them. fromUser "" means every sender; limit <= 0
// means DefaultDueLimit.
func (o *Outbox) ListDue(ctx context.Context, fromUser string, now time.Time, limit int) ([]*OutboxEntry, error) {
	if limit <= 0 {
		limit = DefaultDueLimit
	}
	query := `SELECT ` + outboxColumns + ` FROM friend_outbox o
		WHERE status IN ('pending', 'retry') AND next_attempt_at <= ?
		AND NOT EXISTS (
			SELECT 1 FROM friend_messages m
			WHERE m.client_message_id = o.client_message_id AND m.sync_state = 'synced'
		)`
	args := []any{store.FormatTime(now)}
	if fromUser != "" {
		query += ` AND from_user_id = ?`
		args = append(args, fromUser)
	}
	query += ` ORDER BY next_attempt_at ASC, created_at ASC, client_message_id ASC LIMIT ?`
	args = append(args, limit)

	entries, err := store.Select(ctx, o.db, scanEntry, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing due outbox entries: %w", err)
	}
	return entries, nil
}

// ListFailed returns entries that gave up, most recently failed first.
func (o *Outbox) ListFailed(ctx context.Context, fromUser string, limit int) ([]*OutboxEntry, error) {
	if limit <= 0 {
		limit = DefaultDueLimit
	}
	query := `SELECT ` + outboxColumns + ` FROM friend_outbox WHERE status = 'failed'`
	var args []any
	if fromUser != "" {
		query += ` AND from_user_id = ?`
		args = append(args, fromUser)
	}
	query += ` ORDER BY updated_at DESC, client_message_id ASC LIMIT ?`
	args = append(args, limit)

	entries, err := store.Select(ctx, o.db, scanEntry, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing failed outbox entries: %w", err)
	}
	return entries, nil
}

// MarkSent records a server acknowledgment: the message becomes synced with
// ack fields filled in where the cache has none (created_at takes the server's
// value when given), and the outbox entry is deleted. Both happen in one
// transaction. Returns false when no entry exists, e.g. already sent.
func (o *Outbox) MarkSent(ctx context.Context, clientMessageID string, ack Ack) (bool, error) {
	sent := false
	err := o.db.Transaction(ctx, func(tx store.Execer) error {
		var err error
		sent, err = completeEntry(ctx, tx, clientMessageID, ack, o.now())
		return err
	})
	if err != nil {
		return false, err
	}

	if sent {
		o.logger.Info("message delivered", "client_message_id", clientMessageID, "server_message_id", ack.ServerMessageID)
	}
	return sent, nil
}

// completeEntry deletes the outbox entry and marks its message synced with the
// ack applied. It is the only path that removes an entry.
func completeEntry(ctx context.Context, tx store.Execer, clientMessageID string, ack Ack, now time.Time) (bool, error) {
	res, err := tx.Exec(ctx, `DELETE FROM friend_outbox WHERE client_message_id = ?`, clientMessageID)
	if err != nil {
		return false, fmt.Errorf("deleting outbox entry: %w", err)
	}
	if store.RowsAffected(res) == 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx, `
		UPDATE friend_messages
		SET sync_state = 'synced',
			server_message_id = COALESCE(server_message_id, ?),
			created_at = COALESCE(?, created_at),
			read_at = COALESCE(read_at, ?),
			last_error = NULL,
			updated_at = ?
		WHERE client_message_id = ?
	`, store.NullString(ack.ServerMessageID), store.NullTime(ack.CreatedAt), store.NullTime(ack.ReadAt),
		store.FormatTime(now), clientMessageID)
	if err != nil {
		return false, fmt.Errorf("marking message synced: %w", err)
	}
	return true, nil
}

// Settle finishes entries whose message the server already merged, as if they
// had been marked sent. fromUser "" settles every sender. Returns the number
// of entries removed.
func (o *Outbox) Settle(ctx context.Context, fromUser string) (int, error) {
	query := `SELECT o.client_message_id FROM friend_outbox o
		JOIN friend_messages m ON m.client_message_id = o.client_message_id
		WHERE m.sync_state = 'synced'`
	var args []any
	if fromUser != "" {
		query += ` AND o.from_user_id = ?`
		args = append(args, fromUser)
	}
	ids, err := store.Select(ctx, o.db, func(sc store.Scanner) (string, error) {
		var id string
		err := sc.Scan(&id)
		return id, err
	}, query, args...)
	if err != nil {
		return 0, fmt.Errorf("listing merged outbox entries: %w", err)
	}

	settled := 0
	for _, id := range ids {
		ok, err := o.MarkSent(ctx, id, Ack{})
		if err != nil {
			return settled, err
		}
		if ok {
			settled++
		}
	}
	return settled, nil
}

// MarkRetry records a failed attempt that will be retried at nextAttemptAt.
// The error is mirrored onto the message. Returns false unless the entry is
// pending or retry.
func (o *Outbox) MarkRetry(ctx context.Context, clientMessageID string, nextAttemptAt time.Time, errText string) (bool, error) {
	changed, err := o.markAttempt(ctx, clientMessageID, OutboxRetry, nextAttemptAt, errText)
	if changed {
		o.logger.Warn("delivery will be retried",
			"client_message_id", clientMessageID,
			"next_attempt_at", nextAttemptAt,
			"error", errText,
		)
	}
	return changed, err
}

// MarkFailed gives up on delivery. The entry is kept for diagnostics and the
// message is marked failed. Returns false unless the entry is pending or retry.
func (o *Outbox) MarkFailed(ctx context.Context, clientMessageID, errText string, now time.Time) (bool, error) {
	changed, err := o.markAttempt(ctx, clientMessageID, OutboxFailed, now, errText)
	if changed {
		o.logger.Error("delivery failed permanently", "client_message_id", clientMessageID, "error", errText)
	}
	return changed, err
}

// markAttempt records a failed attempt. An entry whose message the server
// already merged is completed instead and reports false.
func (o *Outbox) markAttempt(ctx context.Context, clientMessageID string, to OutboxStatus, next time.Time, errText string) (bool, error) {
	now := o.now()
	ts := store.FormatTime(now)
	changed, settled := false, false

	err := o.db.Transaction(ctx, func(tx store.Execer) error {
		var state string
		err := tx.QueryRow(ctx, `SELECT sync_state FROM friend_messages WHERE client_message_id = ?`,
			clientMessageID).Scan(&state)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("reading message state: %w", err)
		}
		if SyncState(state) == SyncSynced {
			settled, err = completeEntry(ctx, tx, clientMessageID, Ack{}, now)
			return err
		}

		res, err := tx.Exec(ctx, `
			UPDATE friend_outbox
			SET status = ?, attempts = attempts + 1, next_attempt_at = ?, last_error = ?, updated_at = ?
			WHERE client_message_id = ? AND status IN ('pending', 'retry')
		`, string(to), store.FormatTime(next), store.NullString(errText), ts, clientMessageID)
		if err != nil {
			return fmt.Errorf("updating outbox entry: %w", err)
		}
		if store.RowsAffected(res) == 0 {
			return nil
		}

		_, err = tx.Exec(ctx, `
			UPDATE friend_messages
			SET sync_state = 'failed', last_error = ?, updated_at = ?
			WHERE client_message_id = ?
		`, store.NullString(errText), ts, clientMessageID)
		if err != nil {
			return fmt.Errorf("mirroring delivery error onto message: %w", err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if settled {
		o.logger.Info("outbox entry settled by server merge", "client_message_id", clientMessageID)
	}
	return changed, nil
}

// CountByStatus counts outbox entries per status. fromUser "" counts every sender.
func (o *Outbox) CountByStatus(ctx context.Context, fromUser string) (map[OutboxStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM friend_outbox`
	var args []any
	if fromUser != "" {
		query += ` WHERE from_user_id = ?`
		args = append(args, fromUser)
	}
	query += ` GROUP BY status`

	type statusCount struct {
		status OutboxStatus
		n      int
	}
	rows, err := store.Select(ctx, o.db, func(sc store.Scanner) (statusCount, error) {
		var row statusCount
		var st string
		err := sc.Scan(&st, &row.n)
		row.status = OutboxStatus(st)
		return row, err
	}, query, args...)
	if err != nil {
		return nil, fmt.Errorf("counting outbox entries: %w", err)
	}

	counts := make(map[OutboxStatus]int, len(rows))
	for _, r := range rows {
		counts[r.status] = r.n
	}
	return counts, nil
}

func scanEntry(sc store.Scanner) (*OutboxEntry, error) {
	var e OutboxEntry
	var status string
	var lastError sql.NullString
	var next, createdAt, updatedAt string
	if err := sc.Scan(&e.ClientMessageID, &e.FromUserID, &e.ToUserID, &e.ContentType, &e.Content,
		&status, &e.Attempts, &next, &lastError, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	e.Status = OutboxStatus(status)
	e.LastError = lastError.String

	var err error
	if e.NextAttemptAt, err = store.ParseTime(next); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = store.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = store.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}
