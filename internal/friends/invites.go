// ABOUTME: Friend invite state machine
// ABOUTME: pending -> accepted|declined|revoked, with accept creating both friendship rows atomically

package friends

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/2389/homebase/internal/store"
)

const inviteColumns = `id, from_user_id, to_user_id, status, message, created_at, updated_at, responded_at`

// CreateInvite records a pending invite from in.FromUserID to in.ToUserID.
// Multiple pending invites between the same pair are allowed.
func (s *Store) CreateInvite(ctx context.Context, in NewInvite) (*Invite, error) {
	in.FromUserID = strings.TrimSpace(in.FromUserID)
	in.ToUserID = strings.TrimSpace(in.ToUserID)
	if in.FromUserID == "" || in.ToUserID == "" {
		return nil, ErrInvalidInvite
	}
	if in.FromUserID == in.ToUserID {
		return nil, ErrSelfInvite
	}

	friends, err := s.AreFriends(ctx, in.FromUserID, in.ToUserID)
	if err != nil {
		return nil, err
	}
	if friends {
		return nil, ErrAlreadyFriends
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating invite id: %w", err)
	}
	now := s.now().UTC()
	inv := &Invite{
		ID:         id.String(),
		FromUserID: in.FromUserID,
		ToUserID:   in.ToUserID,
		Status:     InvitePending,
		Message:    in.Message,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO friend_invites (id, from_user_id, to_user_id, status, message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, inv.ID, inv.FromUserID, inv.ToUserID, string(inv.Status), store.NullString(inv.Message),
		store.FormatTime(now), store.FormatTime(now))
	if err != nil {
		return nil, fmt.Errorf("creating invite: %w", err)
	}

	s.logger.Info("friend invite created", "invite_id", inv.ID, "from", inv.FromUserID, "to", inv.ToUserID)
	return inv, nil
}

// GetInvite returns the invite with id or store.ErrNotFound.
func (s *Store) GetInvite(ctx context.Context, id string) (*Invite, error) {
	return getInvite(ctx, s.db, id)
}

func getInvite(ctx context.Context, q store.Execer, id string) (*Invite, error) {
	inv, err := store.Get(ctx, q, scanInvite, `SELECT `+inviteColumns+` FROM friend_invites WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("getting invite: %w", err)
	}
	return inv, nil
}

// ListIncomingInvites returns invites addressed to userID, newest first.
// With no statuses given every status is included.
func (s *Store) ListIncomingInvites(ctx context.Context, userID string, statuses ...InviteStatus) ([]*Invite, error) {
	return s.listInvites(ctx, "to_user_id", userID, statuses)
}

// ListOutgoingInvites returns invites sent by userID, newest first.
// With no statuses given every status is included.
func (s *Store) ListOutgoingInvites(ctx context.Context, userID string, statuses ...InviteStatus) ([]*Invite, error) {
	return s.listInvites(ctx, "from_user_id", userID, statuses)
}

// listInvites filters on column, which is always one of the two constants above.
func (s *Store) listInvites(ctx context.Context, column, userID string, statuses []InviteStatus) ([]*Invite, error) {
	query := `SELECT ` + inviteColumns + ` FROM friend_invites WHERE ` + column + ` = ?`
	args := []any{userID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + store.Placeholders(len(statuses)) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY created_at DESC, id DESC`

	invites, err := store.Select(ctx, s.db, scanInvite, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing invites: %w", err)
	}
	return invites, nil
}

// AcceptInvite moves a pending invite to accepted and creates both friendship
// rows in the same transaction. actingUser must be the invitee unless empty.
// Returns false when nothing changed: unknown invite, not pending, or wrong actor.
func (s *Store) AcceptInvite(ctx context.Context, inviteID, actingUser string) (bool, error) {
	return s.respond(ctx, inviteID, actingUser, InviteAccepted)
}

// DeclineInvite moves a pending invite to declined. actingUser must be the
// invitee unless empty.
func (s *Store) DeclineInvite(ctx context.Context, inviteID, actingUser string) (bool, error) {
	return s.respond(ctx, inviteID, actingUser, InviteDeclined)
}

// RevokeInvite moves a pending invite to revoked. actingUser must be the
// sender unless empty.
func (s *Store) RevokeInvite(ctx context.Context, inviteID, actingUser string) (bool, error) {
	return s.respond(ctx, inviteID, actingUser, InviteRevoked)
}

func (s *Store) respond(ctx context.Context, inviteID, actingUser string, to InviteStatus) (bool, error) {
	now := store.FormatTime(s.now())
	changed := false

	err := s.db.Transaction(ctx, func(tx store.Execer) error {
		inv, err := getInvite(ctx, tx, inviteID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if inv.Status != InvitePending {
			return nil
		}

		actor := inv.ToUserID
		if to == InviteRevoked {
			actor = inv.FromUserID
		}
		if actingUser != "" && actingUser != actor {
			return nil
		}

		// Conditional on pending so a concurrent responder cannot win twice
		res, err := tx.Exec(ctx, `
			UPDATE friend_invites
			SET status = ?, updated_at = ?, responded_at = ?
			WHERE id = ? AND status = 'pending'
		`, string(to), now, now, inviteID)
		if err != nil {
			return fmt.Errorf("updating invite: %w", err)
		}
		if store.RowsAffected(res) == 0 {
			return nil
		}

		if to == InviteAccepted {
			for _, pair := range [][2]string{{inv.FromUserID, inv.ToUserID}, {inv.ToUserID, inv.FromUserID}} {
				if err := upsertFriendship(ctx, tx, pair[0], pair[1], inv.ID, now); err != nil {
					return err
				}
			}
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, err
	}

	if changed {
		s.logger.Info("friend invite answered", "invite_id", inviteID, "status", string(to))
	} else {
		s.logger.Debug("friend invite unchanged", "invite_id", inviteID, "wanted", string(to))
	}
	return changed, nil
}

// upsertFriendship writes one accepted row, keeping created_at if the row exists.
func upsertFriendship(ctx context.Context, tx store.Execer, userID, friendID, inviteID, now string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO friendships (user_id, friend_user_id, status, source_invite_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, friend_user_id) DO UPDATE SET
			status = excluded.status,
			source_invite_id = excluded.source_invite_id,
			updated_at = excluded.updated_at
	`, userID, friendID, FriendshipAccepted, inviteID, now, now)
	if err != nil {
		return fmt.Errorf("upserting friendship %s -> %s: %w", userID, friendID, err)
	}
	return nil
}

func scanInvite(sc store.Scanner) (*Invite, error) {
	var inv Invite
	var status string
	var message, respondedAt sql.NullString
	var createdAt, updatedAt string
	if err := sc.Scan(&inv.ID, &inv.FromUserID, &inv.ToUserID, &status, &message,
		&createdAt, &updatedAt, &respondedAt); err != nil {
		return nil, err
	}
	inv.Status = InviteStatus(status)
	inv.Message = message.String

	var err error
	if inv.CreatedAt, err = store.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if inv.UpdatedAt, err = store.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	if inv.RespondedAt, err = store.ParseNullTime(respondedAt); err != nil {
		return nil, err
	}
	return &inv, nil
}

