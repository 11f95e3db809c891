// ABOUTME: Reciprocal friendship queries and removal
// ABOUTME: A pair counts as friends only when both directional rows are accepted

package friends

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/2389/homebase/internal/store"
)

// AreFriends reports whether both (a, b) and (b, a) rows exist and are accepted.
func (s *Store) AreFriends(ctx context.Context, a, b string) (bool, error) {
	if a == "" || b == "" || a == b {
		return false, nil
	}
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM friendships
		WHERE status = ?
		  AND ((user_id = ? AND friend_user_id = ?) OR (user_id = ? AND friend_user_id = ?))
	`, FriendshipAccepted, a, b, b, a).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking friendship: %w", err)
	}
	return n == 2, nil
}

// GetFriendship returns the directional row (userID -> friendUserID) or
// store.ErrNotFound.
func (s *Store) GetFriendship(ctx context.Context, userID, friendUserID string) (*Friendship, error) {
	f, err := store.Get(ctx, s.db, scanFriendship, `
		SELECT user_id, friend_user_id, status, source_invite_id, created_at, updated_at
		FROM friendships
		WHERE user_id = ? AND friend_user_id = ?
	`, userID, friendUserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("getting friendship: %w", err)
	}
	return f, nil
}

// RemoveFriendship deletes both directional rows in one transaction.
// Returns false when there was nothing to remove.
func (s *Store) RemoveFriendship(ctx context.Context, a, b string) (bool, error) {
	var removed int64
	err := s.db.Transaction(ctx, func(tx store.Execer) error {
		for _, pair := range [][2]string{{a, b}, {b, a}} {
			res, err := tx.Exec(ctx, `DELETE FROM friendships WHERE user_id = ? AND friend_user_id = ?`, pair[0], pair[1])
			if err != nil {
				return fmt.Errorf("removing friendship %s -> %s: %w", pair[0], pair[1], err)
			}
			removed += store.RowsAffected(res)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if removed > 0 {
		s.logger.Info("friendship removed", "user_id", a, "friend_user_id", b)
	}
	return removed > 0, nil
}

// ListFriends returns userID's confirmed friends with their profiles when
// present, oldest friendship first. Half-written pairs are excluded.
func (s *Store) ListFriends(ctx context.Context, userID string) ([]*Friend, error) {
	friends, err := store.Select(ctx, s.db, scanFriend, `
		SELECT f.friend_user_id, p.display_name, p.handle, p.avatar_url, f.source_invite_id, f.created_at
		FROM friendships f
		JOIN friendships r
		  ON r.user_id = f.friend_user_id
		 AND r.friend_user_id = f.user_id
		 AND r.status = ?
		LEFT JOIN friend_profiles p ON p.user_id = f.friend_user_id
		WHERE f.user_id = ? AND f.status = ?
		ORDER BY f.created_at ASC, f.friend_user_id ASC
	`, FriendshipAccepted, userID, FriendshipAccepted)
	if err != nil {
		return nil, fmt.Errorf("listing friends: %w", err)
	}
	return friends, nil
}

func scanFriendship(sc store.Scanner) (*Friendship, error) {
	var f Friendship
	var source sql.NullString
	var createdAt, updatedAt string
	if err := sc.Scan(&f.UserID, &f.FriendUserID, &f.Status, &source, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	f.SourceInviteID = source.String

	var err error
	if f.CreatedAt, err = store.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if f.UpdatedAt, err = store.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func scanFriend(sc store.Scanner) (*Friend, error) {
	var f Friend
	var name, handle, avatar, source sql.NullString
	var since string
	if err := sc.Scan(&f.UserID, &name, &handle, &avatar, &source, &since); err != nil {
		return nil, err
	}
	f.DisplayName = name.String
	f.Handle = handle.String
	f.AvatarURL = avatar.String
	f.SourceInviteID = source.String

	t, err := store.ParseTime(since)
	if err != nil {
		return nil, err
	}
	f.Since = t
	return &f, nil
}
