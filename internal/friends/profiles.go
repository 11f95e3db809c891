// ABOUTME: Friend profile persistence
// ABOUTME: Idempotent upsert by user id, lookups by id and normalized handle

package friends

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/2389/homebase/internal/store"
)

const profileColumns = `user_id, display_name, handle, avatar_url, created_at, updated_at`

// UpsertProfile creates or replaces the profile for in.UserID, keeping the
// original created_at. Returns the stored profile.
func (s *Store) UpsertProfile(ctx context.Context, in ProfileInput) (*Profile, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.DisplayName = strings.TrimSpace(in.DisplayName)
	if in.UserID == "" || in.DisplayName == "" {
		return nil, ErrInvalidProfile
	}
	handle := NormalizeHandle(in.Handle)
	now := store.FormatTime(s.now())

	_, err := s.db.Exec(ctx, `
		INSERT INTO friend_profiles (user_id, display_name, handle, avatar_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = excluded.display_name,
			handle = excluded.handle,
			avatar_url = excluded.avatar_url,
			updated_at = excluded.updated_at
	`, in.UserID, in.DisplayName, store.NullString(handle), store.NullString(in.AvatarURL), now, now)
	if err != nil {
		if handle != "" && store.IsConstraintViolation(err) {
			return nil, ErrHandleTaken
		}
		return nil, fmt.Errorf("upserting profile: %w", err)
	}

	s.logger.Debug("profile upserted", "user_id", in.UserID)
	return s.GetProfile(ctx, in.UserID)
}

// GetProfile returns the profile for userID or store.ErrNotFound.
func (s *Store) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	p, err := store.Get(ctx, s.db, scanProfile,
		`SELECT `+profileColumns+` FROM friend_profiles WHERE user_id = ?`, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("getting profile: %w", err)
	}
	return p, nil
}

// GetProfileByHandle looks a profile up by handle. The input is normalized
// first, so "@Alice" finds "alice".
func (s *Store) GetProfileByHandle(ctx context.Context, handle string) (*Profile, error) {
	handle = NormalizeHandle(handle)
	if handle == "" {
		return nil, store.ErrNotFound
	}
	p, err := store.Get(ctx, s.db, scanProfile,
		`SELECT `+profileColumns+` FROM friend_profiles WHERE handle = ?`, handle)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("getting profile by handle: %w", err)
	}
	return p, nil
}

// maxInArgs bounds the ids bound into one IN list
const maxInArgs = 500

// ListProfiles returns the profiles of the given users, or every profile when
// none are given, ordered by user id. Unknown and repeated ids are skipped.
func (s *Store) ListProfiles(ctx context.Context, userIDs ...string) ([]*Profile, error) {
	if len(userIDs) == 0 {
		return s.selectProfiles(ctx, "", nil)
	}

	ids := slices.Clone(userIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	var profiles []*Profile
	for chunk := range slices.Chunk(ids, maxInArgs) {
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		batch, err := s.selectProfiles(ctx, ` WHERE user_id IN (`+store.Placeholders(len(chunk))+`)`, args)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, batch...)
	}
	return profiles, nil
}

func (s *Store) selectProfiles(ctx context.Context, where string, args []any) ([]*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM friend_profiles` + where + ` ORDER BY user_id`
	profiles, err := store.Select(ctx, s.db, scanProfile, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	return profiles, nil
}

// DisplayNames maps each user id that has a profile to its display name.
func (s *Store) DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	names := make(map[string]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}
	profiles, err := s.ListProfiles(ctx, userIDs...)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		names[p.UserID] = p.DisplayName
	}
	return names, nil
}

func scanProfile(sc store.Scanner) (*Profile, error) {
	var p Profile
	var handle, avatar sql.NullString
	var createdAt, updatedAt string
	if err := sc.Scan(&p.UserID, &p.DisplayName, &handle, &avatar, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.Handle = handle.String
	p.AvatarURL = avatar.String

	var err error
	if p.CreatedAt, err = store.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if p.UpdatedAt, err = store.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
