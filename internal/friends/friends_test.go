// ABOUTME: Tests for the friend graph store
// ABOUTME: Covers profiles, handle lookups, the invite state machine and reciprocal friendships

package friends

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/homebase/internal/migrate"
	"github.com/2389/homebase/internal/store"
)

// testClock hands out strictly increasing times one second apart
type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T) (*Store, store.Adapter) {
	t.Helper()
	db, err := store.NewSQLiteStore(store.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return newTestStoreOn(t, db), db
}

func newTestStoreOn(t *testing.T, db store.Adapter) *Store {
	t.Helper()
	_, err := migrate.NewRunner(db, nil).ApplyPending(context.Background(), ModuleID, Migrations())
	require.NoError(t, err)

	s := New(db, nil)
	clock := &testClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s.SetClock(clock.Now)
	return s
}

func mustInvite(t *testing.T, s *Store, from, to string) *Invite {
	t.Helper()
	inv, err := s.CreateInvite(context.Background(), NewInvite{FromUserID: from, ToUserID: to})
	require.NoError(t, err)
	return inv
}

func TestMigrations_Valid(t *testing.T) {
	require.NoError(t, migrate.Validate(Migrations()))
	assert.Equal(t, ModuleID, Module().ID)
}

func TestUpsertProfile(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	p, err := s.UpsertProfile(ctx, ProfileInput{UserID: "alice", DisplayName: "Alice", Handle: "@Alice"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.DisplayName)
	assert.Equal(t, "alice", p.Handle)
	created := p.CreatedAt

	p, err = s.UpsertProfile(ctx, ProfileInput{UserID: "alice", DisplayName: "Alice L.", AvatarURL: "https://example.com/a.png"})
	require.NoError(t, err)
	assert.Equal(t, "Alice L.", p.DisplayName)
	assert.Equal(t, "", p.Handle)
	assert.Equal(t, "https://example.com/a.png", p.AvatarURL)
	assert.True(t, created.Equal(p.CreatedAt), "created_at must survive an upsert")
	assert.True(t, p.UpdatedAt.After(created))

	all, err := s.ListProfiles(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsertProfile_Validation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertProfile(ctx, ProfileInput{UserID: "", DisplayName: "x"})
	assert.ErrorIs(t, err, ErrInvalidProfile)
	_, err = s.UpsertProfile(ctx, ProfileInput{UserID: "x", DisplayName: "  "})
	assert.ErrorIs(t, err, ErrInvalidProfile)
}

func TestUpsertProfile_HandleTaken(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertProfile(ctx, ProfileInput{UserID: "alice", DisplayName: "Alice", Handle: "ace"})
	require.NoError(t, err)

	_, err = s.UpsertProfile(ctx, ProfileInput{UserID: "bob", DisplayName: "Bob", Handle: "@ACE"})
	assert.ErrorIs(t, err, ErrHandleTaken)

	// Users without handles never collide
	_, err = s.UpsertProfile(ctx, ProfileInput{UserID: "carol", DisplayName: "Carol"})
	require.NoError(t, err)
	_, err = s.UpsertProfile(ctx, ProfileInput{UserID: "dave", DisplayName: "Dave"})
	require.NoError(t, err)
}

func TestGetProfileByHandle(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertProfile(ctx, ProfileInput{UserID: "alice", DisplayName: "Alice", Handle: "Ａｌｉｃｅ"})
	require.NoError(t, err)

	p, err := s.GetProfileByHandle(ctx, "@alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", p.UserID)

	_, err = s.GetProfileByHandle(ctx, "bob")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetProfileByHandle(ctx, "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetProfile_NotFound(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.GetProfile(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListProfilesAndDisplayNames(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"carol", "alice", "bob"} {
		_, err := s.UpsertProfile(ctx, ProfileInput{UserID: id, DisplayName: "name-" + id})
		require.NoError(t, err)
	}

	some, err := s.ListProfiles(ctx, "bob", "alice", "nobody")
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, "alice", some[0].UserID)
	assert.Equal(t, "bob", some[1].UserID)

	names, err := s.DisplayNames(ctx, []string{"carol", "nobody"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"carol": "name-carol"}, names)

	names, err = s.DisplayNames(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestListProfiles_ManyIDs(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ids := make([]string, 0, 3*maxInArgs)
	for i := range 3 * maxInArgs {
		ids = append(ids, fmt.Sprintf("user-%04d", i))
	}
	for _, id := range []string{"user-0001", "user-0750", "user-1499"} {
		_, err := s.UpsertProfile(ctx, ProfileInput{UserID: id, DisplayName: id})
		require.NoError(t, err)
	}
	ids = append(ids, "user-0750") // repeated ids are looked up once

	profiles, err := s.ListProfiles(ctx, ids...)
	require.NoError(t, err)
	require.Len(t, profiles, 3)
	assert.Equal(t, "user-0001", profiles[0].UserID)
	assert.Equal(t, "user-0750", profiles[1].UserID)
	assert.Equal(t, "user-1499", profiles[2].UserID)

	names, err := s.DisplayNames(ctx, ids)
	require.NoError(t, err)
	assert.Len(t, names, 3)
}

func TestCreateInvite(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	inv, err := s.CreateInvite(ctx, NewInvite{FromUserID: "alice", ToUserID: "bob", Message: "hey"})
	require.NoError(t, err)
	assert.NotEmpty(t, inv.ID)
	assert.Equal(t, InvitePending, inv.Status)
	assert.Nil(t, inv.RespondedAt)

	got, err := s.GetInvite(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "hey", got.Message)
	assert.True(t, inv.CreatedAt.Equal(got.CreatedAt))

	// Duplicate pending invites are allowed
	_, err = s.CreateInvite(ctx, NewInvite{FromUserID: "alice", ToUserID: "bob"})
	require.NoError(t, err)
}

func TestCreateInvite_Validation(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateInvite(ctx, NewInvite{FromUserID: "alice", ToUserID: "alice"})
	assert.ErrorIs(t, err, ErrSelfInvite)

	_, err = s.CreateInvite(ctx, NewInvite{FromUserID: "alice"})
	assert.ErrorIs(t, err, ErrInvalidInvite)

	inv := mustInvite(t, s, "alice", "bob")
	ok, err := s.AcceptInvite(ctx, inv.ID, "bob")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = s.CreateInvite(ctx, NewInvite{FromUserID: "bob", ToUserID: "alice"})
	assert.ErrorIs(t, err, ErrAlreadyFriends)

	invites, err := s.ListOutgoingInvites(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, invites, "rejected invites must not be written")
}

func TestGetInvite_NotFound(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.GetInvite(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAcceptInvite(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	inv := mustInvite(t, s, "alice", "bob")

	ok, err := s.AcceptInvite(ctx, inv.ID, "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetInvite(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InviteAccepted, got.Status)
	require.NotNil(t, got.RespondedAt)

	friends, err := s.AreFriends(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, friends)
	friends, err = s.AreFriends(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.True(t, friends)

	row, err := s.GetFriendship(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, inv.ID, row.SourceInviteID)
	assert.Equal(t, FriendshipAccepted, row.Status)
}

func TestAcceptInvite_OnlyFromPending(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	inv := mustInvite(t, s, "alice", "bob")
	ok, err := s.DeclineInvite(ctx, inv.ID, "bob")
	require.NoError(t, err)
	require.True(t, ok)

	before, err := s.GetInvite(ctx, inv.ID)
	require.NoError(t, err)

	ok, err = s.AcceptInvite(ctx, inv.ID, "bob")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.RevokeInvite(ctx, inv.ID, "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	after, err := s.GetInvite(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InviteDeclined, after.Status)
	assert.True(t, before.UpdatedAt.Equal(after.UpdatedAt))
	assert.True(t, before.RespondedAt.Equal(*after.RespondedAt))

	friends, err := s.AreFriends(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, friends)
}

func TestAcceptInvite_WrongActor(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	inv := mustInvite(t, s, "alice", "bob")

	ok, err := s.AcceptInvite(ctx, inv.ID, "alice")
	require.NoError(t, err)
	assert.False(t, ok, "sender cannot accept their own invite")

	ok, err = s.AcceptInvite(ctx, inv.ID, "mallory")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetInvite(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InvitePending, got.Status)

	// An empty actor is a system action and skips the actor check
	ok, err = s.AcceptInvite(ctx, inv.ID, "")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcceptInvite_Unknown(t *testing.T) {
	s, _ := newTestStore(t)

	ok, err := s.AcceptInvite(context.Background(), "nope", "bob")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAcceptInvite_Atomic(t *testing.T) {
	db, err := store.NewSQLiteStore(store.MemoryPath)
	require.NoError(t, err)
	defer db.Close()

	faulty := store.NewFaultyAdapter(db)
	s := newTestStoreOn(t, faulty)
	ctx := context.Background()

	inv := mustInvite(t, s, "alice", "bob")

	// Fail the second friendship row: invite update and first row must roll back
	faulty.FailOnAfter("INSERT INTO friendships", 1, nil)

	ok, err := s.AcceptInvite(ctx, inv.ID, "bob")
	require.ErrorIs(t, err, store.ErrInjected)
	assert.False(t, ok)

	got, err := s.GetInvite(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InvitePending, got.Status)
	assert.Nil(t, got.RespondedAt)

	_, err = s.GetFriendship(ctx, "alice", "bob")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Retrying succeeds once the fault is gone
	ok, err = s.AcceptInvite(ctx, inv.ID, "bob")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcceptInvite_PreservesFriendshipCreatedAt(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	// A leftover one-way row from an earlier friendship
	_, err := db.Exec(ctx, `
		INSERT INTO friendships (user_id, friend_user_id, status, source_invite_id, created_at, updated_at)
		VALUES ('alice', 'bob', 'accepted', 'old', '2020-01-01T00:00:00.000000000Z', '2020-01-01T00:00:00.000000000Z')
	`)
	require.NoError(t, err)

	friends, err := s.AreFriends(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, friends, "a partial pair is not a friendship")

	inv := mustInvite(t, s, "bob", "alice")
	ok, err := s.AcceptInvite(ctx, inv.ID, "alice")
	require.NoError(t, err)
	require.True(t, ok)

	row, err := s.GetFriendship(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, 2020, row.CreatedAt.Year())
	assert.Equal(t, inv.ID, row.SourceInviteID)
	assert.True(t, row.UpdatedAt.After(row.CreatedAt))

	friends, err = s.AreFriends(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.True(t, friends)
}

func TestDeclineAndRevoke_Actors(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	inv := mustInvite(t, s, "alice", "bob")

	ok, err := s.DeclineInvite(ctx, inv.ID, "alice")
	require.NoError(t, err)
	assert.False(t, ok, "only the invitee declines")

	ok, err = s.RevokeInvite(ctx, inv.ID, "bob")
	require.NoError(t, err)
	assert.False(t, ok, "only the sender revokes")

	ok, err = s.RevokeInvite(ctx, inv.ID, "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetInvite(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, InviteRevoked, got.Status)
	assert.NotNil(t, got.RespondedAt)
	assert.True(t, got.Status.Terminal())
}

func TestListInvites(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	first := mustInvite(t, s, "alice", "bob")
	second := mustInvite(t, s, "carol", "bob")
	_ = mustInvite(t, s, "bob", "dave")

	ok, err := s.DeclineInvite(ctx, first.ID, "bob")
	require.NoError(t, err)
	require.True(t, ok)

	all, err := s.ListIncomingInvites(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID, "newest first")
	assert.Equal(t, first.ID, all[1].ID)

	pending, err := s.ListIncomingInvites(ctx, "bob", InvitePending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	closed, err := s.ListIncomingInvites(ctx, "bob", InviteDeclined, InviteRevoked)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, first.ID, closed[0].ID)

	out, err := s.ListOutgoingInvites(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "dave", out[0].ToUserID)
}

func TestRemoveFriendship(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	inv := mustInvite(t, s, "alice", "bob")
	_, err := s.AcceptInvite(ctx, inv.ID, "bob")
	require.NoError(t, err)

	ok, err := s.RemoveFriendship(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.True(t, ok)

	friends, err := s.AreFriends(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.False(t, friends)
	_, err = s.GetFriendship(ctx, "alice", "bob")
	assert.ErrorIs(t, err, store.ErrNotFound)

	ok, err = s.RemoveFriendship(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.False(t, ok)

	// They can become friends again
	inv = mustInvite(t, s, "bob", "alice")
	ok, err = s.AcceptInvite(ctx, inv.ID, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestListFriends(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertProfile(ctx, ProfileInput{UserID: "bob", DisplayName: "Bob", Handle: "bobby"})
	require.NoError(t, err)

	for _, other := range []string{"bob", "carol"} {
		inv := mustInvite(t, s, "alice", other)
		ok, err := s.AcceptInvite(ctx, inv.ID, other)
		require.NoError(t, err)
		require.True(t, ok)
	}

	// Half pair with dave: only alice's side exists
	_, err = db.Exec(ctx, `
		INSERT INTO friendships (user_id, friend_user_id, status, created_at, updated_at)
		VALUES ('alice', 'dave', 'accepted', '2024-06-01T00:00:00.000000000Z', '2024-06-01T00:00:00.000000000Z')
	`)
	require.NoError(t, err)

	list, err := s.ListFriends(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "bob", list[0].UserID)
	assert.Equal(t, "Bob", list[0].DisplayName)
	assert.Equal(t, "bobby", list[0].Handle)
	assert.Equal(t, "carol", list[1].UserID)
	assert.Equal(t, "", list[1].DisplayName)

	back, err := s.ListFriends(ctx, "carol")
	require.NoError(t, err)
	require.Len(t, back, 1)
	assert.Equal(t, "alice", back[0].UserID)
}

func TestAreFriends_Degenerate(t *testing.T) {
	s, _ := newTestStore(t)

	ok, err := s.AreFriends(context.Background(), "alice", "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNormalizeHandle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"alice", "alice"},
		{"@Alice", "alice"},
		{"  ALICE  ", "alice"},
		{"Ａｌｉｃｅ", "alice"},
		{"@", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHandle(tt.in))
		})
	}
}
