// ABOUTME: Friend graph module: profiles, invite state machine, reciprocal friendships
// ABOUTME: Defines the module's types, sentinel errors and the Store entry point

package friends

import (
	"errors"
	"log/slog"
	"time"

	"github.com/2389/homebase/internal/store"
)

// ModuleID is the schema ledger id for this module
const ModuleID = "friends"

var (
	// ErrSelfInvite is returned when a user invites themselves
	ErrSelfInvite = errors.New("cannot invite yourself")

	// ErrAlreadyFriends is returned when inviting someone who is already a friend
	ErrAlreadyFriends = errors.New("already friends")

	// ErrInvalidInvite is returned when an invite is missing a participant
	ErrInvalidInvite = errors.New("invite requires from and to user ids")

	// ErrInvalidProfile is returned when a profile has no user id or display name
	ErrInvalidProfile = errors.New("profile requires user id and display name")

	// ErrHandleTaken is returned when another user already owns a handle
	ErrHandleTaken = errors.New("handle already taken")
)

// InviteStatus is the state of a friend invite
type InviteStatus string

const (
	InvitePending  InviteStatus = "pending"
	InviteAccepted InviteStatus = "accepted"
	InviteDeclined InviteStatus = "declined"
	InviteRevoked  InviteStatus = "revoked"
)

// Terminal reports whether no further transition is allowed
func (s InviteStatus) Terminal() bool {
	return s != InvitePending
}

// FriendshipAccepted is the status of an established friendship row
const FriendshipAccepted = "accepted"

// Profile is a user's public identity as seen by friends
type Profile struct {
	UserID      string
	DisplayName string
	Handle      string // normalized, empty when unset
	AvatarURL   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProfileInput carries the fields written by UpsertProfile
type ProfileInput struct {
	UserID      string
	DisplayName string
	Handle      string
	AvatarURL   string
}

// Invite is a friend request from one user to another
type Invite struct {
	ID          string
	FromUserID  string
	ToUserID    string
	Status      InviteStatus
	Message     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	RespondedAt *time.Time
}

// NewInvite carries the fields needed to create an invite
type NewInvite struct {
	FromUserID string
	ToUserID   string
	Message    string
}

// Friendship is one directional row of a friendship pair
type Friendship struct {
	UserID         string
	FriendUserID   string
	Status         string
	SourceInviteID string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Friend is a confirmed friend of a user, joined with their profile
type Friend struct {
	UserID         string
	DisplayName    string // empty when the friend has no profile
	Handle         string
	AvatarURL      string
	SourceInviteID string
	Since          time.Time
}

// Store persists the friend graph through a store.Adapter
type Store struct {
	db     store.Adapter
	logger *slog.Logger
	now    func() time.Time
}

// New creates a friend graph store. The module's migrations must already be
// applied (see Module).
func New(db store.Adapter, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "friends"),
		now:    time.Now,
	}
}

// SetClock overrides the time source, for tests
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}
