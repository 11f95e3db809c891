// ABOUTME: Messaging module types: cached messages, server payloads, acks and outbox entries
// ABOUTME: Also holds the module's sentinel errors and shared row scanning

package messaging

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/2389/homebase/internal/store"
)

// ModuleID is the schema ledger id for this module
const ModuleID = "messaging"

// DefaultContentType is used when a message does not name one
const DefaultContentType = "text/plain"

var (
	// ErrSelfMessage is returned when sender and recipient are the same user
	ErrSelfMessage = errors.New("cannot message yourself")

	// ErrInvalidMessage is returned when a local message is missing a participant or content
	ErrInvalidMessage = errors.New("invalid message")

	// ErrInvalidPayload is returned when a server payload lacks a required field
	ErrInvalidPayload = errors.New("invalid server payload")

	// ErrAlreadyDelivered is returned when queueing a message the server already acknowledged
	ErrAlreadyDelivered = errors.New("message already delivered")

	// ErrNotLocal is returned when queueing a message that arrived from the server
	ErrNotLocal = errors.New("message was not authored locally")
)

// Source records where a message was first written
type Source string

const (
	SourceLocal  Source = "local"
	SourceRemote Source = "remote"
)

// SyncState tracks a message's agreement with the server
type SyncState string

const (
	SyncPending SyncState = "pending"
	SyncSynced  SyncState = "synced"
	SyncFailed  SyncState = "failed"
)

// Message is the cached copy of one friend message
type Message struct {
	ID              string
	ClientMessageID string
	SenderUserID    string
	RecipientUserID string
	ContentType     string
	Content         string
	Source          Source
	SyncState       SyncState
	ServerMessageID string // empty until the server acknowledges
	CreatedAt       time.Time
	ReadAt          *time.Time
	LastError       string
	UpdatedAt       time.Time
}

// Unread reports whether the message has not been read by its recipient
func (m *Message) Unread() bool {
	return m.ReadAt == nil
}

// NewMessage is a locally authored message
type NewMessage struct {
	ClientMessageID string // generated when empty
	SenderUserID    string
	RecipientUserID string
	ContentType     string // DefaultContentType when empty
	Content         string
	CreatedAt       time.Time // now when zero
}

// normalize fills defaults and validates in place.
func (m *NewMessage) normalize(now time.Time) error {
	if m.SenderUserID == "" || m.RecipientUserID == "" {
		return fmt.Errorf("%w: sender and recipient are required", ErrInvalidMessage)
	}
	if m.SenderUserID == m.RecipientUserID {
		return ErrSelfMessage
	}
	if m.Content == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidMessage)
	}
	if m.ClientMessageID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generating client message id: %w", err)
		}
		m.ClientMessageID = id.String()
	}
	if m.ContentType == "" {
		m.ContentType = DefaultContentType
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	return nil
}

// ServerMessage is a message as delivered by the server
type ServerMessage struct {
	ID              string     `json:"id"`
	ClientMessageID string     `json:"client_message_id"`
	SenderUserID    string     `json:"sender_user_id"`
	RecipientUserID string     `json:"recipient_user_id"`
	ContentType     string     `json:"content_type"`
	Content         string     `json:"content"`
	CreatedAt       time.Time  `json:"created_at"`
	ReadAt          *time.Time `json:"read_at,omitempty"`
}

// Validate checks that every required field is present
func (p ServerMessage) Validate() error {
	missing := func(field string) error {
		return fmt.Errorf("%w: missing %s", ErrInvalidPayload, field)
	}
	switch {
	case p.ID == "":
		return missing("id")
	case p.ClientMessageID == "":
		return missing("client_message_id")
	case p.SenderUserID == "":
		return missing("sender_user_id")
	case p.RecipientUserID == "":
		return missing("recipient_user_id")
	case p.ContentType == "":
		return missing("content_type")
	case p.Content == "":
		return missing("content")
	case p.CreatedAt.IsZero():
		return missing("created_at")
	}
	if p.SenderUserID == p.RecipientUserID {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, ErrSelfMessage)
	}
	return nil
}

// Ack is the server's acknowledgment of a delivered message.
// Nil or empty fields leave the cached values alone.
type Ack struct {
	ServerMessageID string
	CreatedAt       *time.Time
	ReadAt          *time.Time
}

// MessageColumns is the column list ScanMessage expects, in order
const MessageColumns = `id, client_message_id, sender_user_id, recipient_user_id, content_type, content,
	source, sync_state, server_message_id, created_at, read_at, last_error, updated_at`

// ScanMessage scans one friend_messages row selected with MessageColumns
func ScanMessage(sc store.Scanner) (*Message, error) {
	var m Message
	var source, state string
	var serverID, readAt, lastError sql.NullString
	var createdAt, updatedAt string
	if err := sc.Scan(&m.ID, &m.ClientMessageID, &m.SenderUserID, &m.RecipientUserID,
		&m.ContentType, &m.Content, &source, &state, &serverID, &createdAt, &readAt,
		&lastError, &updatedAt); err != nil {
		return nil, err
	}
	m.Source = Source(source)
	m.SyncState = SyncState(state)
	m.ServerMessageID = serverID.String
	m.LastError = lastError.String

	var err error
	if m.CreatedAt, err = store.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if m.UpdatedAt, err = store.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	if m.ReadAt, err = store.ParseNullTime(readAt); err != nil {
		return nil, err
	}
	return &m, nil
}
