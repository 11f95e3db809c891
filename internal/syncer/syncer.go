// ABOUTME: Contracts between the outbox, a delivery transport and the server ingestion path
// ABOUTME: Transport and Queue interfaces plus permanent-error classification

package syncer

import (
	"context"
	"errors"
	"time"

	"github.com/2389/homebase/internal/messaging"
)

// Transport delivers one outbox entry to the server and returns its
// acknowledgment. Wrap errors with Permanent when retrying cannot help.
type Transport interface {
	Deliver(ctx context.Context, entry *messaging.OutboxEntry) (messaging.Ack, error)
}

// TransportFunc adapts a function to Transport
type TransportFunc func(ctx context.Context, entry *messaging.OutboxEntry) (messaging.Ack, error)

// Deliver calls f
func (f TransportFunc) Deliver(ctx context.Context, entry *messaging.OutboxEntry) (messaging.Ack, error) {
	return f(ctx, entry)
}

// Queue is the part of the outbox the worker drives
type Queue interface {
	ListDue(ctx context.Context, fromUser string, now time.Time, limit int) ([]*messaging.OutboxEntry, error)
	MarkSent(ctx context.Context, clientMessageID string, ack messaging.Ack) (bool, error)
	MarkRetry(ctx context.Context, clientMessageID string, nextAttemptAt time.Time, errText string) (bool, error)
	MarkFailed(ctx context.Context, clientMessageID, errText string, now time.Time) (bool, error)
	Settle(ctx context.Context, fromUser string) (int, error)
}

// Merger applies server payloads to the message cache
type Merger interface {
	UpsertFromServer(ctx context.Context, p messaging.ServerMessage) (*messaging.Message, error)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Returns nil for a nil err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
