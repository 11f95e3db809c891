// ABOUTME: Applies server-delivered messages to the local cache
// ABOUTME: Skips payloads already merged within the dedupe window and notifies subscribers

package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/homebase/internal/dedupe"
	"github.com/2389/homebase/internal/messaging"
	"github.com/2389/homebase/internal/store"
)

// IngestResult counts the outcomes of a batch
type IngestResult struct {
	Merged    int
	Duplicate int
	Invalid   int
}

// Ingester merges server payloads into the message cache
type Ingester struct {
	merger   Merger
	seen     *dedupe.Cache
	logger   *slog.Logger
	onMerged func(*messaging.Message)
}

// NewIngester creates an ingester. seen may be nil to merge every payload.
func NewIngester(merger Merger, seen *dedupe.Cache, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		merger: merger,
		seen:   seen,
		logger: logger.With("component", "ingester"),
	}
}

// OnMerged registers a callback run with each merged message
func (in *Ingester) OnMerged(fn func(*messaging.Message)) {
	in.onMerged = fn
}

// payloadKey identifies a payload's mergeable state. A later read receipt for
// the same message produces a different key.
func payloadKey(p messaging.ServerMessage) string {
	readAt := ""
	if p.ReadAt != nil {
		readAt = store.FormatTime(*p.ReadAt)
	}
	return p.ClientMessageID + "|" + p.ID + "|" + readAt
}

// Ingest merges one payload. It returns the merged message and true, or nil
// and false when the same payload was merged within the dedupe window.
func (in *Ingester) Ingest(ctx context.Context, p messaging.ServerMessage) (*messaging.Message, bool, error) {
	if err := p.Validate(); err != nil {
		return nil, false, err
	}

	key := payloadKey(p)
	if in.seen != nil && in.seen.CheckAndMark(key) {
		in.logger.Debug("skipping duplicate payload", "client_message_id", p.ClientMessageID)
		return nil, false, nil
	}

	msg, err := in.merger.UpsertFromServer(ctx, p)
	if err != nil {
		if in.seen != nil {
			in.seen.Forget(key)
		}
		return nil, false, fmt.Errorf("merging %s: %w", p.ClientMessageID, err)
	}

	if in.onMerged != nil {
		in.onMerged(msg)
	}
	return msg, true, nil
}

// IngestBatch merges payloads in order. Invalid payloads are logged and
// skipped; any other error stops the batch.
func (in *Ingester) IngestBatch(ctx context.Context, payloads []messaging.ServerMessage) (IngestResult, error) {
	var res IngestResult
	start := time.Now()

	for _, p := range payloads {
		_, merged, err := in.Ingest(ctx, p)
		switch {
		case errors.Is(err, messaging.ErrInvalidPayload):
			in.logger.Warn("dropping invalid payload",
				"client_message_id", p.ClientMessageID,
				"error", err,
			)
			res.Invalid++
		case err != nil:
			return res, err
		case merged:
			res.Merged++
		default:
			res.Duplicate++
		}
	}

	in.logger.Debug("ingested batch",
		"merged", res.Merged,
		"duplicate", res.Duplicate,
		"invalid", res.Invalid,
		"duration", time.Since(start),
	)
	return res, nil
}
