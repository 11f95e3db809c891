// ABOUTME: Background worker that drains the outbox through a Transport
// ABOUTME: Each due entry ends an attempt as exactly one of sent, retry or failed

package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/homebase/internal/messaging"
)

// Worker defaults
const (
	DefaultBatchSize      = 25
	DefaultInterval       = 5 * time.Second
	DefaultAttemptTimeout = 15 * time.Second
	DefaultMaxAttempts    = 8
)

// Config controls a Worker. Zero fields take the defaults above.
type Config struct {
	// FromUser restricts delivery to one sender; empty drains every sender.
	FromUser       string
	BatchSize      int
	Interval       time.Duration
	AttemptTimeout time.Duration
	MaxAttempts    int
	Backoff        Backoff
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = DefaultAttemptTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// Result counts the outcomes of one pass. Settled entries were already merged
// from the server and needed no delivery.
type Result struct {
	Sent      int
	Retried   int
	Failed    int
	Abandoned int
	Settled   int
}

// Total is the number of due entries the pass looked at
func (r Result) Total() int {
	return r.Sent + r.Retried + r.Failed + r.Abandoned
}

// Worker delivers due outbox entries
type Worker struct {
	queue     Queue
	transport Transport
	cfg       Config
	logger    *slog.Logger
	now       func() time.Time
	onSent    func(ctx context.Context, clientMessageID string)
}

// NewWorker creates a worker draining queue through transport
func NewWorker(queue Queue, transport Transport, cfg Config, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:     queue,
		transport: transport,
		cfg:       cfg.withDefaults(),
		logger:    logger.With("component", "sync-worker"),
		now:       time.Now,
	}
}

// SetClock overrides the time source, for tests
func (w *Worker) SetClock(now func() time.Time) {
	w.now = now
}

// OnSent registers a callback run after an entry is marked sent
func (w *Worker) OnSent(fn func(ctx context.Context, clientMessageID string)) {
	w.onSent = fn
}

// Config returns the effective configuration
func (w *Worker) Config() Config {
	return w.cfg
}

// RunOnce delivers one batch of due entries. Storage errors stop the pass and
// are returned; delivery errors are recorded on the entry. When ctx is
// cancelled mid-pass the remaining entries are left untouched and counted as
// abandoned.
func (w *Worker) RunOnce(ctx context.Context) (Result, error) {
	var res Result

	settled, err := w.queue.Settle(ctx, w.cfg.FromUser)
	if err != nil {
		return res, fmt.Errorf("settling merged entries: %w", err)
	}
	res.Settled = settled

	now := w.now()
	entries, err := w.queue.ListDue(ctx, w.cfg.FromUser, now, w.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("listing due entries: %w", err)
	}

	for i, entry := range entries {
		if ctx.Err() != nil {
			res.Abandoned += len(entries) - i
			break
		}
		if err := w.attempt(ctx, entry, &res); err != nil {
			return res, err
		}
	}

	if res.Total() > 0 || res.Settled > 0 {
		w.logger.Debug("sync pass complete",
			"settled", res.Settled,
			"sent", res.Sent,
			"retried", res.Retried,
			"failed", res.Failed,
			"abandoned", res.Abandoned,
		)
	}
	return res, nil
}

func (w *Worker) attempt(ctx context.Context, entry *messaging.OutboxEntry, res *Result) error {
	attemptCtx, cancel := context.WithTimeout(ctx, w.cfg.AttemptTimeout)
	ack, deliverErr := w.transport.Deliver(attemptCtx, entry)
	cancel()

	cid := entry.ClientMessageID
	if deliverErr == nil {
		// the server has the message; record the ack even if ctx is done
		ok, err := w.queue.MarkSent(context.WithoutCancel(ctx), cid, ack)
		if err != nil {
			return fmt.Errorf("marking %s sent: %w", cid, err)
		}
		if ok {
			res.Sent++
			if w.onSent != nil {
				w.onSent(ctx, cid)
			}
		}
		return nil
	}

	if ctx.Err() != nil {
		res.Abandoned++
		return nil
	}

	errText := deliverErr.Error()
	if errors.Is(deliverErr, context.DeadlineExceeded) {
		errText = fmt.Sprintf("delivery timed out after %s", w.cfg.AttemptTimeout)
	}

	attempt := entry.Attempts + 1
	if IsPermanent(deliverErr) || attempt >= w.cfg.MaxAttempts {
		ok, err := w.queue.MarkFailed(ctx, cid, errText, w.now())
		if err != nil {
			return fmt.Errorf("marking %s failed: %w", cid, err)
		}
		if ok {
			res.Failed++
		}
		return nil
	}

	next := w.now().Add(w.cfg.Backoff.Delay(attempt))
	ok, err := w.queue.MarkRetry(ctx, cid, next, errText)
	if err != nil {
		return fmt.Errorf("marking %s for retry: %w", cid, err)
	}
	if ok {
		res.Retried++
	}
	return nil
}

// Run drains the outbox every Interval until ctx is cancelled. A pass that
// fills its whole batch is followed immediately by another.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("sync worker started",
		"interval", w.cfg.Interval,
		"batch_size", w.cfg.BatchSize,
		"max_attempts", w.cfg.MaxAttempts,
	)
	defer w.logger.Info("sync worker stopped")

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		for {
			res, err := w.RunOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Error("sync pass failed", "error", err)
				break
			}
			if res.Total() < w.cfg.BatchSize || res.Abandoned > 0 {
				break
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
