// ABOUTME: Hub wires the store, schema runner and every module into one handle
// ABOUTME: Bootstraps the schema ledger and brings each module to its latest version

package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/homebase/internal/config"
	"github.com/2389/homebase/internal/conversation"
	"github.com/2389/homebase/internal/dedupe"
	"github.com/2389/homebase/internal/friends"
	"github.com/2389/homebase/internal/messaging"
	"github.com/2389/homebase/internal/migrate"
	"github.com/2389/homebase/internal/store"
	"github.com/2389/homebase/internal/syncer"
)

// ErrDuplicateModule is returned when two modules share an id
var ErrDuplicateModule = errors.New("duplicate module id")

// Hub holds the bootstrapped stores for one database
type Hub struct {
	Store         store.Adapter
	Runner        *migrate.Runner
	Friends       *friends.Store
	Messages      *messaging.Store
	Outbox        *messaging.Outbox
	Conversations *conversation.Engine
	Broadcaster   *conversation.Broadcaster
	Ingester      *syncer.Ingester

	modules []migrate.Module
	logger  *slog.Logger
	now     func() time.Time
}

// Open opens the configured database and bootstraps it. The returned hub
// owns the store and closes it on Close.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, extra ...migrate.Module) (*Hub, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := cfg.StoreOptions()
	opts.Logger = logger
	db, err := store.Open(cfg.Database.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	h, err := New(ctx, db, logger, extra...)
	if err != nil {
		db.Close()
		return nil, err
	}
	h.Ingester = h.newIngester(dedupe.New(cfg.Ingest.DedupeTTL, cfg.Ingest.DedupeSize))
	return h, nil
}

// New bootstraps db: the schema ledger first, then the built-in modules, then
// extra in the order given. Closing the hub closes db.
func New(ctx context.Context, db store.Adapter, logger *slog.Logger, extra ...migrate.Module) (*Hub, error) {
	if logger == nil {
		logger = slog.Default()
	}

	modules, err := moduleList(extra)
	if err != nil {
		return nil, err
	}

	runner := migrate.NewRunner(db, logger)
	if err := runner.InitializeHubDatabase(ctx); err != nil {
		return nil, err
	}
	for _, m := range modules {
		if _, err := runner.ApplyPending(ctx, m.ID, m.Migrations); err != nil {
			return nil, err
		}
	}

	friendStore := friends.New(db, logger)
	messages := messaging.New(db, logger)

	h := &Hub{
		Store:         db,
		Runner:        runner,
		Friends:       friendStore,
		Messages:      messages,
		Outbox:        messaging.NewOutbox(db, logger),
		Conversations: conversation.New(db, messages, friendStore, logger),
		Broadcaster:   conversation.NewBroadcaster(logger),
		modules:       modules,
		logger:        logger.With("component", "hub"),
		now:           time.Now,
	}
	h.Ingester = h.newIngester(dedupe.New(0, 0))

	h.logger.Debug("hub ready", "modules", len(modules))
	return h, nil
}

// PendingModule is what a bootstrap would apply to one module
type PendingModule struct {
	ModuleID   string
	Current    int
	Migrations []migrate.Migration
}

// Plan reports the migrations New would apply to db, in bootstrap order,
// without applying any of them. Only the hub ledger is initialized.
func Plan(ctx context.Context, db store.Adapter, logger *slog.Logger, extra ...migrate.Module) ([]PendingModule, error) {
	modules, err := moduleList(extra)
	if err != nil {
		return nil, err
	}

	runner := migrate.NewRunner(db, logger)
	if err := runner.InitializeHubDatabase(ctx); err != nil {
		return nil, err
	}

	plan := make([]PendingModule, 0, len(modules))
	for _, m := range modules {
		current, err := runner.CurrentVersion(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		pending, err := runner.Pending(ctx, m.ID, m.Migrations)
		if err != nil {
			return nil, err
		}
		plan = append(plan, PendingModule{ModuleID: m.ID, Current: current, Migrations: pending})
	}
	return plan, nil
}

// moduleList returns the built-in modules followed by extra, rejecting
// repeated ids and the hub's own.
func moduleList(extra []migrate.Module) ([]migrate.Module, error) {
	modules := append([]migrate.Module{friends.Module(), messaging.Module()}, extra...)
	seen := make(map[string]bool, len(modules)+1)
	seen[migrate.HubModuleID] = true
	for _, m := range modules {
		if seen[m.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateModule, m.ID)
		}
		seen[m.ID] = true
	}
	return modules, nil
}

func (h *Hub) newIngester(seen *dedupe.Cache) *syncer.Ingester {
	in := syncer.NewIngester(h.Messages, seen, h.logger)
	in.OnMerged(h.Broadcaster.Publish)
	return in
}

// Modules returns the registered modules in bootstrap order, hub ledger excluded
func (h *Hub) Modules() []migrate.Module {
	out := make([]migrate.Module, len(h.modules))
	copy(out, h.modules)
	return out
}

// NewWorker creates a sync worker for the outbox. Delivered messages are
// published to the broadcaster.
func (h *Hub) NewWorker(transport syncer.Transport, cfg syncer.Config) *syncer.Worker {
	w := syncer.NewWorker(h.Outbox, transport, cfg, h.logger)
	w.OnSent(func(ctx context.Context, clientMessageID string) {
		msg, err := h.Messages.GetByClientMessageID(ctx, clientMessageID)
		if err != nil {
			h.logger.Warn("loading delivered message", "client_message_id", clientMessageID, "error", err)
			return
		}
		h.Broadcaster.Publish(msg)
	})
	return w
}

// Send queues a message for delivery and publishes it to subscribers
func (h *Hub) Send(ctx context.Context, in messaging.NewMessage) (*messaging.OutboxEntry, error) {
	entry, err := h.Outbox.Queue(ctx, in, h.now())
	if err != nil {
		return nil, err
	}
	if msg, err := h.Messages.GetByClientMessageID(ctx, entry.ClientMessageID); err == nil {
		h.Broadcaster.Publish(msg)
	}
	return entry, nil
}

// SetClock overrides the time source of every store, for tests
func (h *Hub) SetClock(now func() time.Time) {
	h.now = now
	h.Runner.SetClock(now)
	h.Friends.SetClock(now)
	h.Messages.SetClock(now)
	h.Outbox.SetClock(now)
	h.Conversations.SetClock(now)
}

// Close stops subscriptions and closes the store
func (h *Hub) Close() error {
	h.Broadcaster.Close()
	return h.Store.Close()
}
