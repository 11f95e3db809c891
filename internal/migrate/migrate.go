// ABOUTME: Per-module versioned schema migration runner
// ABOUTME: Applies pending migrations exactly once, recording each in the schema_versions ledger

package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/homebase/internal/store"
)

// HubModuleID is the ledger id for the hub's own schema
const HubModuleID = "hub"

// ErrInvalidMigrations is returned when a migration list is not numbered 1..n
var ErrInvalidMigrations = errors.New("invalid migration list")

// Migration is one immutable schema step for a module.
// Down is carried as data for operators; the runner never executes it.
type Migration struct {
	Version     int
	Description string
	Up          []string
	Down        []string
}

// Record is one applied migration in the ledger
type Record struct {
	ModuleID    string
	Version     int
	Description string
	AppliedAt   time.Time
}

// ModuleVersion is the highest applied version of a module
type ModuleVersion struct {
	ModuleID string
	Version  int
}

// Module bundles a module id with its ordered migrations
type Module struct {
	ID         string
	Migrations []Migration
}

// Validate checks that versions run 1, 2, 3... with no gaps or repeats.
func Validate(migrations []Migration) error {
	for i, m := range migrations {
		if m.Version != i+1 {
			return fmt.Errorf("%w: position %d has version %d, want %d", ErrInvalidMigrations, i, m.Version, i+1)
		}
	}
	return nil
}

// hubMigrations is the hub's own schema history. Version 1 has no statements;
// its ledger row marks the hub database as initialized.
var hubMigrations = []Migration{
	{Version: 1, Description: "initialize hub database"},
}

const ledgerDDL = `
CREATE TABLE IF NOT EXISTS schema_versions (
	module_id TEXT NOT NULL,
	version INTEGER NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	applied_at TEXT NOT NULL,
	PRIMARY KEY (module_id, version)
)`

// Runner applies module migrations against a store.Adapter
type Runner struct {
	db     store.Adapter
	logger *slog.Logger
	now    func() time.Time
}

// NewRunner creates a runner. A nil logger uses slog.Default().
func NewRunner(db store.Adapter, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		db:     db,
		logger: logger.With("component", "migrate"),
		now:    time.Now,
	}
}

// SetClock overrides the time source used for applied_at
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// InitializeHubDatabase creates the ledger table and records hub version 1.
// Safe to call on every startup.
func (r *Runner) InitializeHubDatabase(ctx context.Context) error {
	if err := r.ensureLedger(ctx); err != nil {
		return err
	}
	if _, err := r.ApplyPending(ctx, HubModuleID, hubMigrations); err != nil {
		return fmt.Errorf("initializing hub database: %w", err)
	}
	return nil
}

func (r *Runner) ensureLedger(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, ledgerDDL); err != nil {
		r.logger.Error("creating schema ledger", "error", err)
		return fmt.Errorf("creating schema ledger: %w", err)
	}
	return nil
}

// ApplyPending brings moduleID up to the last version in migrations.
//
// Each pending migration runs in its own transaction: every Up statement in
// order, then the ledger row. A failure rolls that migration back and stops the
// run; migrations committed before it stay applied and are counted in the
// returned total.
func (r *Runner) ApplyPending(ctx context.Context, moduleID string, migrations []Migration) (int, error) {
	if moduleID == "" {
		return 0, fmt.Errorf("%w: empty module id", ErrInvalidMigrations)
	}
	if err := Validate(migrations); err != nil {
		return 0, fmt.Errorf("module %s: %w", moduleID, err)
	}
	if err := r.ensureLedger(ctx); err != nil {
		return 0, err
	}

	current, err := r.CurrentVersion(ctx, moduleID)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		ran, err := r.apply(ctx, moduleID, m)
		if err != nil {
			r.logger.Error("migration failed",
				"module", moduleID,
				"version", m.Version,
				"error", err,
			)
			return applied, err
		}
		if ran {
			applied++
			r.logger.Info("applied migration",
				"module", moduleID,
				"version", m.Version,
				"description", m.Description,
			)
		}
	}
	return applied, nil
}

// apply runs one migration. It reports false when another runner recorded the
// version first.
func (r *Runner) apply(ctx context.Context, moduleID string, m Migration) (bool, error) {
	ran := false
	err := r.db.Transaction(ctx, func(tx store.Execer) error {
		var current int
		if err := tx.QueryRow(ctx, `
			SELECT COALESCE(MAX(version), 0) FROM schema_versions WHERE module_id = ?
		`, moduleID).Scan(&current); err != nil {
			return fmt.Errorf("module %s version %d: reading current version: %w", moduleID, m.Version, err)
		}
		if current >= m.Version {
			return nil
		}

		for i, stmt := range m.Up {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("module %s version %d: statement %d: %w", moduleID, m.Version, i+1, err)
			}
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO schema_versions (module_id, version, description, applied_at)
			VALUES (?, ?, ?, ?)
		`, moduleID, m.Version, m.Description, store.FormatTime(r.now())); err != nil {
			return fmt.Errorf("module %s version %d: recording version: %w", moduleID, m.Version, err)
		}
		ran = true
		return nil
	})
	return ran, err
}

// CurrentVersion returns the highest applied version of moduleID, 0 if none.
func (r *Runner) CurrentVersion(ctx context.Context, moduleID string) (int, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return 0, err
	}
	var v int
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM schema_versions WHERE module_id = ?
	`, moduleID).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("reading version of module %s: %w", moduleID, err)
	}
	return v, nil
}

// Pending returns the migrations ApplyPending would run, without running them.
func (r *Runner) Pending(ctx context.Context, moduleID string, migrations []Migration) ([]Migration, error) {
	if err := Validate(migrations); err != nil {
		return nil, fmt.Errorf("module %s: %w", moduleID, err)
	}
	current, err := r.CurrentVersion(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	var pending []Migration
	for _, m := range migrations {
		if m.Version > current {
			pending = append(pending, m)
		}
	}
	return pending, nil
}

// Applied returns the ledger rows of moduleID, oldest version first.
func (r *Runner) Applied(ctx context.Context, moduleID string) ([]Record, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return nil, err
	}
	records, err := store.Select(ctx, r.db, scanRecord, `
		SELECT module_id, version, description, applied_at
		FROM schema_versions
		WHERE module_id = ?
		ORDER BY version ASC
	`, moduleID)
	if err != nil {
		return nil, fmt.Errorf("listing applied migrations of %s: %w", moduleID, err)
	}
	return records, nil
}

// Modules returns every module in the ledger with its current version,
// ordered by module id.
func (r *Runner) Modules(ctx context.Context) ([]ModuleVersion, error) {
	if err := r.ensureLedger(ctx); err != nil {
		return nil, err
	}
	mods, err := store.Select(ctx, r.db, func(sc store.Scanner) (ModuleVersion, error) {
		var mv ModuleVersion
		err := sc.Scan(&mv.ModuleID, &mv.Version)
		return mv, err
	}, `
		SELECT module_id, MAX(version)
		FROM schema_versions
		GROUP BY module_id
		ORDER BY module_id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing modules: %w", err)
	}
	return mods, nil
}

func scanRecord(sc store.Scanner) (Record, error) {
	var rec Record
	var appliedAt string
	if err := sc.Scan(&rec.ModuleID, &rec.Version, &rec.Description, &appliedAt); err != nil {
		return Record{}, err
	}
	t, err := store.ParseTime(appliedAt)
	if err != nil {
		return Record{}, err
	}
	rec.AppliedAt = t
	return rec, nil
}
