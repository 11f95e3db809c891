// ABOUTME: SQLite implementation of the storage Adapter
// ABOUTME: Single-connection pool over modernc.org/sqlite (default) or mattn/go-sqlite3

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Driver names registered with database/sql
const (
	DriverModernc = "sqlite"  // modernc.org/sqlite, pure Go
	DriverCGO     = "sqlite3" // github.com/mattn/go-sqlite3, requires cgo
)

// MemoryPath opens a private in-memory database
const MemoryPath = ":memory:"

// DefaultBusyTimeout is how long a statement waits on a locked database
const DefaultBusyTimeout = 5 * time.Second

// Options tunes how a SQLiteStore is opened
type Options struct {
	Driver      string        // DriverModernc when empty
	BusyTimeout time.Duration // DefaultBusyTimeout when zero
	Logger      *slog.Logger
}

// SQLiteStore implements Adapter on top of a SQLite database file
type SQLiteStore struct {
	db     *sql.DB
	driver string
	path   string
	logger *slog.Logger
}

// NewSQLiteStore opens the database at path with default options.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return Open(path, Options{})
}

// Open opens (creating if needed) the SQLite database at path.
// Parent directories are created if needed.
//
// The pool is capped at one connection. SQLite serializes writers anyway, and
// a single connection keeps ":memory:" databases shared across calls and makes
// every Transaction run one at a time.
func Open(path string, opts Options) (*SQLiteStore, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	driver := opts.Driver
	if driver == "" {
		driver = DriverModernc
	}
	if driver != DriverModernc && driver != DriverCGO {
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	busyTimeout := opts.BusyTimeout
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}

	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("executing %q: %w", pragma, err)
		}
	}

	logger.Debug("SQLite store opened", "path", path, "driver", driver)
	return &SQLiteStore{db: db, driver: driver, path: path, logger: logger}, nil
}

// Path returns the database location the store was opened with
func (s *SQLiteStore) Path() string { return s.path }

// Driver returns the database/sql driver name in use
func (s *SQLiteStore) Driver() string { return s.driver }

// Exec runs a statement outside any explicit transaction
func (s *SQLiteStore) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

// Query runs a query outside any explicit transaction.
// Callers are responsible for closing the returned rows.
func (s *SQLiteStore) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// QueryRow runs a single-row query outside any explicit transaction
func (s *SQLiteStore) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

// Transaction runs fn inside one database transaction.
// A returned error or a panic rolls everything back; the panic is re-raised.
func (s *SQLiteStore) Transaction(ctx context.Context, fn func(tx Execer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			s.logger.Error("rolling back transaction", "error", rbErr)
		}
	}()

	if err := fn(txExecer{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	committed = true
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// txExecer adapts *sql.Tx to Execer
type txExecer struct {
	tx *sql.Tx
}

func (t txExecer) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

func (t txExecer) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, query, args...)
}

func (t txExecer) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

// Ensure SQLiteStore implements Adapter
var _ Adapter = (*SQLiteStore)(nil)
