// ABOUTME: Tests for the SQLite adapter implementation
// ABOUTME: Covers opening, pragmas, transactions (commit, rollback, panic) and row helpers

package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore creates an in-memory store with a scratch table
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(MemoryPath)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	_, err = s.Exec(context.Background(), `CREATE TABLE items (id TEXT PRIMARY KEY, name TEXT NOT NULL, note TEXT)`)
	if err != nil {
		t.Fatalf("failed to create items table: %v", err)
	}
	return s
}

type item struct {
	ID   string
	Name string
}

func scanItem(sc Scanner) (item, error) {
	var it item
	err := sc.Scan(&it.ID, &it.Name)
	return it, err
}

func countItems(t *testing.T, s Execer) int {
	t.Helper()
	var n int
	if err := s.QueryRow(context.Background(), `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		t.Fatalf("counting items: %v", err)
	}
	return n
}

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	assert.Equal(t, DriverModernc, s.Driver())
	assert.Equal(t, dbPath, s.Path())
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open(MemoryPath, Options{Driver: "postgres"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported sqlite driver")
}

func TestOpen_ForeignKeysEnabled(t *testing.T) {
	s := newTestStore(t)

	var on int
	require.NoError(t, s.QueryRow(context.Background(), `PRAGMA foreign_keys`).Scan(&on))
	assert.Equal(t, 1, on)
}

func TestOpen_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "hub.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	_, err = s.Exec(ctx, `CREATE TABLE items (id TEXT PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = s.Exec(ctx, `INSERT INTO items (id, name) VALUES ('a', 'apple')`)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	got, err := Get(ctx, s, scanItem, `SELECT id, name FROM items WHERE id = ?`, "a")
	require.NoError(t, err)
	assert.Equal(t, "apple", got.Name)
}

func TestTransaction_Commits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Transaction(ctx, func(tx Execer) error {
		if _, err := tx.Exec(ctx, `INSERT INTO items (id, name) VALUES ('a', 'apple')`); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO items (id, name) VALUES ('b', 'banana')`)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, countItems(t, s))
}

func TestTransaction_RollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Transaction(ctx, func(tx Execer) error {
		if _, err := tx.Exec(ctx, `INSERT INTO items (id, name) VALUES ('a', 'apple')`); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countItems(t, s))
}

func TestTransaction_RollsBackOnPanic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = s.Transaction(ctx, func(tx Execer) error {
			if _, err := tx.Exec(ctx, `INSERT INTO items (id, name) VALUES ('a', 'apple')`); err != nil {
				return err
			}
			panic("kaboom")
		})
	})

	// The connection must be usable again and nothing committed
	assert.Equal(t, 0, countItems(t, s))
}

func TestTransaction_SeesOwnWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Transaction(ctx, func(tx Execer) error {
		if _, err := tx.Exec(ctx, `INSERT INTO items (id, name) VALUES ('a', 'apple')`); err != nil {
			return err
		}
		got, err := Get(ctx, tx, scanItem, `SELECT id, name FROM items WHERE id = ?`, "a")
		if err != nil {
			return err
		}
		assert.Equal(t, "apple", got.Name)
		return nil
	})
	require.NoError(t, err)
}

func TestSelect(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"c", "a", "b"} {
		_, err := s.Exec(ctx, `INSERT INTO items (id, name) VALUES (?, ?)`, name, "item-"+name)
		require.NoError(t, err)
	}

	items, err := Select(ctx, s, scanItem, `SELECT id, name FROM items ORDER BY id`)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, "item-c", items[2].Name)

	empty, err := Select(ctx, s, scanItem, `SELECT id, name FROM items WHERE id = 'zzz'`)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := Get(context.Background(), s, scanItem, `SELECT id, name FROM items WHERE id = ?`, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIsConstraintViolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Exec(ctx, `INSERT INTO items (id, name) VALUES ('a', 'apple')`)
	require.NoError(t, err)
	_, err = s.Exec(ctx, `INSERT INTO items (id, name) VALUES ('a', 'again')`)
	require.Error(t, err)
	assert.True(t, IsConstraintViolation(err))

	assert.False(t, IsConstraintViolation(nil))
	assert.False(t, IsConstraintViolation(errors.New("disk I/O error")))
}

func TestNullString(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Exec(ctx, `INSERT INTO items (id, name, note) VALUES ('a', 'apple', ?)`, NullString(""))
	require.NoError(t, err)

	var isNull bool
	require.NoError(t, s.QueryRow(ctx, `SELECT note IS NULL FROM items WHERE id = 'a'`).Scan(&isNull))
	assert.True(t, isNull)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", Placeholders(0))
	assert.Equal(t, "?", Placeholders(1))
	assert.Equal(t, "?, ?, ?", Placeholders(3))
}
