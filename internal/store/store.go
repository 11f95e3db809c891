// ABOUTME: Storage adapter contract shared by every hub module
// ABOUTME: Defines Execer/Adapter, typed row helpers, and the store sentinel errors

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Execer runs statements and queries. Both the adapter itself and the
// transaction handle passed to Transaction satisfy it.
type Execer interface {
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row
}

// Adapter is the storage capability modules persist through.
//
// Transaction runs fn against a single transaction. Everything fn does through
// the supplied Execer commits together, or is rolled back when fn returns an
// error or panics. fn must not call back into the Adapter itself: the pool
// holds one connection and a nested call would wait on it forever.
type Adapter interface {
	Execer
	Transaction(ctx context.Context, fn func(tx Execer) error) error
	Close() error
}

// Scanner is the common subset of *sql.Row and *sql.Rows
type Scanner interface {
	Scan(dest ...any) error
}

// Select runs query and scans every row with scan.
func Select[T any](ctx context.Context, q Execer, scan func(Scanner) (T, error), query string, args ...any) ([]T, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

// Get runs a single-row query. Returns ErrNotFound when there is no row.
func Get[T any](ctx context.Context, q Execer, scan func(Scanner) (T, error), query string, args ...any) (T, error) {
	item, err := scan(q.QueryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, ErrNotFound
	}
	return item, err
}

// RowsAffected returns the affected row count, treating a driver that cannot
// report it as zero.
func RowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

// Placeholders returns "?, ?, ?" for n parameters
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// IsConstraintViolation checks if the error is a SQLite constraint violation.
// Both drivers report constraint failures in their message text.
func IsConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "UNIQUE constraint failed") ||
		strings.Contains(errStr, "constraint failed")
}

// NullString returns nil for empty strings so they are stored as NULL
func NullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
