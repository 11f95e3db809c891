// ABOUTME: Timestamp encoding for TEXT columns
// ABOUTME: Fixed-width UTC layout so string order matches time order in SQL

package store

import (
	"database/sql"
	"fmt"
	"time"
)

// TimeLayout is the on-disk timestamp format. Every value is UTC with nine
// fractional digits, so lexicographic comparison in SQL is chronological.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime encodes t for storage
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime decodes a stored timestamp
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// NullTime encodes an optional timestamp, nil becoming NULL
func NullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return FormatTime(*t)
}

// ParseNullTime decodes an optional timestamp column
func ParseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := ParseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
