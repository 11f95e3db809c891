// ABOUTME: Fault-injecting Adapter wrapper for atomicity tests
// ABOUTME: Fails chosen statements so callers can assert nothing partial was committed

package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
)

// ErrInjected is the default error returned by a FaultyAdapter
var ErrInjected = errors.New("injected fault")

// FaultyAdapter wraps an Adapter and fails Exec calls whose SQL contains a
// registered fragment. Faults fire both outside and inside transactions.
type FaultyAdapter struct {
	Adapter

	mu     sync.Mutex
	faults []fault
	calls  int
}

type fault struct {
	fragment string
	err      error
	after    int // matching calls to let through before failing
}

// NewFaultyAdapter wraps inner with no faults registered.
func NewFaultyAdapter(inner Adapter) *FaultyAdapter {
	return &FaultyAdapter{Adapter: inner}
}

// FailOn makes the next Exec whose SQL contains fragment return err
// (ErrInjected when err is nil). Each registration fires once.
func (f *FaultyAdapter) FailOn(fragment string, err error) {
	f.FailOnAfter(fragment, 0, err)
}

// FailOnAfter lets skip matching Execs through, then fails the next one.
func (f *FaultyAdapter) FailOnAfter(fragment string, skip int, err error) {
	if err == nil {
		err = ErrInjected
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = append(f.faults, fault{fragment: fragment, err: err, after: skip})
}

// Calls returns how many Exec calls went through the wrapper
func (f *FaultyAdapter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// check consumes a matching fault, if any
func (f *FaultyAdapter) check(query string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for i := range f.faults {
		if !strings.Contains(query, f.faults[i].fragment) {
			continue
		}
		if f.faults[i].after > 0 {
			f.faults[i].after--
			continue
		}
		err := f.faults[i].err
		f.faults = append(f.faults[:i], f.faults[i+1:]...)
		return err
	}
	return nil
}

// Exec fails when a registered fault matches, otherwise delegates.
func (f *FaultyAdapter) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := f.check(query); err != nil {
		return nil, err
	}
	return f.Adapter.Exec(ctx, query, args...)
}

// Transaction routes the transaction's Execs through the fault check.
func (f *FaultyAdapter) Transaction(ctx context.Context, fn func(tx Execer) error) error {
	return f.Adapter.Transaction(ctx, func(tx Execer) error {
		return fn(faultyTx{Execer: tx, owner: f})
	})
}

type faultyTx struct {
	Execer
	owner *FaultyAdapter
}

func (t faultyTx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if err := t.owner.check(query); err != nil {
		return nil, err
	}
	return t.Execer.Exec(ctx, query, args...)
}

var _ Adapter = (*FaultyAdapter)(nil)
