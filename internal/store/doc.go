// Package store provides the shared SQLite persistence layer every hub
// module writes through.
//
// # Architecture
//
// Modules depend on the Adapter interface, never on *sql.DB directly:
//
//   - Execer: Exec, Query and QueryRow, satisfied by the adapter and by the
//     transaction handle
//   - Adapter: Execer plus Transaction and Close
//
// SQLiteStore implements Adapter over database/sql with either the pure Go
// modernc.org/sqlite driver ("sqlite", the default) or mattn/go-sqlite3
// ("sqlite3"). The pool is limited to one connection, so the store is a
// single writer and transactions never interleave.
//
// # Transactions
//
// Transaction hands fn an Execer bound to one transaction. Returning an
// error or panicking rolls back everything fn wrote. fn must only use the
// Execer it was given; calling the Adapter from inside fn deadlocks on the
// single connection.
//
// # Tables and ownership
//
// The store owns bytes, not schema. Each module creates its own tables
// through the migrate package and no module declares foreign keys into
// another module's tables.
//
// # Timestamps
//
// Times are stored as TEXT using TimeLayout (UTC, fixed width), so SQL
// comparisons and ORDER BY on timestamp columns are chronological.
//
// # Testing
//
// FaultyAdapter wraps any Adapter and fails chosen statements, which lets
// tests prove that multi-statement operations commit all or nothing.
package store
