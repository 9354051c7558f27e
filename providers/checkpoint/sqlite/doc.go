// Package sqlite provides a checkpoint.Store backed by an embedded SQLite
// database (github.com/mattn/go-sqlite3, which requires cgo).
//
// The database runs in WAL mode with a single open connection, so concurrent
// Save calls from parallel graph nodes queue on the connection instead of
// failing with SQLITE_BUSY. The (run_id, node) pair is UNIQUE; a duplicate
// Save returns checkpoint.ErrAlreadyExists.
//
// Example:
//
//	store, err := sqlite.Open("devforge.db")
//	if err != nil { ... }
//	defer store.Close()
package sqlite
