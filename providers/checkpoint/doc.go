// Package checkpoint groups the persistence backends for
// [github.com/leofalp/devforge/core/checkpoint.Store]:
//
//   - inmemory: map-backed, for tests and throwaway runs
//   - file: one JSON file per checkpoint under a root directory
//   - sqlite: an embedded database file
//   - pg: PostgreSQL through pgx
//
// Every backend is verified against the shared behaviour suite in
// checkpointtest.
package checkpoint
