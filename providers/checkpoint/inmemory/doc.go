// Package inmemory provides a map-backed checkpoint.Store. Checkpoints are
// lost when the process exits; use it for tests and throwaway runs.
package inmemory
