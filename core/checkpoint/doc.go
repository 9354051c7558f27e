// Package checkpoint defines the record written after every graph node
// completes and the [Store] contract that persistence backends implement.
//
// A checkpoint is an immutable snapshot of the full run state, keyed by
// (run ID, node name). Stores are append-only: saving the same key twice
// fails with [ErrAlreadyExists]. Backends live under providers/checkpoint.
package checkpoint
