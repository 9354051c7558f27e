package graph

import (
	"errors"
	"fmt"
)

// Build-time errors returned (joined) by GraphBuilder.Build.
var (
	ErrInvalidGraph        = errors.New("invalid graph")
	ErrCycle               = errors.New("graph contains a cycle")
	ErrMergeConflict       = errors.New("concurrent nodes write the same overwrite field")
	ErrNonExhaustiveBranch = errors.New("branch routes are not exhaustive and exclusive")
)

// Run-time errors.
var (
	ErrEdgeAmbiguity     = errors.New("branch matched zero or several routes")
	ErrCheckpointWrite   = errors.New("checkpoint write failed")
	ErrUndeclaredWrite   = errors.New("node wrote a field it did not declare")
	ErrNodePanic         = errors.New("node panicked")
	ErrEndNotReached     = errors.New("run drained without reaching End")
	ErrCancelled         = errors.New("run cancelled")
	ErrAlreadyStarted    = errors.New("executor already started")
	ErrNoCheckpointStore = errors.New("resume requires a checkpoint store")
	ErrRunNotFound       = errors.New("run not found")
)

// RunError is returned by RunStream.Result when a run did not complete.
type RunError struct {
	RunID  string
	Status RunStatus
	Err    error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s %s: %v", e.RunID, e.Status, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// NodeError wraps the failure of a single node.
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return e.Node + ": " + e.Err.Error()
}

func (e *NodeError) Unwrap() error { return e.Err }
