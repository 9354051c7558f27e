package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/leofalp/devforge/core/state"
)

var (
	ErrNotFound      = errors.New("checkpoint not found")
	ErrAlreadyExists = errors.New("checkpoint already exists")
)

// Checkpoint statuses mirror the outcome of the node that produced them.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Checkpoint is the state of a run right after Node committed its update.
type Checkpoint struct {
	RunID string `json:"run_id"`
	Node  string `json:"node"`
	// Sequence orders checkpoints of one run by commit order, starting at 1.
	Sequence  int          `json:"sequence"`
	Status    string       `json:"status"`
	Timestamp time.Time    `json:"timestamp"`
	State     state.Values `json:"state"`
}

// Validate reports whether cp has the fields every store needs.
func (cp Checkpoint) Validate() error {
	switch {
	case cp.RunID == "":
		return errors.New("checkpoint: empty run id")
	case cp.Node == "":
		return errors.New("checkpoint: empty node name")
	case cp.Sequence < 1:
		return fmt.Errorf("checkpoint: invalid sequence %d", cp.Sequence)
	}
	return nil
}

// Clone returns a deep copy of cp.
func (cp Checkpoint) Clone() Checkpoint {
	cp.State = cp.State.Clone()
	return cp
}

// Store persists checkpoints. Implementations must be safe for concurrent use.
type Store interface {
	// Save persists cp. It returns ErrAlreadyExists if a checkpoint for the
	// same run and node is already stored.
	Save(ctx context.Context, cp Checkpoint) error

	// Load returns the checkpoint of node in run, or ErrNotFound.
	Load(ctx context.Context, runID, node string) (*Checkpoint, error)

	// Latest returns the checkpoint with the highest sequence, or ErrNotFound.
	Latest(ctx context.Context, runID string) (*Checkpoint, error)

	// List returns the node names of run ordered by sequence. An unknown run
	// yields an empty list.
	List(ctx context.Context, runID string) ([]string, error)

	// Delete removes every checkpoint of run. Deleting an unknown run is not
	// an error.
	Delete(ctx context.Context, runID string) error

	// Runs returns the IDs of all runs with at least one checkpoint, sorted.
	Runs(ctx context.Context) ([]string, error)
}

// History returns every checkpoint of run in sequence order.
func History(ctx context.Context, store Store, runID string) ([]Checkpoint, error) {
	nodes, err := store.List(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := make([]Checkpoint, 0, len(nodes))
	for _, node := range nodes {
		cp, err := store.Load(ctx, runID, node)
		if err != nil {
			return nil, fmt.Errorf("load %s/%s: %w", runID, node, err)
		}
		out = append(out, *cp)
	}
	return out, nil
}

// Encode returns the JSON form of cp shared by the persistent backends.
func Encode(cp Checkpoint) ([]byte, error) {
	data, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint %s/%s: %w", cp.RunID, cp.Node, err)
	}
	return data, nil
}

// Decode parses data written by Encode.
func Decode(data []byte) (*Checkpoint, error) {
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if cp.State == nil {
		cp.State = state.Values{}
	}
	return &cp, nil
}

// EncodeState returns the JSON form of a state snapshot. Backends that store
// the snapshot in its own column use it together with DecodeState.
func EncodeState(values state.Values) ([]byte, error) {
	if values == nil {
		values = state.Values{}
	}
	return json.Marshal(values)
}

// DecodeState parses a snapshot written by EncodeState.
func DecodeState(data []byte) (state.Values, error) {
	values := state.Values{}
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode checkpoint state: %w", err)
	}
	return values, nil
}
