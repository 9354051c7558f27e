package inmemory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/leofalp/devforge/core/checkpoint"
	"github.com/leofalp/devforge/core/state"
	"github.com/leofalp/devforge/providers/observability"
)

// Store is a concurrency-safe in-memory checkpoint store. It hands out deep
// copies so callers can never mutate a saved checkpoint.
type Store struct {
	mu   sync.RWMutex
	runs map[string]map[string]checkpoint.Checkpoint
}

var _ checkpoint.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{runs: make(map[string]map[string]checkpoint.Checkpoint)}
}

// Save stores a copy of cp. When a span is present in ctx an event is recorded.
func (s *Store) Save(ctx context.Context, cp checkpoint.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return err
	}
	cp = cp.Clone()
	if cp.State == nil {
		cp.State = state.Values{}
	}

	s.mu.Lock()
	nodes, ok := s.runs[cp.RunID]
	if !ok {
		nodes = make(map[string]checkpoint.Checkpoint)
		s.runs[cp.RunID] = nodes
	}
	if _, exists := nodes[cp.Node]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s/%s", checkpoint.ErrAlreadyExists, cp.RunID, cp.Node)
	}
	nodes[cp.Node] = cp
	s.mu.Unlock()

	if span := observability.SpanFromContext(ctx); span != nil {
		span.AddEvent(observability.EventCheckpointSaved,
			observability.String(observability.AttrCheckpointBackend, "memory"),
			observability.String(observability.AttrGraphNode, cp.Node),
			observability.Int(observability.AttrGraphSequence, cp.Sequence),
		)
	}
	return nil
}

// Load returns a copy of the checkpoint of node in runID.
func (s *Store) Load(_ context.Context, runID, node string) (*checkpoint.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.runs[runID][node]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s", checkpoint.ErrNotFound, runID, node)
	}
	out := cp.Clone()
	return &out, nil
}

// Latest returns a copy of the most recent checkpoint of runID.
func (s *Store) Latest(_ context.Context, runID string) (*checkpoint.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *checkpoint.Checkpoint
	for _, cp := range s.runs[runID] {
		if latest == nil || cp.Sequence > latest.Sequence {
			c := cp
			latest = &c
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: run %s", checkpoint.ErrNotFound, runID)
	}
	out := latest.Clone()
	return &out, nil
}

// List returns the node names of runID ordered by sequence.
func (s *Store) List(_ context.Context, runID string) ([]string, error) {
	s.mu.RLock()
	cps := slices.Collect(maps.Values(s.runs[runID]))
	s.mu.RUnlock()

	slices.SortFunc(cps, func(a, b checkpoint.Checkpoint) int { return a.Sequence - b.Sequence })
	nodes := make([]string, len(cps))
	for i, cp := range cps {
		nodes[i] = cp.Node
	}
	return nodes, nil
}

// Delete drops every checkpoint of runID.
func (s *Store) Delete(_ context.Context, runID string) error {
	s.mu.Lock()
	delete(s.runs, runID)
	s.mu.Unlock()
	return nil
}

// Runs returns the known run IDs, sorted.
func (s *Store) Runs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.runs)), nil
}
