package graph

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/leofalp/devforge/core/state"
)

// Manager tracks the active runs of a process so they can be cancelled by
// ID. Runs are forgotten as soon as they finish.
type Manager struct {
	mu   sync.Mutex
	runs map[string]*RunStream
	opts []ExecutorOption
}

// NewManager returns a Manager whose runs all use opts. Options passed to
// Start or Resume are applied after them.
func NewManager(opts ...ExecutorOption) *Manager {
	return &Manager{
		runs: make(map[string]*RunStream),
		opts: opts,
	}
}

// Start runs g with a new executor. An empty runID is generated.
func (m *Manager) Start(ctx context.Context, g *Graph, initial state.Values, runID string, opts ...ExecutorOption) (*RunStream, error) {
	if runID == "" {
		runID = NewRunID()
	}
	return m.track(runID, func(exec *Executor) (*RunStream, error) {
		return exec.Start(ctx, initial, runID)
	}, g, opts)
}

// Resume continues runID from its checkpoints.
func (m *Manager) Resume(ctx context.Context, g *Graph, runID string, opts ...ExecutorOption) (*RunStream, error) {
	return m.track(runID, func(exec *Executor) (*RunStream, error) {
		return exec.Resume(ctx, runID)
	}, g, opts)
}

func (m *Manager) track(runID string, launch func(*Executor) (*RunStream, error), g *Graph, opts []ExecutorOption) (*RunStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[runID]; ok {
		return nil, fmt.Errorf("%w: run %s is active", ErrAlreadyStarted, runID)
	}

	all := append(slices.Clone(m.opts), opts...)
	stream, err := launch(NewExecutor(g, all...))
	if err != nil {
		return nil, err
	}
	m.runs[runID] = stream

	go func() {
		<-stream.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.runs[runID] == stream {
			delete(m.runs, runID)
		}
	}()
	return stream, nil
}

// Cancel requests cancellation of an active run.
func (m *Manager) Cancel(runID string) error {
	m.mu.Lock()
	stream, ok := m.runs[runID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	stream.Cancel()
	return nil
}

// Active returns the IDs of the runs that have not finished, sorted.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.runs))
	for id := range m.runs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
