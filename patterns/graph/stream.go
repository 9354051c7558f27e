package graph

import (
	"iter"
	"sync"
	"time"

	"github.com/leofalp/devforge/core/overview"
	"github.com/leofalp/devforge/core/state"
)

// EventStatus identifies what an Event reports.
type EventStatus string

const (
	EventStarted          EventStatus = "started"
	EventCompleted        EventStatus = "completed"
	EventFailed           EventStatus = "failed"
	EventSkipped          EventStatus = "skipped"
	EventCheckpointFailed EventStatus = "checkpoint_failed"

	// Run-level statuses. Events carrying them have an empty Node.
	EventRunStarted   EventStatus = "run_started"
	EventRunCompleted EventStatus = "run_completed"
	EventRunFailed    EventStatus = "run_failed"
	EventRunCancelled EventStatus = "run_cancelled"
)

// Event is one entry of a run's event stream.
type Event struct {
	RunID  string      `json:"run_id"`
	Node   string      `json:"node,omitempty"`
	Status EventStatus `json:"status"`
	// Delta is the update the node returned, for completed events.
	Delta     state.Values `json:"delta,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	// Sequence is the checkpoint sequence of the commit, for completed and
	// failed events.
	Sequence int   `json:"sequence,omitempty"`
	Err      error `json:"-"`
	// Tier is the model tier that last answered for the node, when known.
	Tier string `json:"tier,omitempty"`
}

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunCancelled RunStatus = "cancelled"
	RunFailed    RunStatus = "failed"
)

// RunResult summarizes a finished run.
type RunResult struct {
	RunID  string
	Status RunStatus
	// State is the final snapshot.
	State state.Values
	// Errors lists "<node>: <error>" entries in commit order.
	Errors []string
	// Executed lists the nodes that ran, in commit order.
	Executed []string
	Started  time.Time
	Finished time.Time
	Overview *overview.Overview
}

// Duration returns the wall-clock time of the run.
func (r *RunResult) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// RunStream is the handle of a running graph. Events must be consumed with
// Iter or Collect, or discarded by calling Result directly.
type RunStream struct {
	runID  string
	events chan Event
	done   chan struct{}
	cancel func()

	consumeOnce sync.Once
	result      *RunResult
	err         error
}

// RunID returns the ID of the run.
func (s *RunStream) RunID() string { return s.runID }

// Cancel asks the run to stop launching nodes. Nodes already running finish
// and checkpoint. Cancel returns immediately and is safe to call repeatedly.
func (s *RunStream) Cancel() { s.cancel() }

// Done is closed when the run has finished.
func (s *RunStream) Done() <-chan struct{} { return s.done }

// Iter returns the event sequence. It is lazy and finite. If the run did
// not complete, the final element carries the *RunError. Breaking out of the
// loop cancels the run and waits for in-flight nodes to finish.
//
// Only the first call to Iter (or Collect, or Result) consumes events;
// later calls observe an empty sequence followed by the final error.
//
// Example:
//
//	for ev, err := range stream.Iter() {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(ev.Node, ev.Status)
//	}
func (s *RunStream) Iter() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		first, stopped := false, false
		s.consumeOnce.Do(func() {
			first = true
			for ev := range s.events {
				if !yield(ev, nil) {
					stopped = true
					s.Cancel()
					s.drain()
					return
				}
			}
		})
		if stopped {
			return
		}
		if !first {
			<-s.done
		}
		if s.err != nil {
			yield(Event{RunID: s.runID}, s.err)
		}
	}
}

// Collect consumes the whole stream and returns the events.
func (s *RunStream) Collect() ([]Event, error) {
	var events []Event
	for ev, err := range s.Iter() {
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// Result blocks until the run finishes. If events were not consumed they are
// discarded. The error is a *RunError when the run did not complete.
func (s *RunStream) Result() (*RunResult, error) {
	s.consumeOnce.Do(s.drain)
	<-s.done
	return s.result, s.err
}

func (s *RunStream) drain() {
	for range s.events {
	}
}
