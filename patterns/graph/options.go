package graph

import (
	"time"

	"github.com/leofalp/devforge/core/checkpoint"
	"github.com/leofalp/devforge/providers/observability"
)

// NodeOption configures a node in GraphBuilder.AddNode.
type NodeOption func(*node)

// WithWrites declares the state fields a node may write. Build uses the
// declarations to reject graphs where two nodes that can run concurrently
// both write the same overwrite field, and the executor fails a node whose
// update touches an undeclared field.
//
// A node without declarations may write any field, so the conflict analysis
// treats it as writing every overwrite field. Nodes that run beside others
// should declare their writes.
//
// Example:
//
//	builder.AddNode("plan", planNode, graph.WithWrites("plan", "logs"))
func WithWrites(fields ...string) NodeOption {
	return func(n *node) {
		n.writes = append(n.writes, fields...)
	}
}

// WithDescription sets a human-readable description shown by inspection tools.
func WithDescription(description string) NodeOption {
	return func(n *node) {
		n.description = description
	}
}

// defaultEventBuffer is the channel buffer between the coordinator and the
// stream consumer.
const defaultEventBuffer = 64

type executorConfig struct {
	store          checkpoint.Store
	observer       observability.Provider
	maxConcurrency int
	eventBuffer    int
	nodeTimeout    time.Duration
	now            func() time.Time
	errorsField    string
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*executorConfig)

// WithCheckpointStore persists a checkpoint after every node commit. Without
// a store the run is not checkpointed and cannot be resumed.
func WithCheckpointStore(store checkpoint.Store) ExecutorOption {
	return func(c *executorConfig) {
		c.store = store
	}
}

// WithObserver enables spans, metrics and logs for the run. When unset, the
// observer carried by the Start context is used, if any.
func WithObserver(observer observability.Provider) ExecutorOption {
	return func(c *executorConfig) {
		c.observer = observer
	}
}

// WithMaxConcurrency bounds how many nodes run at once. Zero, the default,
// means no bound.
func WithMaxConcurrency(n int) ExecutorOption {
	return func(c *executorConfig) {
		c.maxConcurrency = n
	}
}

// WithEventBuffer sets the size of the event channel buffer.
func WithEventBuffer(n int) ExecutorOption {
	return func(c *executorConfig) {
		c.eventBuffer = n
	}
}

// WithNodeTimeout bounds each node's execution. The node context is
// cancelled when the timeout elapses; the node is expected to return.
func WithNodeTimeout(d time.Duration) ExecutorOption {
	return func(c *executorConfig) {
		c.nodeTimeout = d
	}
}

// WithClock replaces time.Now for event and checkpoint timestamps.
func WithClock(now func() time.Time) ExecutorOption {
	return func(c *executorConfig) {
		c.now = now
	}
}

// WithErrorsField names the append field that receives "<node>: <error>"
// entries. The default is "errors"; the field is optional in the schema.
func WithErrorsField(name string) ExecutorOption {
	return func(c *executorConfig) {
		c.errorsField = name
	}
}
