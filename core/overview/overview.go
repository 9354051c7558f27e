package overview

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/leofalp/devforge/providers/ai"
)

type contextKey struct{}

// Overview aggregates model usage for a single run. It is safe for concurrent
// use because parallel graph nodes record into the same instance.
type Overview struct {
	mu sync.Mutex

	TotalUsage ai.Usage       `json:"total_usage"`
	Requests   int            `json:"requests"`
	Failures   int            `json:"failures"`
	TierCalls  map[string]int `json:"tier_calls,omitempty"`
	// NodeTiers records the tier that last answered for each node.
	NodeTiers map[string]string `json:"node_tiers,omitempty"`

	ExecutionStartTime time.Time `json:"execution_start_time,omitempty"`
	ExecutionEndTime   time.Time `json:"execution_end_time,omitempty"`
}

// New returns an empty Overview.
func New() *Overview {
	return &Overview{
		TierCalls: make(map[string]int),
		NodeTiers: make(map[string]string),
	}
}

// FromContext returns the Overview stored in ctx, or nil.
func FromContext(ctx context.Context) *Overview {
	if ctx == nil {
		return nil
	}
	o, _ := ctx.Value(contextKey{}).(*Overview)
	return o
}

// ToContext stores the Overview in the given context and returns the enriched context.
func (o *Overview) ToContext(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, contextKey{}, o)
}

// nodeKey carries the executing node name so tier records can be attributed.
type nodeKey struct{}

// WithNode tags ctx with the name of the node making model calls.
func WithNode(ctx context.Context, node string) context.Context {
	return context.WithValue(ctx, nodeKey{}, node)
}

// NodeFromContext returns the node name set by WithNode.
func NodeFromContext(ctx context.Context) string {
	node, _ := ctx.Value(nodeKey{}).(string)
	return node
}

// RecordSuccess notes a response served by tier on behalf of node.
func (o *Overview) RecordSuccess(node, tier string, usage *ai.Usage) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.Requests++
	if o.TierCalls == nil {
		o.TierCalls = make(map[string]int)
	}
	o.TierCalls[tier]++
	if node != "" {
		if o.NodeTiers == nil {
			o.NodeTiers = make(map[string]string)
		}
		o.NodeTiers[node] = tier
	}
	if usage != nil {
		o.TotalUsage.PromptTokens += usage.PromptTokens
		o.TotalUsage.CompletionTokens += usage.CompletionTokens
		o.TotalUsage.TotalTokens += usage.TotalTokens
	}
}

// RecordFailure counts a terminal invocation failure.
func (o *Overview) RecordFailure() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Requests++
	o.Failures++
}

// StartExecution marks the start of the run.
func (o *Overview) StartExecution(at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ExecutionStartTime = at
}

// EndExecution marks the end of the run.
func (o *Overview) EndExecution(at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ExecutionEndTime = at
}

// ExecutionDuration returns the run duration, or 0 if it has not ended.
func (o *Overview) ExecutionDuration() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ExecutionStartTime.IsZero() || o.ExecutionEndTime.IsZero() {
		return 0
	}
	return o.ExecutionEndTime.Sub(o.ExecutionStartTime)
}

// Snapshot returns a copy that can be read without holding the lock.
func (o *Overview) Snapshot() *Overview {
	o.mu.Lock()
	defer o.mu.Unlock()
	return &Overview{
		TotalUsage:         o.TotalUsage,
		Requests:           o.Requests,
		Failures:           o.Failures,
		TierCalls:          maps.Clone(o.TierCalls),
		NodeTiers:          maps.Clone(o.NodeTiers),
		ExecutionStartTime: o.ExecutionStartTime,
		ExecutionEndTime:   o.ExecutionEndTime,
	}
}
