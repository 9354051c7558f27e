package graph

import (
	"context"
	"time"

	"github.com/leofalp/devforge/providers/observability"
)

// observeRunStart opens the run span and returns a context carrying it and
// the observer. With no observer the context is returned unchanged.
func (r *run) observeRunStart(ctx context.Context) context.Context {
	if r.observer == nil {
		return ctx
	}

	ctx, r.span = r.observer.StartSpan(ctx, observability.SpanGraphRun,
		observability.String(observability.AttrGraphRunID, r.id),
		observability.String(observability.AttrGraphEntry, r.g.entry),
		observability.Int(observability.AttrGraphNodeCount, len(r.g.nodes)),
	)
	ctx = observability.ContextWithSpan(ctx, r.span)
	ctx = observability.ContextWithObserver(ctx, r.observer)

	r.observer.Info(ctx, "graph run started",
		observability.String(observability.AttrGraphRunID, r.id),
		observability.Int(observability.AttrGraphNodeCount, len(r.g.nodes)),
	)
	return ctx
}

// observeRunEnd records run metrics and closes the run span.
func (r *run) observeRunEnd(res *RunResult, runErr error) {
	if r.observer == nil {
		return
	}
	ctx := r.nodeCtx
	status := string(res.Status)

	r.observer.Counter(observability.MetricGraphRuns).Add(ctx, 1,
		observability.String(observability.AttrGraphStatus, status),
	)
	r.observer.Histogram(observability.MetricGraphRunDuration).Record(ctx, res.Duration().Seconds(),
		observability.String(observability.AttrGraphStatus, status),
	)

	attrs := []observability.Attribute{
		observability.String(observability.AttrGraphRunID, r.id),
		observability.String(observability.AttrGraphStatus, status),
		observability.Int("graph.executed", len(res.Executed)),
		observability.Bool(observability.AttrGraphResumed, r.resumed),
		observability.Duration(observability.AttrDuration, res.Duration()),
	}
	if runErr != nil {
		r.observer.Error(ctx, "graph run finished", append(attrs, observability.Error(runErr))...)
	} else {
		r.observer.Info(ctx, "graph run finished", attrs...)
	}

	if r.span != nil {
		r.span.SetAttributes(observability.String(observability.AttrGraphStatus, status))
		if runErr != nil {
			r.span.RecordError(runErr)
			r.span.SetStatus(observability.StatusError, "graph run "+status)
		} else {
			r.span.SetStatus(observability.StatusOK, "graph run "+status)
		}
		r.span.End()
	}
}

// observeNodeStart opens a child span for a node.
func (r *run) observeNodeStart(ctx context.Context, name string) context.Context {
	if r.observer == nil {
		return ctx
	}

	var span observability.Span
	ctx, span = r.observer.StartSpan(ctx, observability.SpanGraphNode,
		observability.String(observability.AttrGraphRunID, r.id),
		observability.String(observability.AttrGraphNode, name),
	)
	ctx = observability.ContextWithSpan(ctx, span)

	r.observer.Debug(ctx, "node started", observability.String(observability.AttrGraphNode, name))
	return ctx
}

// observeNodeEnd records node metrics and closes the node span.
func (r *run) observeNodeEnd(ctx context.Context, name string, nodeErr error, duration time.Duration) {
	if r.observer == nil {
		return
	}

	r.observer.Histogram(observability.MetricGraphNodeDuration).Record(ctx, duration.Seconds(),
		observability.String(observability.AttrGraphNode, name),
	)

	span := observability.SpanFromContext(ctx)
	if nodeErr != nil {
		r.observer.Counter(observability.MetricGraphNodesFailed).Add(ctx, 1,
			observability.String(observability.AttrGraphNode, name),
		)
		r.observer.Error(ctx, "node failed",
			observability.String(observability.AttrGraphNode, name),
			observability.Error(nodeErr),
			observability.Duration(observability.AttrDuration, duration),
		)
		if span != nil {
			span.RecordError(nodeErr)
			span.SetStatus(observability.StatusError, "node failed")
			span.End()
		}
		return
	}

	r.observer.Counter(observability.MetricGraphNodesExecuted).Add(ctx, 1,
		observability.String(observability.AttrGraphNode, name),
	)
	r.observer.Info(ctx, "node completed",
		observability.String(observability.AttrGraphNode, name),
		observability.Duration(observability.AttrDuration, duration),
	)
	if span != nil {
		span.SetStatus(observability.StatusOK, "node completed")
		span.End()
	}
}

func (r *run) observeNodeSkipped(name string) {
	if r.observer == nil {
		return
	}
	r.observer.Debug(r.nodeCtx, "node skipped", observability.String(observability.AttrGraphNode, name))
}

// observeCheckpointFailed reports a checkpoint write that did not stick.
func (r *run) observeCheckpointFailed(name string, seq int, err error) {
	if r.observer == nil {
		return
	}
	r.observer.Counter(observability.MetricGraphCheckpointsFailed).Add(r.nodeCtx, 1,
		observability.String(observability.AttrGraphNode, name),
	)
	r.observer.Warn(r.nodeCtx, "checkpoint write failed",
		observability.String(observability.AttrGraphRunID, r.id),
		observability.String(observability.AttrGraphNode, name),
		observability.Int(observability.AttrGraphSequence, seq),
		observability.Error(err),
	)
}
