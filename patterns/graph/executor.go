package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/leofalp/devforge/core/checkpoint"
	"github.com/leofalp/devforge/core/overview"
	"github.com/leofalp/devforge/core/state"
	"github.com/leofalp/devforge/providers/observability"
)

// DefaultErrorsField is the append field that receives node failures.
const DefaultErrorsField = "errors"

// Executor runs a Graph once. Build a new Executor for every run; a second
// Start or Resume returns ErrAlreadyStarted.
type Executor struct {
	graph   *Graph
	cfg     executorConfig
	started atomic.Bool
}

// NewExecutor prepares a single run of g.
func NewExecutor(g *Graph, opts ...ExecutorOption) *Executor {
	cfg := executorConfig{
		eventBuffer: defaultEventBuffer,
		now:         time.Now,
		errorsField: DefaultErrorsField,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.eventBuffer < 0 {
		cfg.eventBuffer = 0
	}
	return &Executor{graph: g, cfg: cfg}
}

// NewRunID returns a fresh time-ordered run ID.
func NewRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (e *Executor) checkErrorsField() error {
	f, ok := e.graph.schema.Field(e.cfg.errorsField)
	if ok && f.Policy != state.Append {
		return fmt.Errorf("%w: errors field %q must use the append policy", ErrInvalidGraph, f.Name)
	}
	return nil
}

// Start launches the run and returns its event stream. An empty runID is
// replaced by a generated UUIDv7.
//
// Cancelling ctx has the same effect as RunStream.Cancel: no new nodes are
// launched, but nodes already running are not interrupted. They run under a
// context detached from ctx so they can finish and checkpoint.
func (e *Executor) Start(ctx context.Context, initial state.Values, runID string) (*RunStream, error) {
	if !e.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}
	if err := e.checkErrorsField(); err != nil {
		return nil, err
	}
	if runID == "" {
		runID = NewRunID()
	}

	store, err := state.NewStore(e.graph.schema, initial)
	if err != nil {
		return nil, fmt.Errorf("initial state: %w", err)
	}

	r := e.newRun(ctx, runID, store)
	r.markReady(e.graph.entry)
	go r.loop(nil)
	return r.stream, nil
}

// Resume continues a run from its checkpoints. The state is restored from
// the latest checkpoint; every checkpointed node is treated as finished with
// its recorded status and its outgoing edges are resolved against the state
// it committed. Execution continues from the frontier this reconstructs, and
// sequence numbers continue after the last checkpoint.
//
// A node that failed without a fallback edge fails the resumed run again:
// Resume recovers interrupted runs, it does not retry failures.
func (e *Executor) Resume(ctx context.Context, runID string) (*RunStream, error) {
	if e.cfg.store == nil {
		return nil, ErrNoCheckpointStore
	}
	if !e.started.CompareAndSwap(false, true) {
		return nil, ErrAlreadyStarted
	}
	if err := e.checkErrorsField(); err != nil {
		return nil, err
	}

	history, err := checkpoint.History(ctx, e.cfg.store, runID)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", runID, err)
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("resume %s: %w", runID, checkpoint.ErrNotFound)
	}
	for _, cp := range history {
		if _, ok := e.graph.nodes[cp.Node]; !ok {
			return nil, fmt.Errorf("resume %s: %w: checkpoint for unknown node %q", runID, ErrInvalidGraph, cp.Node)
		}
	}

	store, err := state.NewStore(e.graph.schema, nil)
	if err != nil {
		return nil, err
	}
	latest := history[len(history)-1]
	if err := store.Restore(latest.State); err != nil {
		return nil, fmt.Errorf("resume %s: restore state: %w", runID, err)
	}

	r := e.newRun(ctx, runID, store)
	r.resumed = true
	r.seq = latest.Sequence
	if errs, ok := latest.State[e.cfg.errorsField].([]any); ok {
		for _, item := range errs {
			r.errs = append(r.errs, fmt.Sprint(item))
		}
	}
	r.markReady(e.graph.entry)
	go r.loop(history)
	return r.stream, nil
}

type nodeStatus int

const (
	nodeWaiting nodeStatus = iota
	nodeReady
	nodeRunning
	nodeDone
	nodeSkipped
)

type outcome int

const (
	outcomeCompleted outcome = iota
	outcomeFailed
	outcomeSkipped
)

type nodeResult struct {
	name     string
	update   state.Values
	err      error
	duration time.Duration
	ctx      context.Context
}

// run is the state of one execution. Everything except the cancel flag is
// owned by the coordinator goroutine running loop.
type run struct {
	g     *Graph
	cfg   executorConfig
	id    string
	store *state.Store
	ov    *overview.Overview

	observer  observability.Provider
	span      observability.Span
	callerCtx context.Context
	nodeCtx   context.Context
	sem       *semaphore.Weighted

	cancelled atomic.Bool
	cancelCh  chan struct{}
	results   chan nodeResult
	stream    *RunStream

	resumed    bool
	status     map[string]nodeStatus
	pending    map[string]int
	activated  map[string]int
	ready      []string
	inFlight   int
	seq        int
	endReached bool
	failures   []error
	errs       []string
	executed   []string
	startedAt  time.Time
}

func (e *Executor) newRun(ctx context.Context, runID string, store *state.Store) *run {
	if ctx == nil {
		ctx = context.Background()
	}
	r := &run{
		g:         e.graph,
		cfg:       e.cfg,
		id:        runID,
		store:     store,
		ov:        overview.New(),
		callerCtx: ctx,
		cancelCh:  make(chan struct{}),
		results:   make(chan nodeResult, len(e.graph.nodes)),
		status:    make(map[string]nodeStatus, len(e.graph.nodes)),
		pending:   make(map[string]int, len(e.graph.nodes)),
		activated: make(map[string]int, len(e.graph.nodes)),
		startedAt: e.cfg.now(),
	}
	for name, n := range e.graph.nodes {
		r.pending[name] = len(n.in)
	}
	if e.cfg.maxConcurrency > 0 {
		r.sem = semaphore.NewWeighted(int64(e.cfg.maxConcurrency))
	}

	r.observer = e.cfg.observer
	if r.observer == nil {
		r.observer = observability.ObserverFromContext(ctx)
	}
	r.nodeCtx = r.observeRunStart(context.WithoutCancel(ctx))
	r.nodeCtx = r.ov.ToContext(r.nodeCtx)
	r.ov.StartExecution(r.startedAt)

	r.stream = &RunStream{
		runID:  runID,
		events: make(chan Event, e.cfg.eventBuffer),
		done:   make(chan struct{}),
		cancel: r.requestCancel,
	}
	return r
}

func (r *run) requestCancel() {
	if r.cancelled.CompareAndSwap(false, true) {
		close(r.cancelCh)
	}
}

func (r *run) halted() bool {
	return r.cancelled.Load() || len(r.failures) > 0
}

func (r *run) emit(ev Event) {
	ev.RunID = r.id
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.cfg.now()
	}
	r.stream.events <- ev
}

// loop is the coordinator. It launches ready nodes and serializes the
// handling of their results until nothing is running.
func (r *run) loop(history []checkpoint.Checkpoint) {
	r.emit(Event{Status: EventRunStarted})
	for _, cp := range history {
		r.replay(cp)
	}

	cancelCh := r.cancelCh
	callerDone := r.callerCtx.Done()
	for {
		r.launchReady()
		if r.inFlight == 0 {
			break
		}
		select {
		case res := <-r.results:
			r.commit(res)
		case <-cancelCh:
			cancelCh = nil
		case <-callerDone:
			callerDone = nil
			r.requestCancel()
		}
	}
	r.finish()
}

func (r *run) launchReady() {
	if r.callerCtx.Err() != nil {
		r.requestCancel()
	}
	for len(r.ready) > 0 {
		name := r.ready[0]
		if r.status[name] != nodeReady {
			r.ready = r.ready[1:]
			continue
		}
		if r.halted() {
			return
		}
		if r.sem != nil && !r.sem.TryAcquire(1) {
			return
		}
		r.ready = r.ready[1:]
		r.status[name] = nodeRunning
		r.inFlight++

		snapshot := r.store.Snapshot()
		r.emit(Event{Node: name, Status: EventStarted})
		go r.execute(name, snapshot)
	}
}

func (r *run) execute(name string, snapshot state.Values) {
	started := time.Now()
	ctx := overview.WithNode(r.nodeCtx, name)
	ctx = r.observeNodeStart(ctx, name)

	runCtx := ctx
	if r.cfg.nodeTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.nodeTimeout)
		defer cancel()
	}

	update, err := safeRun(runCtx, r.g.nodes[name].run, NodeInput{RunID: r.id, Node: name, State: snapshot})
	if r.sem != nil {
		r.sem.Release(1)
	}
	r.results <- nodeResult{name: name, update: update, err: err, duration: time.Since(started), ctx: ctx}
}

func safeRun(ctx context.Context, n Node, in NodeInput) (update state.Values, err error) {
	defer func() {
		if p := recover(); p != nil {
			update = nil
			err = fmt.Errorf("%w: %v", ErrNodePanic, p)
		}
	}()
	return n.Run(ctx, in)
}

// commit merges a node result, checkpoints and resolves outgoing edges.
func (r *run) commit(res nodeResult) {
	r.inFlight--
	n := r.g.nodes[res.name]

	err := res.err
	if err == nil {
		err = checkWrites(n, res.update)
	}
	if err == nil {
		if mergeErr := r.store.Merge(res.update); mergeErr != nil {
			err = fmt.Errorf("merge update: %w", mergeErr)
		}
	}

	result := outcomeCompleted
	cpStatus := checkpoint.StatusCompleted
	if err != nil {
		result = outcomeFailed
		cpStatus = checkpoint.StatusFailed
		nodeErr := &NodeError{Node: res.name, Err: err}
		r.recordError(nodeErr)
		if !hasFallback(n) {
			r.failures = append(r.failures, nodeErr)
		}
	}

	r.status[res.name] = nodeDone
	r.executed = append(r.executed, res.name)
	seq := r.saveCheckpoint(res.name, cpStatus)

	ev := Event{Node: res.name, Sequence: seq, Tier: r.ov.Snapshot().NodeTiers[res.name]}
	if err != nil {
		ev.Status, ev.Err = EventFailed, err
	} else {
		ev.Status, ev.Delta = EventCompleted, res.update.Clone()
	}
	r.emit(ev)
	r.observeNodeEnd(res.ctx, res.name, err, res.duration)

	r.resolve(n, result, r.store.Snapshot())
}

func checkWrites(n *node, update state.Values) error {
	for _, field := range update.Keys() {
		if !n.declares(field) {
			return fmt.Errorf("%w: %q", ErrUndeclaredWrite, field)
		}
	}
	return nil
}

func hasFallback(n *node) bool {
	return slices.ContainsFunc(n.out, func(e *edge) bool { return e.kind == EdgeFallback })
}

// recordError appends a node failure to the result and, when the schema has
// the errors field, to the run state.
func (r *run) recordError(err *NodeError) {
	msg := err.Error()
	r.errs = append(r.errs, msg)
	if !r.g.schema.Has(r.cfg.errorsField) {
		return
	}
	if mergeErr := r.store.Merge(state.Values{r.cfg.errorsField: msg}); mergeErr != nil && r.observer != nil {
		r.observer.Warn(r.nodeCtx, "Could not record node error in state",
			observability.String(observability.AttrGraphNode, err.Node),
			observability.Error(mergeErr),
		)
	}
}

// saveCheckpoint writes the post-merge snapshot. A failed save is reported
// and the run continues.
func (r *run) saveCheckpoint(name, status string) int {
	r.seq++
	seq := r.seq
	if r.cfg.store == nil {
		return seq
	}

	cp := checkpoint.Checkpoint{
		RunID:     r.id,
		Node:      name,
		Sequence:  seq,
		Status:    status,
		Timestamp: r.cfg.now(),
		State:     r.store.Snapshot(),
	}
	if err := r.cfg.store.Save(r.nodeCtx, cp); err != nil {
		wrapped := fmt.Errorf("%w: %s: %w", ErrCheckpointWrite, name, err)
		r.observeCheckpointFailed(name, seq, wrapped)
		r.emit(Event{Node: name, Status: EventCheckpointFailed, Sequence: seq, Err: wrapped})
	}
	return seq
}

// resolve decides which outgoing edges of n fire and updates the frontier.
func (r *run) resolve(n *node, result outcome, values state.Values) {
	var chosen *edge
	if result == outcomeCompleted {
		var err error
		chosen, err = pickRoute(n, values)
		if err != nil {
			nodeErr := &NodeError{Node: n.name, Err: err}
			r.recordError(nodeErr)
			r.failures = append(r.failures, nodeErr)
		}
	}

	for _, e := range n.out {
		fire := false
		switch e.kind {
		case EdgeNormal:
			fire = result == outcomeCompleted
		case EdgeBranch:
			fire = e == chosen
		case EdgeFallback:
			fire = result == outcomeFailed
		}
		r.follow(e, fire)
	}
}

// pickRoute returns the single branch route whose predicate matches, nil if
// n has no branch, or ErrEdgeAmbiguity.
func pickRoute(n *node, values state.Values) (*edge, error) {
	var matched []*edge
	var fallback *edge
	hasBranch := false
	for _, e := range n.out {
		if e.kind != EdgeBranch {
			continue
		}
		hasBranch = true
		if isOtherwise(e.when) {
			fallback = e
			continue
		}
		if e.when.Match(values) {
			matched = append(matched, e)
		}
	}

	switch {
	case !hasBranch:
		return nil, nil
	case len(matched) == 1:
		return matched[0], nil
	case len(matched) == 0 && fallback != nil:
		return fallback, nil
	case len(matched) == 0:
		return nil, fmt.Errorf("%w: no route matched", ErrEdgeAmbiguity)
	default:
		routes := make([]string, len(matched))
		for i, e := range matched {
			routes[i] = e.when.String() + " -> " + e.to
		}
		return nil, fmt.Errorf("%w: %d routes matched %v", ErrEdgeAmbiguity, len(matched), routes)
	}
}

func (r *run) follow(e *edge, fire bool) {
	if e.to == End {
		if fire {
			r.endReached = true
		}
		return
	}

	target := e.to
	r.pending[target]--
	if fire {
		r.activated[target]++
	}
	if r.pending[target] > 0 || r.status[target] != nodeWaiting {
		return
	}
	if r.activated[target] > 0 {
		r.markReady(target)
		return
	}
	r.skip(target)
}

func (r *run) markReady(name string) {
	r.status[name] = nodeReady
	r.ready = append(r.ready, name)
}

// skip marks a node that no fired edge reaches and propagates the skip.
func (r *run) skip(name string) {
	r.status[name] = nodeSkipped
	r.emit(Event{Node: name, Status: EventSkipped})
	r.observeNodeSkipped(name)
	r.resolve(r.g.nodes[name], outcomeSkipped, nil)
}

// replay applies a checkpoint from a previous attempt as if its node had
// just committed, without running it.
func (r *run) replay(cp checkpoint.Checkpoint) {
	n := r.g.nodes[cp.Node]
	if r.status[cp.Node] == nodeDone {
		return
	}
	r.status[cp.Node] = nodeDone
	r.executed = append(r.executed, cp.Node)

	result := outcomeCompleted
	if cp.Status == checkpoint.StatusFailed {
		result = outcomeFailed
		if !hasFallback(n) {
			r.failures = append(r.failures, &NodeError{Node: cp.Node, Err: errors.New("failed before resume")})
		}
	}
	r.resolve(n, result, cp.State)
}

func (r *run) finish() {
	remaining := 0
	for _, name := range r.ready {
		if r.status[name] == nodeReady {
			remaining++
		}
	}

	res := &RunResult{
		RunID:    r.id,
		State:    r.store.Snapshot(),
		Errors:   slices.Clone(r.errs),
		Executed: slices.Clone(r.executed),
		Started:  r.startedAt,
		Finished: r.cfg.now(),
	}
	r.ov.EndExecution(res.Finished)
	res.Overview = r.ov.Snapshot()

	var runErr error
	final := EventRunCompleted
	switch {
	case len(r.failures) > 0:
		res.Status, final = RunFailed, EventRunFailed
		runErr = errors.Join(r.failures...)
	case r.cancelled.Load() && (remaining > 0 || !r.endReached):
		res.Status, final = RunCancelled, EventRunCancelled
		runErr = ErrCancelled
	case r.endReached:
		res.Status = RunCompleted
	default:
		res.Status, final = RunFailed, EventRunFailed
		runErr = ErrEndNotReached
	}

	r.observeRunEnd(res, runErr)
	r.emit(Event{Status: final, Err: runErr, Timestamp: res.Finished})

	r.stream.result = res
	if runErr != nil {
		r.stream.err = &RunError{RunID: r.id, Status: res.Status, Err: runErr}
	}
	close(r.stream.events)
	close(r.stream.done)
}
