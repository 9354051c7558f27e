package graph

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/leofalp/devforge/core/checkpoint"
	"github.com/leofalp/devforge/core/state"
	"github.com/leofalp/devforge/providers/observability"
)

// newTestSchema declares the fields used across the graph tests.
func newTestSchema(testCase *testing.T) *state.Schema {
	testCase.Helper()
	schema, err := state.NewSchema(
		state.Field{Name: "request", Type: state.String},
		state.Field{Name: "a", Type: state.String},
		state.Field{Name: "b", Type: state.String},
		state.Field{Name: "c", Type: state.String},
		state.Field{Name: "d", Type: state.String},
		state.Field{Name: "count", Type: state.Int},
		state.Field{Name: "flag", Type: state.Bool, Default: false},
		state.Field{Name: "ready", Type: state.Bool},
		state.Field{Name: "approval", Type: state.String, Enum: []any{"approved", "cancelled", "pending"}, Default: "pending"},
		state.Field{Name: "meta", Type: state.Map, Policy: state.ShallowMerge},
		state.Field{Name: "log", Type: state.List, Policy: state.Append},
		state.Field{Name: "errors", Type: state.List, Policy: state.Append},
	)
	if err != nil {
		testCase.Fatalf("schema: %v", err)
	}
	return schema
}

// setField returns a node writing value into field.
func setField(field string, value any) NodeFunc {
	return func(context.Context, NodeInput) (state.Values, error) {
		return state.Values{field: value}, nil
	}
}

func failWith(err error) NodeFunc {
	return func(context.Context, NodeInput) (state.Values, error) {
		return nil, err
	}
}

func mustBuild(testCase *testing.T, builder *GraphBuilder) *Graph {
	testCase.Helper()
	g, err := builder.Build()
	if err != nil {
		testCase.Fatalf("Build: %v", err)
	}
	return g
}

func eventsFor(events []Event, status EventStatus) []string {
	var nodes []string
	for _, ev := range events {
		if ev.Status == status {
			nodes = append(nodes, ev.Node)
		}
	}
	return nodes
}

// failingStore rejects every save.
type failingStore struct {
	checkpoint.Store
}

func (failingStore) Save(context.Context, checkpoint.Checkpoint) error {
	return errors.New("disk full")
}

// testObserver records span names, log messages and metric totals.
type testObserver struct {
	mu      sync.Mutex
	spans   []string
	logs    []string
	metrics map[string]float64
}

var _ observability.Provider = (*testObserver)(nil)

func newTestObserver() *testObserver {
	return &testObserver{metrics: make(map[string]float64)}
}

func (observer *testObserver) StartSpan(ctx context.Context, name string, _ ...observability.Attribute) (context.Context, observability.Span) {
	observer.mu.Lock()
	defer observer.mu.Unlock()
	observer.spans = append(observer.spans, name)
	return ctx, &testSpan{}
}

func (observer *testObserver) record(msg string) {
	observer.mu.Lock()
	defer observer.mu.Unlock()
	observer.logs = append(observer.logs, msg)
}

func (observer *testObserver) Debug(_ context.Context, msg string, _ ...observability.Attribute) {
	observer.record(msg)
}

func (observer *testObserver) Info(_ context.Context, msg string, _ ...observability.Attribute) {
	observer.record(msg)
}

func (observer *testObserver) Warn(_ context.Context, msg string, _ ...observability.Attribute) {
	observer.record(msg)
}

func (observer *testObserver) Error(_ context.Context, msg string, _ ...observability.Attribute) {
	observer.record(msg)
}

func (observer *testObserver) Counter(name string) observability.Counter {
	return &testCounter{name: name, observer: observer}
}

func (observer *testObserver) Histogram(name string) observability.Histogram {
	return &testHistogram{name: name, observer: observer}
}

func (observer *testObserver) metric(name string) float64 {
	observer.mu.Lock()
	defer observer.mu.Unlock()
	return observer.metrics[name]
}

type testSpan struct{}

func (span *testSpan) End()                                            {}
func (span *testSpan) SetAttributes(_ ...observability.Attribute)      {}
func (span *testSpan) SetStatus(_ observability.StatusCode, _ string)  {}
func (span *testSpan) RecordError(_ error)                             {}
func (span *testSpan) AddEvent(_ string, _ ...observability.Attribute) {}

type testCounter struct {
	name     string
	observer *testObserver
}

func (counter *testCounter) Add(_ context.Context, value int64, _ ...observability.Attribute) {
	counter.observer.mu.Lock()
	defer counter.observer.mu.Unlock()
	counter.observer.metrics[counter.name] += float64(value)
}

type testHistogram struct {
	name     string
	observer *testObserver
}

func (histogram *testHistogram) Record(_ context.Context, value float64, _ ...observability.Attribute) {
	histogram.observer.mu.Lock()
	defer histogram.observer.mu.Unlock()
	histogram.observer.metrics[histogram.name] = value
}
