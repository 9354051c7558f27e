package observability

import (
	"context"
	"time"
)

// Provider is what the executor, the invoker and the providers record to.
type Provider interface {
	Tracer
	Metrics
	Logger
}

type Tracer interface {
	// StartSpan opens a span and returns a context that carries it.
	StartSpan(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Span is one graph run, node execution or model call.
type Span interface {
	End()
	SetAttributes(attrs ...Attribute)
	SetStatus(code StatusCode, description string)
	RecordError(err error)
	AddEvent(name string, attrs ...Attribute)
}

// StatusCode is the outcome set on a span when it ends.
type StatusCode int

const (
	StatusOK StatusCode = iota + 1
	StatusError
)

// Metrics hands out instruments by name; the names live in semconv.go.
type Metrics interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

type Counter interface {
	Add(ctx context.Context, value int64, attrs ...Attribute)
}

// Histogram records durations in seconds.
type Histogram interface {
	Record(ctx context.Context, value float64, attrs ...Attribute)
}

type Logger interface {
	Debug(ctx context.Context, msg string, attrs ...Attribute)
	Info(ctx context.Context, msg string, attrs ...Attribute)
	Warn(ctx context.Context, msg string, attrs ...Attribute)
	Error(ctx context.Context, msg string, attrs ...Attribute)
}

// Attribute is a key/value pair attached to spans, metrics and log records.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute { return Attribute{Key: key, Value: value} }

func Int(key string, value int) Attribute { return Attribute{Key: key, Value: value} }

func Bool(key string, value bool) Attribute { return Attribute{Key: key, Value: value} }

func Duration(key string, value time.Duration) Attribute { return Attribute{Key: key, Value: value} }

// Error records err under AttrError. A nil error records an empty string.
func Error(err error) Attribute {
	if err == nil {
		return Attribute{Key: AttrError, Value: ""}
	}
	return Attribute{Key: AttrError, Value: err.Error()}
}
