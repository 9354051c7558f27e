// Package observability defines the interfaces and semantic conventions used
// for tracing, metrics, and structured logging throughout devforge.
//
// The central entry point is [Provider], which composes [Tracer], [Metrics],
// and [Logger] into a single injectable dependency. Every component accepts a
// nil Provider and then records nothing. An active [Provider] and [Span] travel
// through a [context.Context] via [ContextWithObserver] and [ContextWithSpan].
//
// semconv.go holds the attribute keys, span names and metric names shared by
// the graph executor, the model invoker and the providers.
package observability
