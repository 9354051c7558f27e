// Package slogobs implements [observability.Provider] on top of log/slog.
// Spans and metrics are rendered as debug-level log records, which keeps the
// CLI dependency-free while still exposing the graph executor's run and node
// lifecycle. Format and level come from the log section of the configuration.
package slogobs
