// Package ai defines the model service boundary: the [Provider] interface
// and the provider-agnostic request and response types that every backend
// (Gemini, OpenAI-compatible) converts to and from.
//
// Providers are synchronous. Failures surface as ordinary errors; an HTTP
// rejection is reported as an [APIError] so callers can classify it without
// string matching.
package ai
