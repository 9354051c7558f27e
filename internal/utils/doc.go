// Package utils provides shared low-level helpers used throughout devforge
// internals: a synchronous JSON POST helper for provider APIs, plus string
// helpers for log truncation, JSON rendering and filesystem-safe names.
package utils
