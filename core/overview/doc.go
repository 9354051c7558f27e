// Package overview aggregates per-run model usage: token totals, request
// counts and which service tier answered each call. An [Overview] travels in
// the context so the invoker can record into it without the graph executor
// knowing anything about models.
package overview
