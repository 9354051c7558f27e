// Package state implements the shared state of a workflow run.
//
// A [Schema] declares every field a run may hold, together with its type and
// merge policy. A [Store] holds the current values for one run and combines
// partial updates coming from nodes according to those policies:
//
//   - [Overwrite]: the last writer wins.
//   - [ShallowMerge]: map keys from the update are added or replace existing
//     keys; untouched keys survive.
//   - [Append]: list items from the update are appended in commit order.
//
// The Store serializes merges behind a mutex and only ever hands out deep
// copies, so readers never observe a torn value. Node computations run in
// parallel; only the commit of their results is serialized.
//
// Example:
//
//	schema, err := state.NewSchema(
//	    state.Field{Name: "plan", Type: state.Map, Policy: state.Overwrite},
//	    state.Field{Name: "files", Type: state.Map, Policy: state.ShallowMerge},
//	    state.Field{Name: "logs", Type: state.List, Policy: state.Append},
//	)
//	store, err := state.NewStore(schema, state.Values{"plan": map[string]any{}})
//	err = store.Merge(state.Values{"logs": "planned"})
package state
