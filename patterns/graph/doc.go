// Package graph runs workflows described as directed acyclic graphs of
// nodes that share a typed state.
//
// A graph is built with [NewGraph] against a [state.Schema]. Nodes receive a
// snapshot of the state and return an update; the executor merges updates
// with each field's policy, writes a checkpoint after every commit and then
// resolves the node's outgoing edges:
//
//   - normal edges fire when the node completes
//   - branch routes are predicates over the post-merge state; exactly one
//     must match, or an [Otherwise] route catches the rest
//   - fallback edges fire only when the node fails
//
// A node becomes ready once every incoming edge is resolved and at least one
// of them fired. A node none of whose incoming edges fired is skipped and the
// skip propagates, so joins downstream of a branch never wait forever.
// Independent ready nodes run concurrently.
//
// [GraphBuilder.Build] rejects cycles, unreachable nodes, branches that do
// not cover their field's domain and pairs of concurrent nodes declaring the
// same overwrite field.
//
// Example:
//
//	g, err := graph.NewGraph(schema).
//	    AddNode("plan", planNode, graph.WithWrites("plan")).
//	    AddNode("code", codeNode, graph.WithWrites("code")).
//	    AddEdge("plan", "code").
//	    AddEdge("code", graph.End).
//	    SetEntry("plan").
//	    Build()
//	if err != nil {
//	    return err
//	}
//
//	stream, err := graph.NewExecutor(g, graph.WithCheckpointStore(store)).
//	    Start(ctx, state.Values{"request": "add a health endpoint"}, "")
//	if err != nil {
//	    return err
//	}
//	for ev, err := range stream.Iter() {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(ev.Node, ev.Status)
//	}
//
// A run interrupted by a crash or a cancellation continues from its
// checkpoints with [Executor.Resume].
package graph
