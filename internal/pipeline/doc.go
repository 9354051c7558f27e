// Package pipeline defines the devforge agent workflow on top of
// patterns/graph.
//
// A run turns a natural-language requirements text into a generated project:
//
//	analyze -> approve -> plan -> {frontend, backend, mobile} -> validate
//	        -> deploy -> test -> security -> {refactor | optimize} -> finalize
//
// The approval step is a branch on the "approval" field: anything but
// "approved" ends the run early. The three generators run concurrently and
// join at validate; each one also has a fallback edge to validate, so a
// generator that fails outright degrades the run instead of aborting it.
// After the security review the run takes exactly one of refactor or
// optimize, depending on "needs_fixes".
//
// Every model-backed step sends one prompt through the resilient invoker and
// recovers the JSON object from the reply with parse.Extract. A reply without
// usable JSON does not fail the node: it records a log entry and contributes
// an empty output.
//
// Example:
//
//	p := pipeline.New(invoker, pipeline.WithApprover(pipeline.AutoApprove))
//	g, err := p.Graph()
//	if err != nil {
//	    return err
//	}
//	stream, err := graph.NewExecutor(g).Start(ctx, pipeline.InitialState(req), "")
package pipeline
