package graph

import (
	"context"
	"slices"

	"github.com/leofalp/devforge/core/state"
)

// End is the terminal marker. Edges to End mark the points where a run may
// finish; End itself is never executed.
const End = "__end__"

// NodeInput is what a node sees when it runs.
type NodeInput struct {
	RunID string
	Node  string
	// State is a private deep copy of the run state taken when the node was
	// launched. Mutating it has no effect on the run.
	State state.Values
}

// Node is a unit of work. It returns a partial update that the executor
// merges into the run state using each field's policy.
//
// A returned error fails the node. Recoverable problems (for example a model
// reply that could not be parsed) should be absorbed by the node and reported
// as a degraded update instead.
type Node interface {
	Run(ctx context.Context, in NodeInput) (state.Values, error)
}

// NodeFunc adapts an ordinary function to Node.
type NodeFunc func(ctx context.Context, in NodeInput) (state.Values, error)

// Run calls f.
func (f NodeFunc) Run(ctx context.Context, in NodeInput) (state.Values, error) {
	return f(ctx, in)
}

// EdgeKind distinguishes the three ways an edge can fire.
type EdgeKind int

const (
	// EdgeNormal fires whenever its source completes.
	EdgeNormal EdgeKind = iota
	// EdgeBranch is one route of a branch; it fires when its predicate is
	// the single match.
	EdgeBranch
	// EdgeFallback fires only when its source fails.
	EdgeFallback
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeBranch:
		return "branch"
	case EdgeFallback:
		return "fallback"
	default:
		return "normal"
	}
}

// Route is one alternative of a branch.
type Route struct {
	To   string
	When Predicate
}

// Edge describes a directed edge for inspection.
type Edge struct {
	From string
	To   string
	Kind EdgeKind
	// When is set for branch edges.
	When Predicate
}

type edge struct {
	from string
	to   string
	kind EdgeKind
	when Predicate
	// group identifies the out-edge group of from: 0 for normal edges,
	// 1..n for branch routes and -1 for the fallback edge.
	group int
}

type node struct {
	name        string
	run         Node
	writes      []string
	description string

	out []*edge
	in  []*edge
}

// declares reports whether the node may write field.
func (n *node) declares(field string) bool {
	return len(n.writes) == 0 || slices.Contains(n.writes, field)
}

// NodeInfo describes a node for inspection.
type NodeInfo struct {
	Name        string
	Description string
	Writes      []string
}

// Graph is a validated, immutable workflow definition. It can be executed
// any number of times, each time by a new Executor.
type Graph struct {
	schema *state.Schema
	entry  string
	nodes  map[string]*node
	// order is the insertion order of nodes.
	order []string
	// topo is a deterministic topological order.
	topo  []string
	edges []*edge
}

// Schema returns the state schema the graph was built against.
func (g *Graph) Schema() *state.Schema { return g.schema }

// Entry returns the entry node.
func (g *Graph) Entry() string { return g.entry }

// Nodes returns the nodes in topological order.
func (g *Graph) Nodes() []NodeInfo {
	out := make([]NodeInfo, 0, len(g.topo))
	for _, name := range g.topo {
		n := g.nodes[name]
		out = append(out, NodeInfo{Name: n.name, Description: n.description, Writes: slices.Clone(n.writes)})
	}
	return out
}

// Edges returns every edge in declaration order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	for i, e := range g.edges {
		out[i] = Edge{From: e.from, To: e.to, Kind: e.kind, When: e.when}
	}
	return out
}
