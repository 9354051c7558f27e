package graph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/leofalp/devforge/core/state"
)

// GraphBuilder assembles a Graph with a fluent API. Problems found while
// adding nodes and edges are collected and reported together by Build, so
// callers only check one error.
//
// Example:
//
//	g, err := graph.NewGraph(schema).
//	    AddNode("analyze", analyze, graph.WithWrites("analysis")).
//	    AddNode("approve", approve, graph.WithWrites("approval")).
//	    AddNode("plan", plan, graph.WithWrites("plan")).
//	    AddEdge("analyze", "approve").
//	    AddBranch("approve",
//	        graph.Route{To: "plan", When: graph.FieldEquals("approval", "approved")},
//	        graph.Route{To: graph.End, When: graph.Otherwise()},
//	    ).
//	    AddEdge("plan", graph.End).
//	    SetEntry("analyze").
//	    Build()
type GraphBuilder struct {
	schema *state.Schema
	nodes  map[string]*node
	order  []string
	edges  []*edge
	entry  string

	branchGroups map[string]int
	buildErrors  []error
}

// NewGraph starts a graph whose nodes read and write fields of schema.
func NewGraph(schema *state.Schema) *GraphBuilder {
	return &GraphBuilder{
		schema:       schema,
		nodes:        make(map[string]*node),
		branchGroups: make(map[string]int),
	}
}

func (b *GraphBuilder) fail(format string, args ...any) {
	b.buildErrors = append(b.buildErrors, fmt.Errorf("%w: "+format, append([]any{ErrInvalidGraph}, args...)...))
}

// AddNode registers a node under a unique name.
func (b *GraphBuilder) AddNode(name string, n Node, opts ...NodeOption) *GraphBuilder {
	switch {
	case name == "":
		b.fail("node name must not be empty")
		return b
	case name == End:
		b.fail("node name %q is reserved", End)
		return b
	case n == nil:
		b.fail("node %q has no implementation", name)
		return b
	}
	if _, exists := b.nodes[name]; exists {
		b.fail("duplicate node %q", name)
		return b
	}

	graphNode := &node{name: name, run: n}
	for _, opt := range opts {
		opt(graphNode)
	}
	b.nodes[name] = graphNode
	b.order = append(b.order, name)
	return b
}

// AddEdge adds an unconditional edge. to may be End.
func (b *GraphBuilder) AddEdge(from, to string) *GraphBuilder {
	if from == "" || to == "" {
		b.fail("edge endpoints must not be empty (from=%q, to=%q)", from, to)
		return b
	}
	if from == to {
		b.fail("self-loop on %q", from)
		return b
	}
	b.edges = append(b.edges, &edge{from: from, to: to, kind: EdgeNormal})
	return b
}

// AddBranch routes from to exactly one of routes, chosen by evaluating each
// route's predicate against the state after from has committed. A node has
// at most one branch and a branch replaces plain edges.
func (b *GraphBuilder) AddBranch(from string, routes ...Route) *GraphBuilder {
	if from == "" {
		b.fail("branch source must not be empty")
		return b
	}
	if len(routes) == 0 {
		b.fail("branch from %q has no routes", from)
		return b
	}
	if b.branchGroups[from] > 0 {
		b.fail("node %q already has a branch", from)
		return b
	}
	for i, route := range routes {
		if route.To == "" || route.When == nil {
			b.fail("branch from %q: route %d needs a target and a predicate", from, i)
			return b
		}
		if route.To == from {
			b.fail("self-loop on %q", from)
			return b
		}
	}

	b.branchGroups[from] = len(routes)
	for i, route := range routes {
		b.edges = append(b.edges, &edge{from: from, to: route.To, kind: EdgeBranch, when: route.When, group: i + 1})
	}
	return b
}

// AddFallbackEdge adds an edge taken only when from fails. The failure is
// still recorded in the run's error list, but the run continues at to
// instead of failing. to may also be a normal successor of from.
func (b *GraphBuilder) AddFallbackEdge(from, to string) *GraphBuilder {
	if from == "" || to == "" {
		b.fail("fallback endpoints must not be empty (from=%q, to=%q)", from, to)
		return b
	}
	if from == to {
		b.fail("self-loop on %q", from)
		return b
	}
	b.edges = append(b.edges, &edge{from: from, to: to, kind: EdgeFallback, group: -1})
	return b
}

// SetEntry designates the first node of every run.
func (b *GraphBuilder) SetEntry(name string) *GraphBuilder {
	b.entry = name
	return b
}

// Build validates the definition and returns the executable Graph. Every
// problem found is reported; the returned error matches ErrInvalidGraph,
// ErrCycle, ErrMergeConflict or ErrNonExhaustiveBranch with errors.Is.
func (b *GraphBuilder) Build() (*Graph, error) {
	errs := append([]error(nil), b.buildErrors...)
	if b.schema == nil {
		errs = append(errs, fmt.Errorf("%w: nil state schema", ErrInvalidGraph))
	}
	if len(b.nodes) == 0 {
		errs = append(errs, fmt.Errorf("%w: graph has no nodes", ErrInvalidGraph))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	// The graph gets its own nodes so that building again, or adding to the
	// builder afterwards, leaves it untouched.
	nodes := make(map[string]*node, len(b.nodes))
	for name, n := range b.nodes {
		nodes[name] = &node{name: n.name, run: n.run, writes: slices.Clone(n.writes), description: n.description}
	}
	g := &Graph{
		schema: b.schema,
		entry:  b.entry,
		nodes:  nodes,
		order:  slices.Clone(b.order),
		edges:  slices.Clone(b.edges),
	}

	// Structure first: later checks assume every endpoint resolves.
	if err := validateStructure(g); err != nil {
		return nil, err
	}
	for _, e := range g.edges {
		g.nodes[e.from].out = append(g.nodes[e.from].out, e)
		if e.to != End {
			g.nodes[e.to].in = append(g.nodes[e.to].in, e)
		}
	}

	topo, err := topologicalOrder(g)
	if err != nil {
		return nil, err
	}
	g.topo = topo

	errs = append(errs, validateReachability(g)...)
	errs = append(errs, validateWrites(g)...)
	errs = append(errs, validateBranches(g)...)
	if len(errs) == 0 {
		errs = append(errs, validateMergeConflicts(g)...)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return g, nil
}
