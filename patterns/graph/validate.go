package graph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/leofalp/devforge/core/state"
)

// validateStructure checks endpoints, routing modes and duplicates.
func validateStructure(g *Graph) error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidGraph}, args...)...))
	}

	if g.entry == "" {
		invalid("no entry node set")
	} else if _, ok := g.nodes[g.entry]; !ok {
		invalid("entry node %q does not exist", g.entry)
	}

	type edgeKey struct {
		from, to string
		kind     EdgeKind
	}
	seen := make(map[edgeKey]bool)
	normal := make(map[string]int)
	branch := make(map[string]int)
	fallback := make(map[string]int)

	for _, e := range g.edges {
		if e.from == End {
			invalid("edge from %s to %q: End has no outgoing edges", End, e.to)
			continue
		}
		if _, ok := g.nodes[e.from]; !ok {
			invalid("edge source %q does not exist", e.from)
			continue
		}
		if _, ok := g.nodes[e.to]; !ok && e.to != End {
			invalid("edge target %q (from %q) does not exist", e.to, e.from)
			continue
		}

		switch e.kind {
		case EdgeNormal:
			normal[e.from]++
		case EdgeBranch:
			branch[e.from]++
		case EdgeFallback:
			fallback[e.from]++
		}

		// Several branch routes may lead to End.
		if e.kind != EdgeBranch {
			key := edgeKey{e.from, e.to, e.kind}
			if seen[key] {
				invalid("duplicate %s edge from %q to %q", e.kind, e.from, e.to)
			}
			seen[key] = true
		}
	}

	for _, name := range g.order {
		if normal[name] > 0 && branch[name] > 0 {
			invalid("node %q has both plain edges and a branch", name)
		}
		if fallback[name] > 1 {
			invalid("node %q has %d fallback edges, at most one is allowed", name, fallback[name])
		}
		if normal[name] == 0 && branch[name] == 0 {
			invalid("node %q has no outgoing edge (add an edge to End)", name)
		}
	}

	return errors.Join(errs...)
}

// topologicalOrder runs Kahn's algorithm over node-to-node edges. Ties are
// broken by insertion order so the result is deterministic.
func topologicalOrder(g *Graph) ([]string, error) {
	position := make(map[string]int, len(g.order))
	inDegree := make(map[string]int, len(g.order))
	for i, name := range g.order {
		position[name] = i
		inDegree[name] = 0
	}
	for _, e := range g.edges {
		if e.to != End {
			inDegree[e.to]++
		}
	}

	var ready []string
	for _, name := range g.order {
		if inDegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	order := make([]string, 0, len(g.order))
	for len(ready) > 0 {
		slices.SortFunc(ready, func(a, b string) int { return position[a] - position[b] })
		current := ready[0]
		ready = ready[1:]
		order = append(order, current)

		for _, e := range g.nodes[current].out {
			if e.to == End {
				continue
			}
			inDegree[e.to]--
			if inDegree[e.to] == 0 {
				ready = append(ready, e.to)
			}
		}
	}

	if len(order) != len(g.order) {
		var cycle []string
		for _, name := range g.order {
			if inDegree[name] > 0 {
				cycle = append(cycle, name)
			}
		}
		return nil, fmt.Errorf("%w involving nodes %v", ErrCycle, cycle)
	}
	return order, nil
}

// validateReachability requires the entry to be a source and every node to
// be reachable from it. A node no run can reach would hold its successors'
// join counters open forever.
func validateReachability(g *Graph) []error {
	var errs []error
	if len(g.nodes[g.entry].in) > 0 {
		errs = append(errs, fmt.Errorf("%w: entry node %q has incoming edges", ErrInvalidGraph, g.entry))
	}

	reached := reachableFrom(g, g.entry, nil)
	for _, name := range g.order {
		if !reached[name] {
			errs = append(errs, fmt.Errorf("%w: node %q is not reachable from entry %q", ErrInvalidGraph, name, g.entry))
		}
	}
	return errs
}

// reachableFrom returns the nodes reachable from start, start included,
// ignoring edges for which skip returns true.
func reachableFrom(g *Graph, start string, skip func(*edge) bool) map[string]bool {
	seen := map[string]bool{start: true}
	stack := []string{start}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.nodes[current].out {
			if e.to == End || seen[e.to] || (skip != nil && skip(e)) {
				continue
			}
			seen[e.to] = true
			stack = append(stack, e.to)
		}
	}
	return seen
}

func validateWrites(g *Graph) []error {
	var errs []error
	for _, name := range g.order {
		for _, field := range g.nodes[name].writes {
			if !g.schema.Has(field) {
				errs = append(errs, fmt.Errorf("%w: node %q declares a write to unknown field %q", ErrInvalidGraph, name, field))
			}
		}
	}
	return errs
}

// validateBranches checks each branch for exclusivity and, where the
// predicates make it provable, exhaustiveness.
func validateBranches(g *Graph) []error {
	var errs []error
	for _, name := range g.order {
		var routes []*edge
		for _, e := range g.nodes[name].out {
			if e.kind == EdgeBranch {
				routes = append(routes, e)
			}
		}
		if len(routes) > 0 {
			errs = append(errs, validateBranch(g.schema, name, routes)...)
		}
	}
	return errs
}

func validateBranch(schema *state.Schema, from string, routes []*edge) []error {
	var errs []error
	nonExhaustive := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: branch from %q: "+format, append([]any{ErrNonExhaustiveBranch, from}, args...)...))
	}

	otherwise := 0
	var equals []equalsPredicate
	opaque := false
	for _, r := range routes {
		for _, field := range readFields(r.when) {
			if !schema.Has(field) {
				errs = append(errs, fmt.Errorf("%w: branch from %q reads unknown field %q", ErrInvalidGraph, from, field))
			}
		}
		switch p := r.when.(type) {
		case otherwisePredicate:
			otherwise++
		case equalsPredicate:
			equals = append(equals, p)
		default:
			opaque = true
		}
	}
	if otherwise > 1 {
		nonExhaustive("%d otherwise routes, at most one is allowed", otherwise)
	}

	// Two equality routes on the same value can never be exclusive.
	for i := range equals {
		for j := i + 1; j < len(equals); j++ {
			if equals[i].field == equals[j].field && valuesEqual(equals[i].value, equals[j].value) {
				nonExhaustive("two routes match %s", equals[i])
			}
		}
	}

	if opaque || len(equals) == 0 {
		return errs
	}
	field := equals[0].field
	for _, p := range equals[1:] {
		if p.field != field {
			return errs
		}
	}

	domain, closed, optional := fieldDomain(schema, field)
	if !closed {
		if otherwise == 0 {
			nonExhaustive("routes on %q cannot cover every value; add an Otherwise route or an enum", field)
		}
		return errs
	}
	if optional && otherwise == 0 {
		nonExhaustive("%q has no default and may be absent; add a default or an Otherwise route", field)
	}

	for _, p := range equals {
		if !slices.ContainsFunc(domain, func(v any) bool { return valuesEqual(v, p.value) }) {
			nonExhaustive("route %s tests a value outside %v", p, domain)
		}
	}
	if otherwise == 0 {
		for _, v := range domain {
			if !slices.ContainsFunc(equals, func(p equalsPredicate) bool { return valuesEqual(p.value, v) }) {
				nonExhaustive("no route for %s == %v", field, v)
			}
		}
	}
	return errs
}

// fieldDomain returns the finite set of values field can hold, if it has one.
// optional reports that the field may also be absent: only a default keeps a
// field present from the start of a run to its end.
func fieldDomain(schema *state.Schema, name string) (domain []any, closed, optional bool) {
	f, ok := schema.Field(name)
	if !ok {
		return nil, false, false
	}
	switch {
	case len(f.Enum) > 0:
		domain = f.Enum
	case f.Type == state.Bool:
		domain = []any{true, false}
	default:
		return nil, false, false
	}
	return domain, true, f.Default == nil
}

// validateMergeConflicts rejects graphs in which two nodes that may run
// concurrently both declare a write to the same overwrite field. A node with
// no declared writes counts as writing every overwrite field.
//
// Nodes a and b may run concurrently unless one is reachable from the other
// or they are mutually exclusive alternatives. They are exclusive when both
// depend on a different out-edge group of the same node: a requires group G
// of X when removing G's edges makes a unreachable from the entry.
func validateMergeConflicts(g *Graph) []error {
	var overwriteFields []string
	for _, f := range g.schema.Fields() {
		if f.Policy == state.Overwrite {
			overwriteFields = append(overwriteFields, f.Name)
		}
	}

	// A node without declared writes may write anything at run time.
	overwrites := make(map[string][]string)
	for _, name := range g.topo {
		n := g.nodes[name]
		if len(n.writes) == 0 {
			overwrites[name] = overwriteFields
			continue
		}
		for _, field := range n.writes {
			if f, ok := g.schema.Field(field); ok && f.Policy == state.Overwrite {
				overwrites[name] = append(overwrites[name], field)
			}
		}
	}
	if len(overwrites) < 2 {
		return nil
	}

	descendants := make(map[string]map[string]bool, len(g.topo))
	for _, name := range g.topo {
		descendants[name] = reachableFrom(g, name, nil)
	}
	requires := requiredGroups(g)

	exclusive := func(a, b string) bool {
		for x, groupsA := range requires[a] {
			groupsB, ok := requires[b][x]
			if !ok {
				continue
			}
			for _, ga := range groupsA {
				for _, gb := range groupsB {
					if ga != gb {
						return true
					}
				}
			}
		}
		return false
	}

	var errs []error
	for i, a := range g.topo {
		for _, b := range g.topo[i+1:] {
			if len(overwrites[a]) == 0 || len(overwrites[b]) == 0 {
				continue
			}
			if descendants[a][b] || descendants[b][a] || exclusive(a, b) {
				continue
			}
			for _, field := range overwrites[a] {
				if slices.Contains(overwrites[b], field) {
					errs = append(errs, fmt.Errorf("%w: %q and %q may run concurrently and both overwrite %q", ErrMergeConflict, a, b, field))
				}
			}
		}
	}
	return errs
}

// requiredGroups maps node -> branching node -> the out-edge groups of the
// branching node it cannot be reached without.
func requiredGroups(g *Graph) map[string]map[string][]int {
	out := make(map[string]map[string][]int)
	for _, x := range g.topo {
		groups := outGroups(g.nodes[x])
		if len(groups) < 2 {
			continue
		}
		for _, group := range groups {
			reached := reachableFrom(g, g.entry, func(e *edge) bool {
				return e.from == x && e.group == group
			})
			for _, name := range g.topo {
				if reached[name] {
					continue
				}
				if out[name] == nil {
					out[name] = make(map[string][]int)
				}
				out[name][x] = append(out[name][x], group)
			}
		}
	}
	return out
}

func outGroups(n *node) []int {
	var groups []int
	for _, e := range n.out {
		if !slices.Contains(groups, e.group) {
			groups = append(groups, e.group)
		}
	}
	return groups
}
