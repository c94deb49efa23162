package prereq

import (
	"bytes"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// planState tracks the DFS walk over the dependency graph.
type planState int

const (
	unvisited planState = iota
	visiting
	visited
)

// planStep is one scheduled construction: the type, the provider that will
// build it, and the scope owning that provider. The same type can appear in
// several steps when it is registered at more than one level and demanded
// from both.
type planStep struct {
	typ      reflect.Type
	owner    *scope
	provider *Provider
}

// planKey identifies a node in the walk. Keying by owner as well as type
// keeps a type registered at two levels as two distinct constructions,
// exactly as recursive resolution treats it.
type planKey struct {
	typ   reflect.Type
	owner *scope
}

// plan computes the transitive closure of the root types over the providers
// visible from this scope and returns a deterministic construction order,
// dependencies first. Roots are looked up from this scope; a provider's
// dependencies are looked up from the scope that owns the provider, which is
// the chain construct resolves them against. Types already cached on the
// relevant chain (seeded constants, values built by an enclosing scope) are
// closed over without expansion. A missing provider or a cycle fails the
// plan before any factory runs.
//
// The order is first-seen depth-first postorder, so it is stable for a given
// registry and root list.
func (s *scope) plan(roots []reflect.Type) ([]planStep, error) {
	states := make(map[planKey]planState)
	var order []planStep

	var visit func(t reflect.Type, from *scope, stack []reflect.Type) error
	visit = func(t reflect.Type, from *scope, stack []reflect.Type) error {
		owner, p, ok := from.find(t)
		if !ok {
			return from.resolveError(t)
		}
		if p == nil {
			// Satisfied from a cache; nothing to construct.
			return nil
		}

		key := planKey{typ: t, owner: owner}
		switch states[key] {
		case visiting:
			return circularError(t, stack)
		case visited:
			return nil
		}

		states[key] = visiting
		stack = append(stack, t)
		for _, at := range p.args {
			if err := visit(at, owner, stack); err != nil {
				return err
			}
		}
		states[key] = visited

		order = append(order, planStep{typ: t, owner: owner, provider: p})
		return nil
	}

	for _, t := range roots {
		if err := visit(t, s, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func circularError(t reflect.Type, stack []reflect.Type) error {
	chain := make([]string, 0, len(stack)+1)
	for _, s := range stack {
		chain = append(chain, s.String())
	}
	chain = append(chain, t.String())
	return fmt.Errorf("%w: %s", ErrCircularDependency, strings.Join(chain, " -> "))
}

// Graph is a snapshot of the registered provider graph, for diagnostics.
// Build one with [Resolver.Graph].
type Graph struct {
	nodes []GraphNode
	edges []GraphEdge
}

// GraphNode is one covered type in the provider graph.
type GraphNode struct {
	Type     reflect.Type
	Provider string
	Level    int
	Cached   bool
}

// GraphEdge is one dependency: From's provider requires To.
type GraphEdge struct {
	From reflect.Type
	To   reflect.Type
}

// Nodes returns the graph's nodes, sorted by level then type name.
func (g *Graph) Nodes() []GraphNode { return g.nodes }

// Edges returns the graph's dependency edges.
func (g *Graph) Edges() []GraphEdge { return g.edges }

// Graph snapshots every registered provider across all levels. Intended for
// debugging a registry that does not resolve the way you expect; the DOT
// form renders with any Graphviz tool.
func (r *Resolver) Graph() *Graph {
	g := &Graph{}

	levels := make([]int, 0, len(r.registry.levels))
	for level := range r.registry.levels {
		levels = append(levels, level)
	}
	sort.Ints(levels)

	for _, level := range levels {
		table := r.registry.levels[level]

		types := make([]reflect.Type, 0, len(table))
		for t := range table {
			types = append(types, t)
		}
		sort.Slice(types, func(i, j int) bool { return types[i].String() < types[j].String() })

		for _, t := range types {
			p := table[t]
			g.nodes = append(g.nodes, GraphNode{
				Type:     t,
				Provider: p.name,
				Level:    level,
				Cached:   !p.neverCache,
			})
			for _, at := range p.args {
				g.edges = append(g.edges, GraphEdge{From: t, To: at})
			}
		}
	}
	return g
}

// DOT renders the graph in Graphviz DOT format. Never-cache nodes are drawn
// dashed; node labels carry the provider name and level.
func (g *Graph) DOT() string {
	var buf bytes.Buffer
	buf.WriteString("digraph providers {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  node [shape=box, style=\"rounded\"];\n")
	buf.WriteString("\n")

	for _, n := range g.nodes {
		attrs := []string{
			fmt.Sprintf("label=%q", fmt.Sprintf("%s\n%s (level %d)", n.Type, n.Provider, n.Level)),
		}
		if !n.Cached {
			attrs = append(attrs, "style=\"rounded,dashed\"")
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", n.Type.String(), strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, e := range g.edges {
		fmt.Fprintf(&buf, "  %q -> %q;\n", e.From.String(), e.To.String())
	}

	buf.WriteString("}\n")
	return buf.String()
}
