package engine

import (
	"fmt"
	"sort"
	"strings"
)

// NodeKind distinguishes transforms from free inputs in a Graph.
type NodeKind string

const (
	// NodeTransform is a name produced by a registered transform.
	NodeTransform NodeKind = "transform"

	// NodeInput is a parameter name no transform produces; it must be
	// supplied by the caller.
	NodeInput NodeKind = "input"
)

// GraphNode is one name in the static dependency graph.
type GraphNode struct {
	// Name is the transform or input name.
	Name string `json:"name"`

	// Kind is transform or input.
	Kind NodeKind `json:"kind"`

	// Level is the topological level: inputs and parameterless transforms are
	// at level 0. Members of a static cycle, and everything downstream of one,
	// have level -1.
	Level int `json:"level"`

	// Dependencies are the parameter names of a transform, in declared order.
	Dependencies []string `json:"dependencies,omitempty"`

	// Dependents are the transforms that take this name as a parameter, sorted.
	Dependents []string `json:"dependents,omitempty"`
}

// GraphEdge runs from a parameter to the transform that consumes it.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the static dependency graph implied by a model's parameter names.
// Static cycles are reported but are not errors on their own: an input that
// shadows a cycle member breaks the cycle at evaluation time.
type Graph struct {
	Nodes  map[string]*GraphNode `json:"nodes"`
	Edges  []GraphEdge           `json:"edges"`
	Levels [][]string            `json:"levels"`
	Cycles [][]string            `json:"cycles,omitempty"`

	model *SystemsModel
}

// BuildGraph constructs the dependency graph of model, detects static cycles
// and computes topological levels.
func BuildGraph(model *SystemsModel) *Graph {
	g := &Graph{
		Nodes:  make(map[string]*GraphNode),
		Edges:  make([]GraphEdge, 0),
		Levels: make([][]string, 0),
		model:  model,
	}

	// First pass: one node per transform
	for _, t := range model.Transforms() {
		g.Nodes[t.name] = &GraphNode{
			Name:         t.name,
			Kind:         NodeTransform,
			Level:        -1,
			Dependencies: t.Parameters(),
		}
	}

	// Second pass: free inputs and edges
	for _, t := range model.Transforms() {
		for _, p := range t.parameters {
			node, ok := g.Nodes[p]
			if !ok {
				node = &GraphNode{Name: p, Kind: NodeInput, Level: -1}
				g.Nodes[p] = node
			}
			node.Dependents = append(node.Dependents, t.name)
			g.Edges = append(g.Edges, GraphEdge{From: p, To: t.name})
		}
	}
	for _, node := range g.Nodes {
		sort.Strings(node.Dependents)
	}

	g.detectCycles()
	g.computeLevels()

	return g
}

// detectCycles runs a depth-first search from every node in name order and
// records one cycle per back edge, rotated to start at its smallest name.
func (g *Graph) detectCycles() {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	seen := make(map[string]bool)
	var path []string

	var visit func(name string)
	visit = func(name string) {
		visited[name] = true
		onStack[name] = true
		path = append(path, name)

		for _, dependent := range g.Nodes[name].Dependents {
			if !visited[dependent] {
				visit(dependent)
				continue
			}
			if !onStack[dependent] {
				continue
			}
			// Back edge: the cycle is path[start:] closed on dependent
			start := 0
			for i, n := range path {
				if n == dependent {
					start = i
					break
				}
			}
			cycle := canonicalCycle(path[start:])
			key := strings.Join(cycle, "\x00")
			if !seen[key] {
				seen[key] = true
				g.Cycles = append(g.Cycles, cycle)
			}
		}

		path = path[:len(path)-1]
		onStack[name] = false
	}

	for _, name := range g.names() {
		if !visited[name] {
			visit(name)
		}
	}

	sort.Slice(g.Cycles, func(i, j int) bool {
		return strings.Join(g.Cycles[i], " ") < strings.Join(g.Cycles[j], " ")
	})
}

// canonicalCycle turns a DFS path along parameter->consumer edges into a
// closed cycle in "requires" order, rotated to start at its smallest name.
func canonicalCycle(members []string) []string {
	n := len(members)
	reversed := make([]string, n)
	for i, m := range members {
		reversed[n-1-i] = m
	}
	start := 0
	for i, m := range reversed {
		if m < reversed[start] {
			start = i
		}
	}
	cycle := make([]string, 0, n+1)
	for i := 0; i < n; i++ {
		cycle = append(cycle, reversed[(start+i)%n])
	}
	return append(cycle, cycle[0])
}

// computeLevels assigns topological levels using Kahn's algorithm.
// Nodes that never reach in-degree zero belong to or depend on a cycle.
func (g *Graph) computeLevels() {
	inDegree := make(map[string]int, len(g.Nodes))
	for name, node := range g.Nodes {
		inDegree[name] = len(node.Dependencies)
	}

	current := make([]string, 0)
	for _, name := range g.names() {
		if inDegree[name] == 0 {
			current = append(current, name)
		}
	}

	for level := 0; len(current) > 0; level++ {
		g.Levels = append(g.Levels, current)

		next := make([]string, 0)
		for _, name := range current {
			g.Nodes[name].Level = level
			for _, dependent := range g.Nodes[name].Dependents {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		sort.Strings(next)
		current = next
	}
}

func (g *Graph) names() []string {
	names := make([]string, 0, len(g.Nodes))
	for name := range g.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Inputs returns the free input names, sorted.
func (g *Graph) Inputs() []string {
	inputs := make([]string, 0)
	for _, name := range g.names() {
		if g.Nodes[name].Kind == NodeInput {
			inputs = append(inputs, name)
		}
	}
	return inputs
}

// Requirements returns the free inputs output ultimately depends on when no
// intermediate value is supplied, sorted. It fails like an evaluation would
// for an unknown output or a cycle on the way.
func (g *Graph) Requirements(output string) ([]string, error) {
	return g.Missing(output, nil)
}

// Missing is a dry-run evaluation: it returns the sorted names that would
// have to be added to known for output to be evaluated. Names in known
// shadow transforms exactly as inputs do.
func (g *Graph) Missing(output string, known map[string]interface{}) ([]string, error) {
	if _, ok := known[output]; ok {
		return []string{}, nil
	}
	if _, ok := g.model.transforms[output]; !ok {
		return nil, NewUnknownTargetError(output, nil)
	}

	missing := make(map[string]bool)
	done := make(map[string]bool)
	var stack []string
	onStack := make(map[string]int)

	var walk func(name string) error
	walk = func(name string) error {
		if _, ok := known[name]; ok || done[name] {
			return nil
		}
		t, ok := g.model.transforms[name]
		if !ok {
			missing[name] = true
			done[name] = true
			return nil
		}
		if idx, resolving := onStack[name]; resolving {
			cycle := append(append([]string(nil), stack[idx:]...), name)
			return NewCircularDependencyError(cycle)
		}

		onStack[name] = len(stack)
		stack = append(stack, name)
		for _, p := range t.parameters {
			if err := walk(p); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		delete(onStack, name)
		done[name] = true
		return nil
	}

	if err := walk(output); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(missing))
	for name := range missing {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Validate returns a circular dependency error for the first static cycle,
// or nil when the graph is acyclic.
func (g *Graph) Validate() error {
	if len(g.Cycles) == 0 {
		return nil
	}
	err := NewCircularDependencyError(g.Cycles[0])
	if len(g.Cycles) > 1 {
		err = err.WithDetail("cycles", len(g.Cycles))
	}
	return err
}

// ToDOT generates a DOT representation of the graph for Graphviz.
// Nodes are clustered by level; inputs are drawn as ellipses.
func (g *Graph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph SystemsModel {\n")
	sb.WriteString("  rankdir=LR;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, names := range g.Levels {
		sb.WriteString(fmt.Sprintf("  subgraph cluster_level_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Level %d\";\n", level))
		sb.WriteString("    style=dashed;\n")
		for _, name := range names {
			sb.WriteString("    " + g.dotNode(name))
		}
		sb.WriteString("  }\n\n")
	}

	// Cycle members are not part of any level
	for _, name := range g.names() {
		if g.Nodes[name].Level < 0 {
			sb.WriteString("  " + g.dotNode(name))
		}
	}

	for _, e := range g.Edges {
		sb.WriteString(fmt.Sprintf("  %q -> %q;\n", e.From, e.To))
	}

	sb.WriteString("}\n")
	return sb.String()
}

func (g *Graph) dotNode(name string) string {
	node := g.Nodes[name]
	switch {
	case node.Kind == NodeInput:
		return fmt.Sprintf("%q [shape=ellipse, fillcolor=\"lightgray\", style=filled];\n", name)
	case node.Level < 0:
		return fmt.Sprintf("%q [fillcolor=\"lightcoral\", style=\"filled,rounded\"];\n", name)
	default:
		return fmt.Sprintf("%q [fillcolor=\"lightblue\", style=\"filled,rounded\"];\n", name)
	}
}
