// Package graph models the service dependency graph: node id -> set of
// prerequisite ids. The graph is built once at configuration time, validated
// acyclic before any probing starts, and read-only during execution.
package graph

import (
	"fmt"
	"strings"
)

// Graph is a directed acyclic dependency graph keyed by node id.
// Iteration helpers preserve declaration order so callers get deterministic
// output regardless of map ordering.
type Graph struct {
	order []string
	deps  map[string][]string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{deps: make(map[string][]string)}
}

// Add declares a node and its prerequisites. Node ids must be unique and
// non-empty; prerequisites may be declared in any order relative to the
// nodes they name (Validate checks the references).
func (g *Graph) Add(id string, dependsOn ...string) error {
	if id == "" {
		return fmt.Errorf("graph: node id must not be empty")
	}
	if _, exists := g.deps[id]; exists {
		return fmt.Errorf("graph: duplicate node %q", id)
	}
	g.order = append(g.order, id)
	g.deps[id] = append([]string(nil), dependsOn...)
	return nil
}

// Len returns the number of declared nodes.
func (g *Graph) Len() int { return len(g.order) }

// Nodes returns all node ids in declaration order.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.order...)
}

// DependenciesOf returns the direct prerequisites of a node.
func (g *Graph) DependenciesOf(id string) []string {
	return append([]string(nil), g.deps[id]...)
}

// Dependents returns the reverse adjacency: node id -> direct dependents,
// in declaration order.
func (g *Graph) Dependents() map[string][]string {
	rev := make(map[string][]string, len(g.order))
	for _, id := range g.order {
		for _, dep := range g.deps[id] {
			rev[dep] = append(rev[dep], id)
		}
	}
	return rev
}

// Downstream returns every transitive dependent of a node, in declaration
// order. Used to short-circuit nodes whose upstream became unavailable.
func (g *Graph) Downstream(id string) []string {
	rev := g.Dependents()
	reached := make(map[string]bool)
	stack := []string{id}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range rev[current] {
			if !reached[dep] {
				reached[dep] = true
				stack = append(stack, dep)
			}
		}
	}
	var result []string
	for _, node := range g.order {
		if reached[node] {
			result = append(result, node)
		}
	}
	return result
}

// Validate checks that every prerequisite reference names a declared node
// and that the graph is acyclic.
func (g *Graph) Validate() error {
	for _, id := range g.order {
		for _, dep := range g.deps[id] {
			if _, exists := g.deps[dep]; !exists {
				return fmt.Errorf("graph: node %q depends on undeclared node %q", id, dep)
			}
			if dep == id {
				return fmt.Errorf("graph: node %q depends on itself", id)
			}
		}
	}
	_, err := g.TopoSort()
	return err
}

// TopoSort returns the node ids in an order where every node appears after
// all of its prerequisites (Kahn's algorithm, declaration-order stable).
// A cycle yields an error naming the nodes involved.
func (g *Graph) TopoSort() ([]string, error) {
	remaining := make(map[string]int, len(g.order))
	for _, id := range g.order {
		remaining[id] = len(g.deps[id])
	}
	rev := g.Dependents()

	var sorted []string
	queue := make([]string, 0, len(g.order))
	for _, id := range g.order {
		if remaining[id] == 0 {
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)
		for _, dependent := range rev[id] {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}
	if len(sorted) != len(g.order) {
		var cycle []string
		for _, id := range g.order {
			if remaining[id] > 0 {
				cycle = append(cycle, id)
			}
		}
		return nil, fmt.Errorf("graph: dependency cycle involving %s", strings.Join(cycle, ", "))
	}
	return sorted, nil
}
