// Package graph validates the dependency structure of a parsed
// directive batch before anything is launched. A batch is rejected as a
// whole when names collide, a dependency names an unknown process, or
// the dependencies form a cycle.
package graph

import (
	"fmt"
	"strings"

	"overture/internal/directive"
)

// Graph is a validated batch. Node order matches the directive order.
type Graph struct {
	Nodes []directive.Directive

	index      map[string]int
	successors map[string][]string
}

// DuplicateNameError reports two directives claiming the same name.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate process name %q", e.Name)
}

// UnknownReferenceError reports a dependency on a name no directive
// declares. Generated names are not referenceable.
type UnknownReferenceError struct {
	Node      string
	Reference string
}

func (e *UnknownReferenceError) Error() string {
	return fmt.Sprintf("process %q depends on unknown process %q", e.Node, e.Reference)
}

// CycleError reports a dependency cycle. Path lists the nodes along the
// cycle, first node repeated at the end.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
}

// Build validates the batch and returns its graph.
func Build(nodes []directive.Directive) (*Graph, error) {
	g := &Graph{
		Nodes:      nodes,
		index:      make(map[string]int, len(nodes)),
		successors: make(map[string][]string),
	}

	for i, node := range nodes {
		if _, exists := g.index[node.Name]; exists {
			return nil, &DuplicateNameError{Name: node.Name}
		}
		g.index[node.Name] = i
	}

	for _, node := range nodes {
		if node.Start.Kind != directive.StartAfterProcess {
			continue
		}
		after := node.Start.After
		target, exists := g.index[after]
		if !exists || nodes[target].Generated {
			return nil, &UnknownReferenceError{Node: node.Name, Reference: after}
		}
		g.successors[after] = append(g.successors[after], node.Name)
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &CycleError{Path: cycle}
	}

	return g, nil
}

// Predecessor returns the name of the process the named node waits on,
// or "" when it has none.
func (g *Graph) Predecessor(name string) string {
	i, exists := g.index[name]
	if !exists {
		return ""
	}
	node := g.Nodes[i]
	if node.Start.Kind != directive.StartAfterProcess {
		return ""
	}
	return node.Start.After
}

// Successors returns the names of the processes waiting on the named
// node, in directive order.
func (g *Graph) Successors(name string) []string {
	return g.successors[name]
}

// Node returns the directive for the named process.
func (g *Graph) Node(name string) (directive.Directive, bool) {
	i, exists := g.index[name]
	if !exists {
		return directive.Directive{}, false
	}
	return g.Nodes[i], true
}

const (
	colorWhite = iota // unvisited
	colorGray         // on the current path
	colorBlack        // done
)

func (g *Graph) findCycle() []string {
	colors := make(map[string]int, len(g.Nodes))
	var path []string

	var visit func(name string) []string
	visit = func(name string) []string {
		colors[name] = colorGray
		path = append(path, name)
		for _, next := range g.successors[name] {
			switch colors[next] {
			case colorGray:
				// Trim the path prefix before the cycle entry point.
				start := 0
				for i, n := range path {
					if n == next {
						start = i
						break
					}
				}
				cycle := append([]string{}, path[start:]...)
				return append(cycle, next)
			case colorWhite:
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			}
		}
		path = path[:len(path)-1]
		colors[name] = colorBlack
		return nil
	}

	for _, node := range g.Nodes {
		if colors[node.Name] == colorWhite {
			if cycle := visit(node.Name); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
