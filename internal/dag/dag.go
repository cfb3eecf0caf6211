// Package dag provides the directed acyclic graph behind pipeline plans.
// Nodes keep their insertion order, so every traversal is deterministic and
// follows the order in which callers submitted the steps.
package dag

import (
	"fmt"
	"slices"
	"strings"
)

// Node is a graph vertex carrying a payload.
type Node[T any] struct {
	ID   string
	Data T
}

// Graph is a directed graph whose edges point from producer to consumer.
type Graph[T any] struct {
	order    []string
	nodes    map[string]*Node[T]
	children map[string][]string
	parents  map[string][]string
}

// CycleError reports a cycle; Path starts and ends on the same node.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "cycle detected: " + strings.Join(e.Path, " -> ")
}

// New creates an empty graph.
func New[T any]() *Graph[T] {
	return &Graph[T]{
		nodes:    make(map[string]*Node[T]),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
}

// AddNode inserts a node or replaces the payload of an existing one.
func (g *Graph[T]) AddNode(id string, data T) {
	if n, ok := g.nodes[id]; ok {
		n.Data = data
		return
	}
	g.nodes[id] = &Node[T]{ID: id, Data: data}
	g.order = append(g.order, id)
}

// AddEdge records that child consumes the output of parent.
func (g *Graph[T]) AddEdge(parent, child string) error {
	if _, ok := g.nodes[parent]; !ok {
		return fmt.Errorf("parent node %q does not exist", parent)
	}
	if _, ok := g.nodes[child]; !ok {
		return fmt.Errorf("child node %q does not exist", child)
	}
	if parent == child {
		return &CycleError{Path: []string{parent, parent}}
	}
	if !slices.Contains(g.children[parent], child) {
		g.children[parent] = append(g.children[parent], child)
		g.parents[child] = append(g.parents[child], parent)
	}
	return nil
}

// Node returns a node by id.
func (g *Graph[T]) Node(id string) (*Node[T], bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns every node in insertion order.
func (g *Graph[T]) Nodes() []*Node[T] {
	out := make([]*Node[T], len(g.order))
	for i, id := range g.order {
		out[i] = g.nodes[id]
	}
	return out
}

// Parents returns the direct producers of id.
func (g *Graph[T]) Parents(id string) []string {
	return slices.Clone(g.parents[id])
}

// Children returns the direct consumers of id.
func (g *Graph[T]) Children(id string) []string {
	return slices.Clone(g.children[id])
}

// Len returns the number of nodes.
func (g *Graph[T]) Len() int { return len(g.order) }

// EdgeCount returns the number of edges.
func (g *Graph[T]) EdgeCount() int {
	n := 0
	for _, c := range g.children {
		n += len(c)
	}
	return n
}

// FindCycle returns a cycle path, or nil when the graph is acyclic.
func (g *Graph[T]) FindCycle() []string {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make(map[string]int, len(g.nodes))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = onStack
		stack = append(stack, id)
		for _, c := range g.children[id] {
			switch state[c] {
			case onStack:
				start := slices.Index(stack, c)
				cycle = append(slices.Clone(stack[start:]), c)
				return true
			case unvisited:
				if visit(c) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return false
	}

	for _, id := range g.order {
		if state[id] == unvisited && visit(id) {
			return cycle
		}
	}
	return nil
}

// TopologicalSort orders nodes so producers precede consumers. Among nodes
// whose producers are all placed, insertion order wins.
func (g *Graph[T]) TopologicalSort() ([]*Node[T], error) {
	if c := g.FindCycle(); c != nil {
		return nil, &CycleError{Path: c}
	}
	indegree := make(map[string]int, len(g.nodes))
	for _, id := range g.order {
		indegree[id] = len(g.parents[id])
	}
	placed := make(map[string]bool, len(g.nodes))
	out := make([]*Node[T], 0, len(g.nodes))
	for len(out) < len(g.order) {
		for _, id := range g.order {
			if placed[id] || indegree[id] > 0 {
				continue
			}
			placed[id] = true
			out = append(out, g.nodes[id])
			for _, c := range g.children[id] {
				indegree[c]--
			}
			break
		}
	}
	return out, nil
}

// IsTopological reports whether ids lists every node with producers first.
func (g *Graph[T]) IsTopological(ids []string) bool {
	if len(ids) != len(g.order) {
		return false
	}
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, ok := g.nodes[id]; !ok {
			return false
		}
		pos[id] = i
	}
	for parent, cs := range g.children {
		for _, c := range cs {
			if pos[parent] >= pos[c] {
				return false
			}
		}
	}
	return true
}

// Levels groups nodes into waves: a node sits one level after its deepest
// producer, so every node of a level can run concurrently once earlier levels
// are complete. Each level keeps insertion order.
func (g *Graph[T]) Levels() ([][]string, error) {
	sorted, err := g.TopologicalSort()
	if err != nil {
		return nil, err
	}
	level := make(map[string]int, len(sorted))
	depth := 0
	for _, n := range sorted {
		l := 0
		for _, p := range g.parents[n.ID] {
			l = max(l, level[p]+1)
		}
		level[n.ID] = l
		depth = max(depth, l+1)
	}
	levels := make([][]string, depth)
	for _, id := range g.order {
		levels[level[id]] = append(levels[level[id]], id)
	}
	return levels, nil
}

// Descendants returns every node downstream of id, in insertion order.
func (g *Graph[T]) Descendants(id string) []string {
	return g.reach(id, g.children)
}

// Ancestors returns every node upstream of id, in insertion order.
func (g *Graph[T]) Ancestors(id string) []string {
	return g.reach(id, g.parents)
}

func (g *Graph[T]) reach(id string, next map[string][]string) []string {
	seen := map[string]bool{}
	var walk func(string)
	walk = func(n string) {
		for _, m := range next[n] {
			if !seen[m] {
				seen[m] = true
				walk(m)
			}
		}
	}
	walk(id)
	var out []string
	for _, n := range g.order {
		if seen[n] {
			out = append(out, n)
		}
	}
	return out
}

// Roots returns nodes without producers.
func (g *Graph[T]) Roots() []string {
	var out []string
	for _, id := range g.order {
		if len(g.parents[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// Leaves returns nodes without consumers.
func (g *Graph[T]) Leaves() []string {
	var out []string
	for _, id := range g.order {
		if len(g.children[id]) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// Subgraph returns the graph induced by ids.
func (g *Graph[T]) Subgraph(ids []string) *Graph[T] {
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	sub := New[T]()
	for _, id := range g.order {
		if keep[id] {
			sub.AddNode(id, g.nodes[id].Data)
		}
	}
	for _, id := range sub.order {
		for _, c := range g.children[id] {
			if keep[c] {
				_ = sub.AddEdge(id, c)
			}
		}
	}
	return sub
}
