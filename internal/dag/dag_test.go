package dag

import (
	"errors"
	"slices"
	"testing"
)

func ids[T any](nodes []*Node[T]) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

// diamond builds a -> b, a -> c, b -> d, c -> d.
func diamond() *Graph[int] {
	g := New[int]()
	for i, id := range []string{"a", "b", "c", "d"} {
		g.AddNode(id, i)
	}
	_ = g.AddEdge("a", "b")
	_ = g.AddEdge("a", "c")
	_ = g.AddEdge("b", "d")
	_ = g.AddEdge("c", "d")
	return g
}

func TestGraph_AddNodeAndEdge(t *testing.T) {
	g := New[string]()
	g.AddNode("a", "A")
	g.AddNode("b", "B")
	g.AddNode("a", "A2")

	if g.Len() != 2 {
		t.Fatalf("expected 2 nodes, got %d", g.Len())
	}
	if n, _ := g.Node("a"); n.Data != "A2" {
		t.Errorf("expected payload to be replaced, got %q", n.Data)
	}
	if err := g.AddEdge("a", "b"); err != nil {
		t.Fatalf("failed to add edge: %v", err)
	}
	if err := g.AddEdge("a", "b"); err != nil {
		t.Fatalf("duplicate edge should be ignored: %v", err)
	}
	if g.EdgeCount() != 1 {
		t.Errorf("expected 1 edge, got %d", g.EdgeCount())
	}
}

func TestGraph_AddEdge_Errors(t *testing.T) {
	g := New[any]()
	g.AddNode("a", nil)

	if err := g.AddEdge("a", "missing"); err == nil {
		t.Error("expected error for missing child")
	}
	if err := g.AddEdge("missing", "a"); err == nil {
		t.Error("expected error for missing parent")
	}

	var ce *CycleError
	if err := g.AddEdge("a", "a"); !errors.As(err, &ce) {
		t.Errorf("expected CycleError for self-loop, got %v", err)
	}
}

func TestGraph_FindCycle(t *testing.T) {
	g := diamond()
	if c := g.FindCycle(); c != nil {
		t.Fatalf("unexpected cycle %v", c)
	}

	_ = g.AddEdge("d", "a")
	c := g.FindCycle()
	if len(c) < 2 || c[0] != c[len(c)-1] {
		t.Fatalf("expected closed cycle path, got %v", c)
	}
	if _, err := g.TopologicalSort(); err == nil {
		t.Error("expected TopologicalSort to fail on a cycle")
	}
	if _, err := g.Levels(); err == nil {
		t.Error("expected Levels to fail on a cycle")
	}
}

func TestGraph_TopologicalSort_KeepsInsertionOrder(t *testing.T) {
	g := New[int]()
	g.AddNode("z", 0)
	g.AddNode("y", 0)
	g.AddNode("x", 0)
	_ = g.AddEdge("x", "z")

	nodes, err := g.TopologicalSort()
	if err != nil {
		t.Fatal(err)
	}
	got := ids(nodes)
	want := []string{"y", "x", "z"}
	if !slices.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if !g.IsTopological(got) {
		t.Error("sorted order should be topological")
	}
	if g.IsTopological([]string{"z", "y", "x"}) {
		t.Error("z before x is not topological")
	}
}

func TestGraph_Levels(t *testing.T) {
	levels, err := diamond().Levels()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{{"a"}, {"b", "c"}, {"d"}}
	if len(levels) != len(want) {
		t.Fatalf("expected %d levels, got %v", len(want), levels)
	}
	for i := range want {
		if !slices.Equal(levels[i], want[i]) {
			t.Errorf("level %d: expected %v, got %v", i, want[i], levels[i])
		}
	}
}

func TestGraph_DescendantsAndAncestors(t *testing.T) {
	g := diamond()
	if got := g.Descendants("b"); !slices.Equal(got, []string{"d"}) {
		t.Errorf("descendants of b: %v", got)
	}
	if got := g.Descendants("a"); !slices.Equal(got, []string{"b", "c", "d"}) {
		t.Errorf("descendants of a: %v", got)
	}
	if got := g.Ancestors("d"); !slices.Equal(got, []string{"a", "b", "c"}) {
		t.Errorf("ancestors of d: %v", got)
	}
	if got := g.Parents("d"); !slices.Equal(got, []string{"b", "c"}) {
		t.Errorf("parents of d: %v", got)
	}
}

func TestGraph_RootsLeaves(t *testing.T) {
	g := diamond()
	g.AddNode("lonely", 9)
	if got := g.Roots(); !slices.Equal(got, []string{"a", "lonely"}) {
		t.Errorf("roots: %v", got)
	}
	if got := g.Leaves(); !slices.Equal(got, []string{"d", "lonely"}) {
		t.Errorf("leaves: %v", got)
	}
}

func TestGraph_Subgraph(t *testing.T) {
	sub := diamond().Subgraph([]string{"a", "b", "d"})
	if sub.Len() != 3 {
		t.Fatalf("expected 3 nodes, got %d", sub.Len())
	}
	if sub.EdgeCount() != 2 {
		t.Errorf("expected edges a->b and b->d, got %d", sub.EdgeCount())
	}
	if n, _ := sub.Node("d"); n.Data != 3 {
		t.Errorf("payload should be carried, got %d", n.Data)
	}
}
