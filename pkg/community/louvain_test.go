package community

import (
	"fmt"
	"reflect"
	"sort"
	"testing"
)

func clique(prefix string, n int) Subgraph {
	var sub Subgraph
	for i := 0; i < n; i++ {
		sub.Nodes = append(sub.Nodes, fmt.Sprintf("%s%d", prefix, i))
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sub.Edges = append(sub.Edges, Edge{Source: sub.Nodes[i], Target: sub.Nodes[j], Weight: 1})
		}
	}
	return sub
}

func twoCliques() Subgraph {
	a := clique("a", 5)
	b := clique("b", 5)
	sub := Subgraph{
		Nodes: append(a.Nodes, b.Nodes...),
		Edges: append(a.Edges, b.Edges...),
	}
	sub.Edges = append(sub.Edges, Edge{Source: "a0", Target: "b0", Weight: 1})
	return sub
}

func normalize(parts [][]string) [][]string {
	out := make([][]string, 0, len(parts))
	for _, p := range parts {
		c := append([]string(nil), p...)
		sort.Strings(c)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

func assertPartition(t *testing.T, nodes []string, parts [][]string) {
	t.Helper()
	seen := map[string]int{}
	for _, p := range parts {
		if len(p) == 0 {
			t.Fatalf("empty community in %v", parts)
		}
		for _, n := range p {
			seen[n]++
		}
	}
	for _, n := range nodes {
		if seen[n] != 1 {
			t.Fatalf("node %s appears %d times in %v", n, seen[n], parts)
		}
	}
	if len(seen) != len(nodes) {
		t.Fatalf("partition has %d nodes, want %d", len(seen), len(nodes))
	}
}

func TestLouvainSplitsTwoCliques(t *testing.T) {
	sub := twoCliques()
	parts := normalize(Louvain{}.Partition(sub, 42))

	want := [][]string{
		{"a0", "a1", "a2", "a3", "a4"},
		{"b0", "b1", "b2", "b3", "b4"},
	}
	if !reflect.DeepEqual(parts, want) {
		t.Fatalf("Partition() = %v, want %v", parts, want)
	}
}

func TestLouvainDeterministicForSeed(t *testing.T) {
	sub := twoCliques()
	sub.Nodes = append(sub.Nodes, "c0", "c1", "c2")
	sub.Edges = append(sub.Edges,
		Edge{Source: "c0", Target: "c1", Weight: 2},
		Edge{Source: "c1", Target: "c2", Weight: 2},
		Edge{Source: "c2", Target: "a3", Weight: 0.5},
	)

	first := Louvain{}.Partition(sub, 7)
	for i := 0; i < 5; i++ {
		again := Louvain{}.Partition(sub, 7)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %v vs %v", i, again, first)
		}
	}
	assertPartition(t, sub.Nodes, first)
}

func TestLouvainIsolatedNodesAndEmpty(t *testing.T) {
	if got := (Louvain{}).Partition(Subgraph{}, 1); got != nil {
		t.Fatalf("Partition(empty) = %v, want nil", got)
	}

	sub := Subgraph{
		Nodes: []string{"x", "y", "z"},
		Edges: []Edge{{Source: "x", Target: "unknown", Weight: 1}},
	}
	parts := normalize(Louvain{}.Partition(sub, 1))
	want := [][]string{{"x"}, {"y"}, {"z"}}
	if !reflect.DeepEqual(parts, want) {
		t.Fatalf("Partition() = %v, want %v", parts, want)
	}
}

func TestLouvainKeepsComponentsApart(t *testing.T) {
	a := clique("a", 4)
	b := clique("b", 4)
	sub := Subgraph{
		Nodes: append(append(a.Nodes, b.Nodes...), "p0", "p1", "p2", "z"),
		Edges: append(a.Edges, b.Edges...),
	}
	sub.Edges = append(sub.Edges,
		Edge{Source: "p0", Target: "p1", Weight: 1},
		Edge{Source: "p1", Target: "p2", Weight: 1},
	)

	// The first letter of a node id names its connected component.
	for seed := int64(1); seed <= 20; seed++ {
		parts := Louvain{}.Partition(sub, seed)
		assertPartition(t, sub.Nodes, parts)
		for _, p := range parts {
			for _, n := range p[1:] {
				if n[0] != p[0][0] {
					t.Fatalf("seed %d: community %v spans components", seed, p)
				}
			}
		}
	}
}
