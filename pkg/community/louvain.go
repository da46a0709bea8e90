package community

import (
	"math/rand"
	"sort"
)

const (
	maxSweeps = 100
	maxPasses = 32
	minGain   = 1e-12
)

// Louvain partitions a graph by greedy modularity optimization: nodes are
// moved to the neighboring community with the best modularity gain, then
// communities are collapsed into nodes and the process repeats until no
// move improves modularity. Nodes are visited in a seeded random order.
type Louvain struct {
	// Resolution scales the null model. Values above 1 favor smaller
	// communities. 0 means 1.
	Resolution float64
}

type arc struct {
	to int
	w  float64
}

type wgraph struct {
	adj  [][]arc
	self []float64
}

func (g *wgraph) n() int {
	return len(g.adj)
}

// Partition implements Partitioner.
func (l Louvain) Partition(sub Subgraph, seed int64) [][]string {
	ids := append([]string(nil), sub.Nodes...)
	sort.Strings(ids)
	if len(ids) == 0 {
		return nil
	}

	index := make(map[string]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}
	links := make([]map[int]float64, len(ids))
	for i := range links {
		links[i] = map[int]float64{}
	}
	self := make([]float64, len(ids))
	for _, e := range sub.Edges {
		a, okA := index[e.Source]
		b, okB := index[e.Target]
		if !okA || !okB {
			continue
		}
		w := e.Weight
		if w <= 0 {
			w = 1
		}
		if a == b {
			self[a] += w
			continue
		}
		links[a][b] += w
		links[b][a] += w
	}
	g := &wgraph{adj: toArcs(links), self: self}

	rng := rand.New(rand.NewSource(seed))
	membership := make([]int, len(ids))
	for i := range membership {
		membership[i] = i
	}

	for pass := 0; pass < maxPasses; pass++ {
		comm, moved := l.localMoves(g, rng)
		if !moved {
			break
		}
		comm, k := renumber(comm)
		if k == g.n() {
			break
		}
		for i := range membership {
			membership[i] = comm[membership[i]]
		}
		g = aggregate(g, comm, k)
	}

	groups := map[int][]string{}
	var order []int
	for i, c := range membership {
		if _, ok := groups[c]; !ok {
			order = append(order, c)
		}
		groups[c] = append(groups[c], ids[i])
	}
	out := make([][]string, 0, len(order))
	for _, c := range order {
		out = append(out, groups[c])
	}
	return out
}

func (l Louvain) resolution() float64 {
	if l.Resolution <= 0 {
		return 1
	}
	return l.Resolution
}

func (l Louvain) localMoves(g *wgraph, rng *rand.Rand) ([]int, bool) {
	n := g.n()
	k := make([]float64, n)
	m2 := 0.0
	for i := 0; i < n; i++ {
		k[i] = 2 * g.self[i]
		for _, a := range g.adj[i] {
			k[i] += a.w
		}
		m2 += k[i]
	}

	comm := make([]int, n)
	tot := make([]float64, n)
	for i := range comm {
		comm[i] = i
		tot[i] = k[i]
	}
	if m2 == 0 {
		return comm, false
	}

	res := l.resolution()
	order := rng.Perm(n)
	moved := false
	weights := map[int]float64{}
	var cands []int

	for sweep := 0; sweep < maxSweeps; sweep++ {
		improved := false
		for _, i := range order {
			clear(weights)
			cands = cands[:0]
			for _, a := range g.adj[i] {
				c := comm[a.to]
				if _, ok := weights[c]; !ok {
					cands = append(cands, c)
				}
				weights[c] += a.w
			}

			old := comm[i]
			tot[old] -= k[i]
			best := old
			bestGain := weights[old] - res*tot[old]*k[i]/m2

			sort.Ints(cands)
			for _, c := range cands {
				gain := weights[c] - res*tot[c]*k[i]/m2
				if gain > bestGain+minGain {
					best, bestGain = c, gain
				}
			}

			comm[i] = best
			tot[best] += k[i]
			if best != old {
				improved = true
				moved = true
			}
		}
		if !improved {
			break
		}
	}
	return comm, moved
}

// renumber maps community labels to 0..k-1 in order of first appearance.
func renumber(comm []int) ([]int, int) {
	ids := map[int]int{}
	out := make([]int, len(comm))
	for i, c := range comm {
		id, ok := ids[c]
		if !ok {
			id = len(ids)
			ids[c] = id
		}
		out[i] = id
	}
	return out, len(ids)
}

func aggregate(g *wgraph, comm []int, k int) *wgraph {
	self := make([]float64, k)
	links := make([]map[int]float64, k)
	for i := range links {
		links[i] = map[int]float64{}
	}
	for i := 0; i < g.n(); i++ {
		ci := comm[i]
		self[ci] += g.self[i]
		for _, a := range g.adj[i] {
			cj := comm[a.to]
			if ci == cj {
				if i < a.to {
					self[ci] += a.w
				}
				continue
			}
			links[ci][cj] += a.w
		}
	}
	return &wgraph{adj: toArcs(links), self: self}
}

func toArcs(links []map[int]float64) [][]arc {
	adj := make([][]arc, len(links))
	for i, m := range links {
		arcs := make([]arc, 0, len(m))
		for j, w := range m {
			arcs = append(arcs, arc{to: j, w: w})
		}
		sort.Slice(arcs, func(a, b int) bool { return arcs[a].to < arcs[b].to })
		adj[i] = arcs
	}
	return adj
}
