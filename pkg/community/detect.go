// Package community groups the entities of a merged graph into a hierarchy
// of communities and describes each community with an LLM generated
// report.
package community

import (
	"fmt"
	"sort"
	"time"

	"github.com/OFFIS-RIT/graphrag/pkg/common"
	"github.com/OFFIS-RIT/graphrag/pkg/logger"
)

// Edge is a weighted undirected edge of a Subgraph.
type Edge struct {
	Source string
	Target string
	Weight float64
}

// Subgraph is the input of a Partitioner.
type Subgraph struct {
	Nodes []string
	Edges []Edge
}

// Partitioner splits a graph into disjoint node sets covering every node.
// Given the same subgraph and seed it must return the same partition.
type Partitioner interface {
	Partition(sub Subgraph, seed int64) [][]string
}

// Membership is the community of one entity at one level.
type Membership struct {
	Level       int    `json:"level"`
	CommunityID string `json:"community_id"`
}

// Result is the community hierarchy of a graph.
type Result struct {
	Seed        int64
	Levels      int
	Communities []common.Community
	// Membership maps an entity id to its communities ordered by level.
	Membership map[string][]Membership
}

// Level returns the communities of one level.
func (r Result) Level(level int) []common.Community {
	var out []common.Community
	for _, c := range r.Communities {
		if c.Level == level {
			out = append(out, c)
		}
	}
	return out
}

// Detector builds the community hierarchy.
//
// Level 0 partitions the whole graph. Each further level partitions the
// communities of the previous level that are larger than MaxClusterSize;
// smaller ones, and ones the partitioner cannot split, are carried down
// unchanged so every level covers every entity. Detection stops after
// MaxLevels levels or when a level splits nothing.
type Detector struct {
	Partitioner    Partitioner
	MaxLevels      int
	MaxClusterSize int
	// Seed drives the partitioner. 0 picks a time based seed, which makes
	// runs non-deterministic.
	Seed int64
}

type pending struct {
	members []string
	parent  *string
}

// Detect partitions the snapshot.
func (d Detector) Detect(snap common.Snapshot) Result {
	seed := d.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
		logger.Warn("[Community] No seed configured, community assignment is not reproducible", "seed", seed)
	}
	partitioner := d.Partitioner
	if partitioner == nil {
		partitioner = Louvain{}
	}
	maxLevels := d.MaxLevels
	if maxLevels <= 0 {
		maxLevels = 4
	}
	maxSize := d.MaxClusterSize
	if maxSize <= 0 {
		maxSize = 10
	}

	res := Result{Seed: seed, Membership: map[string][]Membership{}}
	if len(snap.Entities) == 0 {
		return res
	}

	all := make([]string, 0, len(snap.Entities))
	for _, e := range snap.Entities {
		all = append(all, e.ID)
	}
	edges := make([]Edge, 0, len(snap.Relationships))
	for _, r := range snap.Relationships {
		edges = append(edges, Edge{Source: r.SourceID, Target: r.TargetID, Weight: r.Weight})
	}

	var current []pending
	for _, part := range partitioner.Partition(Subgraph{Nodes: all, Edges: edges}, seed) {
		current = append(current, pending{members: part})
	}
	current = res.add(0, current)

	for level := 1; level < maxLevels; level++ {
		split := false
		var next []pending
		for _, c := range current {
			parent := c.parent
			if len(c.members) <= maxSize {
				next = append(next, pending{members: c.members, parent: parent})
				continue
			}
			parts := partitioner.Partition(induced(c.members, edges), seed)
			if len(parts) > 1 {
				split = true
			} else {
				parts = [][]string{c.members}
			}
			for _, p := range parts {
				next = append(next, pending{members: p, parent: parent})
			}
		}
		if !split {
			break
		}
		current = res.add(level, next)
	}

	logger.Info("[Community] Communities detected",
		"seed", seed,
		"levels", res.Levels,
		"communities", len(res.Communities),
	)
	return res
}

// add assigns ids to one level and returns the level with parent pointers
// set to the new ids, ready to be split further.
func (r *Result) add(level int, comms []pending) []pending {
	kept := comms[:0]
	for _, c := range comms {
		if len(c.members) == 0 {
			continue
		}
		m := append([]string(nil), c.members...)
		sort.Strings(m)
		c.members = m
		kept = append(kept, c)
	}
	comms = kept
	sort.SliceStable(comms, func(a, b int) bool {
		return comms[a].members[0] < comms[b].members[0]
	})

	out := make([]pending, 0, len(comms))
	for i, c := range comms {
		id := fmt.Sprintf("L%d-%d", level, i)
		r.Communities = append(r.Communities, common.Community{
			ID:        id,
			Level:     level,
			EntityIDs: c.members,
			ParentID:  c.parent,
		})
		for _, e := range c.members {
			r.Membership[e] = append(r.Membership[e], Membership{Level: level, CommunityID: id})
		}
		out = append(out, pending{members: c.members, parent: &id})
	}
	r.Levels = level + 1
	return out
}

func induced(members []string, edges []Edge) Subgraph {
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[m] = struct{}{}
	}
	sub := Subgraph{Nodes: members}
	for _, e := range edges {
		_, okS := set[e.Source]
		_, okT := set[e.Target]
		if okS && okT {
			sub.Edges = append(sub.Edges, e)
		}
	}
	return sub
}
