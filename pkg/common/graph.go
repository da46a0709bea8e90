package common

import (
	"errors"
	"slices"
	"sync"
)

// ErrGraphFrozen is returned when a structural change is attempted after
// the merge phase ended.
var ErrGraphFrozen = errors.New("graph structure is frozen")

// Graph is the merged knowledge graph. It is an arena of entities and
// relationships indexed by id. All access goes through the graph lock, so
// concurrent workers only ever see whole records.
//
// A graph contains:
//   - Entities: nodes keyed by EntityID(title, type)
//   - Relationships: undirected edges keyed by the unordered entity pair
//
// The graph grows during merge, then Freeze makes the structure read-only.
// Descriptions may still be replaced afterwards.
type Graph struct {
	ID string

	mu            sync.RWMutex
	frozen        bool
	entities      map[string]*Entity
	entityOrder   []string
	titles        map[string]string
	relationships map[string]*Relationship
	relOrder      []string
}

// NewGraph creates an empty graph.
func NewGraph(id string) *Graph {
	return &Graph{
		ID:            id,
		entities:      make(map[string]*Entity),
		titles:        make(map[string]string),
		relationships: make(map[string]*Relationship),
	}
}

// UpsertEntity inserts the entity or merges it into the existing record with
// the same id. Descriptions are appended in call order and text units are
// unioned. It reports whether a new node was created. Fails once frozen.
func (g *Graph) UpsertEntity(e Entity) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		return false, ErrGraphFrozen
	}
	if existing, ok := g.entities[e.ID]; ok {
		existing.DescriptionList = append(existing.DescriptionList, e.DescriptionList...)
		existing.TextUnitIDs = AppendUnique(existing.TextUnitIDs, e.TextUnitIDs...)
		return false, nil
	}

	rec := cloneEntity(e)
	rec.TextUnitIDs = AppendUnique(nil, e.TextUnitIDs...)
	g.entities[e.ID] = &rec
	g.entityOrder = append(g.entityOrder, e.ID)
	if _, ok := g.titles[NormalizeKey(e.Title)]; !ok {
		g.titles[NormalizeKey(e.Title)] = e.ID
	}
	return true, nil
}

// EntityIDByTitle returns the id of the first entity inserted with the given
// title, regardless of its type.
func (g *Graph) EntityIDByTitle(title string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	id, ok := g.titles[NormalizeKey(title)]
	return id, ok
}

// UpsertRelationship inserts the relationship or merges it into the edge of
// the same unordered pair. Weights are summed.
func (g *Graph) UpsertRelationship(r Relationship) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		return false, ErrGraphFrozen
	}
	if existing, ok := g.relationships[r.ID]; ok {
		existing.DescriptionList = append(existing.DescriptionList, r.DescriptionList...)
		existing.TextUnitIDs = AppendUnique(existing.TextUnitIDs, r.TextUnitIDs...)
		existing.Weight += r.Weight
		return false, nil
	}
	if _, ok := g.entities[r.SourceID]; !ok {
		return false, errors.New("relationship source entity does not exist")
	}
	if _, ok := g.entities[r.TargetID]; !ok {
		return false, errors.New("relationship target entity does not exist")
	}

	rec := cloneRelationship(r)
	rec.TextUnitIDs = AppendUnique(nil, r.TextUnitIDs...)
	g.relationships[r.ID] = &rec
	g.relOrder = append(g.relOrder, r.ID)
	return true, nil
}

// Freeze ends the merge phase and computes entity degrees.
func (g *Graph) Freeze() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.frozen {
		return
	}
	g.frozen = true
	for _, e := range g.entities {
		e.Degree = 0
	}
	for _, r := range g.relationships {
		g.entities[r.SourceID].Degree++
		g.entities[r.TargetID].Degree++
	}
}

// Frozen reports whether the structure is read-only.
func (g *Graph) Frozen() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.frozen
}

// SetEntityDescription replaces the description list of one entity with a
// single description.
func (g *Graph) SetEntityDescription(id, description string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entities[id]
	if !ok {
		return false
	}
	e.DescriptionList = []string{description}
	return true
}

// SetRelationshipDescription replaces the description list of one
// relationship with a single description.
func (g *Graph) SetRelationshipDescription(id, description string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.relationships[id]
	if !ok {
		return false
	}
	r.DescriptionList = []string{description}
	return true
}

// Entity returns a copy of the entity with the given id.
func (g *Graph) Entity(id string) (Entity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	e, ok := g.entities[id]
	if !ok {
		return Entity{}, false
	}
	return cloneEntity(*e), true
}

// Relationship returns a copy of the relationship with the given id.
func (g *Graph) Relationship(id string) (Relationship, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	r, ok := g.relationships[id]
	if !ok {
		return Relationship{}, false
	}
	return cloneRelationship(*r), true
}

// Entities returns copies of all entities in insertion order.
func (g *Graph) Entities() []Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Entity, 0, len(g.entityOrder))
	for _, id := range g.entityOrder {
		out = append(out, cloneEntity(*g.entities[id]))
	}
	return out
}

// Relationships returns copies of all relationships in insertion order.
func (g *Graph) Relationships() []Relationship {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Relationship, 0, len(g.relOrder))
	for _, id := range g.relOrder {
		out = append(out, cloneRelationship(*g.relationships[id]))
	}
	return out
}

// EntityCount returns the number of nodes.
func (g *Graph) EntityCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entityOrder)
}

// RelationshipCount returns the number of edges.
func (g *Graph) RelationshipCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.relOrder)
}

// Snapshot is a read-only copy of the graph handed to parallel workers.
type Snapshot struct {
	Entities      []Entity
	Relationships []Relationship
}

// Snapshot copies the whole graph under a single read lock.
func (g *Graph) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Snapshot{
		Entities:      make([]Entity, 0, len(g.entityOrder)),
		Relationships: make([]Relationship, 0, len(g.relOrder)),
	}
	for _, id := range g.entityOrder {
		s.Entities = append(s.Entities, cloneEntity(*g.entities[id]))
	}
	for _, id := range g.relOrder {
		s.Relationships = append(s.Relationships, cloneRelationship(*g.relationships[id]))
	}
	return s
}

// Induced returns the entities with the given ids and the relationships
// strictly between them, both in graph order.
func (s Snapshot) Induced(entityIDs []string) Snapshot {
	members := make(map[string]struct{}, len(entityIDs))
	for _, id := range entityIDs {
		members[id] = struct{}{}
	}

	out := Snapshot{}
	for _, e := range s.Entities {
		if _, ok := members[e.ID]; ok {
			out.Entities = append(out.Entities, e)
		}
	}
	for _, r := range s.Relationships {
		_, okS := members[r.SourceID]
		_, okT := members[r.TargetID]
		if okS && okT {
			out.Relationships = append(out.Relationships, r)
		}
	}
	return out
}

func cloneEntity(e Entity) Entity {
	e.DescriptionList = slices.Clone(e.DescriptionList)
	e.TextUnitIDs = slices.Clone(e.TextUnitIDs)
	return e
}

func cloneRelationship(r Relationship) Relationship {
	r.DescriptionList = slices.Clone(r.DescriptionList)
	r.TextUnitIDs = slices.Clone(r.TextUnitIDs)
	return r
}
