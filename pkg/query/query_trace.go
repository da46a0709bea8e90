package query

import (
	"sort"
	"sync"
)

type TraceEventKind string

const (
	TraceEventSearchedEntityIDs TraceEventKind = "searched_entity_ids"
	TraceEventSelectedEntityIDs TraceEventKind = "selected_entity_ids"
	TraceEventDroppedEntityIDs  TraceEventKind = "dropped_entity_ids"
)

// TraceEvent is an extensible event envelope for query tracing.
type TraceEvent struct {
	Kind      TraceEventKind
	Query     string
	EntityIDs []string
}

// Tracer is a sink for query tracing events.
type Tracer interface {
	Record(event TraceEvent)
}

func record(t Tracer, kind TraceEventKind, query string, ids []string) {
	if t == nil || len(ids) == 0 {
		return
	}
	t.Record(TraceEvent{Kind: kind, Query: query, EntityIDs: ids})
}

// QueryTrace collects the entity ids seen by selections. It is safe for
// concurrent use.
type QueryTrace struct {
	mu sync.Mutex

	searched map[string]struct{}
	selected map[string]struct{}
	dropped  map[string]struct{}
}

type QueryTraceSnapshot struct {
	SearchedEntityIDs []string
	SelectedEntityIDs []string
	DroppedEntityIDs  []string
}

func NewQueryTrace() *QueryTrace {
	return &QueryTrace{
		searched: make(map[string]struct{}),
		selected: make(map[string]struct{}),
		dropped:  make(map[string]struct{}),
	}
}

func (t *QueryTrace) Record(event TraceEvent) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var set map[string]struct{}
	switch event.Kind {
	case TraceEventSearchedEntityIDs:
		set = t.searched
	case TraceEventSelectedEntityIDs:
		set = t.selected
	case TraceEventDroppedEntityIDs:
		set = t.dropped
	default:
		return
	}
	for _, id := range event.EntityIDs {
		if id != "" {
			set[id] = struct{}{}
		}
	}
}

func (t *QueryTrace) Snapshot() QueryTraceSnapshot {
	if t == nil {
		return QueryTraceSnapshot{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return QueryTraceSnapshot{
		SearchedEntityIDs: sortedKeys(t.searched),
		SelectedEntityIDs: sortedKeys(t.selected),
		DroppedEntityIDs:  sortedKeys(t.dropped),
	}
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
