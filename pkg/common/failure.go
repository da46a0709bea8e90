package common

import (
	"fmt"
	"strings"
	"sync"
)

// ItemKind names the record type an ItemFailure refers to.
type ItemKind string

const (
	KindTextUnit     ItemKind = "text_unit"
	KindEntity       ItemKind = "entity"
	KindRelationship ItemKind = "relationship"
	KindCommunity    ItemKind = "community"
)

// ItemFailure is one item a stage gave up on.
type ItemFailure struct {
	Stage string
	Kind  ItemKind
	ID    string
	Err   error
}

func (f ItemFailure) Error() string {
	return fmt.Sprintf("%s %s %s: %v", f.Stage, f.Kind, f.ID, f.Err)
}

func (f ItemFailure) Unwrap() error {
	return f.Err
}

// FailureReport collects per-item failures of stages that keep going when
// single items fail. It is safe for concurrent use.
type FailureReport struct {
	mu       sync.Mutex
	failures []ItemFailure
}

// Add records a failure.
func (r *FailureReport) Add(f ItemFailure) {
	r.mu.Lock()
	r.failures = append(r.failures, f)
	r.mu.Unlock()
}

// Merge appends all failures of other.
func (r *FailureReport) Merge(other *FailureReport) {
	if other == nil || other == r {
		return
	}
	items := other.Failures()
	r.mu.Lock()
	r.failures = append(r.failures, items...)
	r.mu.Unlock()
}

// Failures returns a copy of the recorded failures.
func (r *FailureReport) Failures() []ItemFailure {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ItemFailure, len(r.failures))
	copy(out, r.failures)
	return out
}

// Len returns the number of failures.
func (r *FailureReport) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failures)
}

// Count returns the number of failures of one stage.
func (r *FailureReport) Count(stage string) int {
	n := 0
	for _, f := range r.Failures() {
		if f.Stage == stage {
			n++
		}
	}
	return n
}

// Summary renders one line per failure.
func (r *FailureReport) Summary() string {
	items := r.Failures()
	if len(items) == 0 {
		return "no failures"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d failed items", len(items))
	for _, f := range items {
		sb.WriteString("\n  ")
		sb.WriteString(f.Error())
	}
	return sb.String()
}
