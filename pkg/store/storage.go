// Package store persists the index tables of a graph. Implementations live
// in the pgx (PostgreSQL) and file (JSON lines on disk or S3) subpackages.
package store

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/graphrag/pkg/common"
)

// Tables holds every table one indexing run produces.
type Tables struct {
	TextUnits     []common.TextUnit
	Entities      []common.Entity
	Relationships []common.Relationship
	Communities   []common.Community
	Reports       []common.CommunityReport
}

// TableStore persists index tables per graph. Every Save call replaces the
// rows of that table for the graph, so re-running an index is idempotent.
type TableStore interface {
	SaveTextUnits(ctx context.Context, graphID string, units []common.TextUnit) error
	SaveEntities(ctx context.Context, graphID string, entities []common.Entity) error
	SaveRelationships(ctx context.Context, graphID string, relationships []common.Relationship) error
	SaveCommunities(ctx context.Context, graphID string, communities []common.Community) error
	SaveReports(ctx context.Context, graphID string, reports []common.CommunityReport) error

	LoadEntities(ctx context.Context, graphID string) ([]common.Entity, error)
	LoadReports(ctx context.Context, graphID string) ([]common.CommunityReport, error)

	DeleteGraph(ctx context.Context, graphID string) error
}

// SaveTables writes all tables in dependency order.
func SaveTables(ctx context.Context, s TableStore, graphID string, t Tables) error {
	if err := s.SaveTextUnits(ctx, graphID, t.TextUnits); err != nil {
		return fmt.Errorf("save text units: %w", err)
	}
	if err := s.SaveEntities(ctx, graphID, t.Entities); err != nil {
		return fmt.Errorf("save entities: %w", err)
	}
	if err := s.SaveRelationships(ctx, graphID, t.Relationships); err != nil {
		return fmt.Errorf("save relationships: %w", err)
	}
	if err := s.SaveCommunities(ctx, graphID, t.Communities); err != nil {
		return fmt.Errorf("save communities: %w", err)
	}
	if err := s.SaveReports(ctx, graphID, t.Reports); err != nil {
		return fmt.Errorf("save reports: %w", err)
	}
	return nil
}
