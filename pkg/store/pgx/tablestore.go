// Package pgx implements store.TableStore on PostgreSQL.
package pgx

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/OFFIS-RIT/graphrag/pkg/common"
	"github.com/OFFIS-RIT/graphrag/pkg/logger"
	"github.com/OFFIS-RIT/graphrag/pkg/store"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const copyChunkSize = 1000

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgxv5.Rows, error)
	Begin(ctx context.Context) (pgxv5.Tx, error)
}

// TableDBStorage writes index tables with COPY inside one transaction per
// table. Writes are serialized.
type TableDBStorage struct {
	conn   pgxIConn
	dbLock sync.Mutex
}

var _ store.TableStore = (*TableDBStorage)(nil)

// NewTableDBStorage creates a table store on an existing connection or pool.
func NewTableDBStorage(conn pgxIConn) *TableDBStorage {
	return &TableDBStorage{conn: conn}
}

// replace deletes the graph's rows of table and copies n new rows built by
// row, in chunks of copyChunkSize.
func (s *TableDBStorage) replace(
	ctx context.Context,
	table string,
	graphID string,
	columns []string,
	n int,
	row func(i int) []any,
) error {
	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE graph_id = $1", graphID); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}

	cols := append([]string{"graph_id"}, columns...)
	err = store.ChunkRange(n, copyChunkSize, func(start, end int) error {
		rows := make([][]any, 0, end-start)
		for i := start; i < end; i++ {
			rows = append(rows, append([]any{graphID}, row(i)...))
		}
		_, err := tx.CopyFrom(ctx, pgxv5.Identifier{table}, cols, pgxv5.CopyFromRows(rows))
		return err
	})
	if err != nil {
		return fmt.Errorf("copy %s: %w", table, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	logger.Debug("[Store] Table replaced", "table", table, "graph_id", graphID, "rows", n)
	return nil
}

func (s *TableDBStorage) SaveTextUnits(ctx context.Context, graphID string, units []common.TextUnit) error {
	return s.replace(ctx, "text_units", graphID,
		[]string{"id", "position", "document_id", "start_offset", "end_offset", "content", "n_tokens"},
		len(units),
		func(i int) []any {
			u := units[i]
			return []any{u.ID, i, u.DocumentID, u.Start, u.End, store.SanitizeText(u.Text), u.Tokens}
		},
	)
}

func (s *TableDBStorage) SaveEntities(ctx context.Context, graphID string, entities []common.Entity) error {
	return s.replace(ctx, "entities", graphID,
		[]string{"id", "position", "title", "type", "description_list", "text_unit_ids", "degree"},
		len(entities),
		func(i int) []any {
			e := entities[i]
			return []any{
				e.ID, i,
				store.SanitizeText(e.Title),
				store.SanitizeText(e.Type),
				store.SanitizeTexts(e.DescriptionList),
				store.SanitizeTexts(store.DedupeStrings(e.TextUnitIDs)),
				e.Degree,
			}
		},
	)
}

func (s *TableDBStorage) SaveRelationships(ctx context.Context, graphID string, relationships []common.Relationship) error {
	return s.replace(ctx, "relationships", graphID,
		[]string{"id", "position", "source_id", "target_id", "description_list", "text_unit_ids", "weight"},
		len(relationships),
		func(i int) []any {
			r := relationships[i]
			return []any{
				r.ID, i, r.SourceID, r.TargetID,
				store.SanitizeTexts(r.DescriptionList),
				store.SanitizeTexts(store.DedupeStrings(r.TextUnitIDs)),
				r.Weight,
			}
		},
	)
}

func (s *TableDBStorage) SaveCommunities(ctx context.Context, graphID string, communities []common.Community) error {
	return s.replace(ctx, "communities", graphID,
		[]string{"id", "level", "parent_id", "entity_ids"},
		len(communities),
		func(i int) []any {
			c := communities[i]
			return []any{c.ID, c.Level, c.ParentID, store.SanitizeTexts(c.EntityIDs)}
		},
	)
}

func (s *TableDBStorage) SaveReports(ctx context.Context, graphID string, reports []common.CommunityReport) error {
	findings := make([][]byte, len(reports))
	for i, r := range reports {
		list := r.Findings
		if list == nil {
			list = []common.Finding{}
		}
		b, err := json.Marshal(list)
		if err != nil {
			return fmt.Errorf("encode findings of %s: %w", r.CommunityID, err)
		}
		findings[i] = b
	}

	return s.replace(ctx, "community_reports", graphID,
		[]string{"community_id", "level", "title", "summary", "rating", "rating_explanation", "findings"},
		len(reports),
		func(i int) []any {
			r := reports[i]
			return []any{
				r.CommunityID, r.Level,
				store.SanitizeText(r.Title),
				store.SanitizeText(r.Summary),
				r.Rating,
				store.SanitizeText(r.RatingExplanation),
				string(findings[i]),
			}
		},
	)
}

func (s *TableDBStorage) LoadEntities(ctx context.Context, graphID string) ([]common.Entity, error) {
	rows, err := s.conn.Query(ctx, `
SELECT id, title, type, description_list, text_unit_ids, degree
FROM entities
WHERE graph_id = $1
ORDER BY position`, graphID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.Entity
	for rows.Next() {
		var e common.Entity
		if err := rows.Scan(&e.ID, &e.Title, &e.Type, &e.DescriptionList, &e.TextUnitIDs, &e.Degree); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *TableDBStorage) LoadReports(ctx context.Context, graphID string) ([]common.CommunityReport, error) {
	rows, err := s.conn.Query(ctx, `
SELECT community_id, level, title, summary, rating, rating_explanation, findings
FROM community_reports
WHERE graph_id = $1
ORDER BY level, community_id`, graphID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.CommunityReport
	for rows.Next() {
		var (
			r        common.CommunityReport
			findings []byte
		)
		if err := rows.Scan(&r.CommunityID, &r.Level, &r.Title, &r.Summary, &r.Rating, &r.RatingExplanation, &findings); err != nil {
			return nil, err
		}
		if len(findings) > 0 {
			if err := json.Unmarshal(findings, &r.Findings); err != nil {
				return nil, fmt.Errorf("decode findings of %s: %w", r.CommunityID, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteGraph removes every table row and vector document of the graph.
func (s *TableDBStorage) DeleteGraph(ctx context.Context, graphID string) error {
	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"community_reports", "communities", "relationships", "entities", "text_units", "vector_documents"} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE graph_id = $1", graphID); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	logger.Info("[Store] Graph deleted", "graph_id", graphID)
	return nil
}
