// Package file implements store.TableStore as JSON lines files, one object
// per table and graph, on any object storage with Get and Put.
package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/OFFIS-RIT/graphrag/pkg/common"
	"github.com/OFFIS-RIT/graphrag/pkg/logger"
	"github.com/OFFIS-RIT/graphrag/pkg/store"
)

// Objects is the object storage the tables are written to. Get must return
// an error matching fs.ErrNotExist for missing keys.
type Objects interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	DeletePrefix(ctx context.Context, prefix string) error
}

const (
	textUnitsTable     = "text_units"
	entitiesTable      = "entities"
	relationshipsTable = "relationships"
	communitiesTable   = "communities"
	reportsTable       = "community_reports"
)

// TableFileStorage writes <prefix>/<graph id>/<table>.jsonl objects.
type TableFileStorage struct {
	objects Objects
	prefix  string
}

var _ store.TableStore = (*TableFileStorage)(nil)

func NewTableFileStorage(objects Objects, prefix string) *TableFileStorage {
	return &TableFileStorage{objects: objects, prefix: prefix}
}

func (s *TableFileStorage) key(graphID, table string) string {
	return path.Join(s.prefix, graphID, table+".jsonl")
}

func writeTable[T any](ctx context.Context, s *TableFileStorage, graphID, table string, rows []T) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("encode %s row: %w", table, err)
		}
	}
	key := s.key(graphID, table)
	if err := s.objects.Put(ctx, key, buf.Bytes()); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	logger.Debug("[Store] Table written", "table", table, "graph_id", graphID, "rows", len(rows), "key", key)
	return nil
}

func readTable[T any](ctx context.Context, s *TableFileStorage, graphID, table string) ([]T, error) {
	key := s.key(graphID, table)
	data, err := s.objects.Get(ctx, key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	var out []T
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 64<<20)
	line := 0
	for scanner.Scan() {
		line++
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		var row T
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			return nil, fmt.Errorf("decode %s line %d: %w", key, line, err)
		}
		out = append(out, row)
	}
	return out, scanner.Err()
}

func (s *TableFileStorage) SaveTextUnits(ctx context.Context, graphID string, units []common.TextUnit) error {
	return writeTable(ctx, s, graphID, textUnitsTable, units)
}

func (s *TableFileStorage) SaveEntities(ctx context.Context, graphID string, entities []common.Entity) error {
	return writeTable(ctx, s, graphID, entitiesTable, entities)
}

func (s *TableFileStorage) SaveRelationships(ctx context.Context, graphID string, relationships []common.Relationship) error {
	return writeTable(ctx, s, graphID, relationshipsTable, relationships)
}

func (s *TableFileStorage) SaveCommunities(ctx context.Context, graphID string, communities []common.Community) error {
	return writeTable(ctx, s, graphID, communitiesTable, communities)
}

func (s *TableFileStorage) SaveReports(ctx context.Context, graphID string, reports []common.CommunityReport) error {
	return writeTable(ctx, s, graphID, reportsTable, reports)
}

func (s *TableFileStorage) LoadEntities(ctx context.Context, graphID string) ([]common.Entity, error) {
	return readTable[common.Entity](ctx, s, graphID, entitiesTable)
}

func (s *TableFileStorage) LoadReports(ctx context.Context, graphID string) ([]common.CommunityReport, error) {
	return readTable[common.CommunityReport](ctx, s, graphID, reportsTable)
}

func (s *TableFileStorage) DeleteGraph(ctx context.Context, graphID string) error {
	if err := s.objects.DeletePrefix(ctx, path.Join(s.prefix, graphID)); err != nil {
		return fmt.Errorf("delete graph %s: %w", graphID, err)
	}
	logger.Info("[Store] Graph deleted", "graph_id", graphID)
	return nil
}
