package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

// PGVectorStore keeps one collection in the vector_documents table. The
// pgvector types must be registered on the connection.
type PGVectorStore struct {
	conn       pgxIConn
	graphID    string
	collection string
}

func NewPGVectorStore(conn pgxIConn, graphID, collection string) *PGVectorStore {
	return &PGVectorStore{conn: conn, graphID: graphID, collection: collection}
}

func (s *PGVectorStore) Upsert(ctx context.Context, id string, vector []float32, doc Document) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return err
	}
	_, err = s.conn.Exec(ctx, upsertDocumentSQL,
		s.graphID, s.collection, id, doc.Text, meta, pgvector.NewVector(vector),
	)
	return err
}

func (s *PGVectorStore) Search(ctx context.Context, vector []float32, k int) ([]ScoredDocument, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := s.conn.Query(ctx, searchDocumentsSQL,
		s.graphID, s.collection, pgvector.NewVector(vector), k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScoredDocument
	for rows.Next() {
		var (
			hit  ScoredDocument
			meta []byte
		)
		if err := rows.Scan(&hit.ID, &hit.Text, &meta, &hit.Score); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &hit.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of %s: %w", hit.ID, err)
			}
		}
		out = append(out, hit)
	}
	return out, rows.Err()
}

func (s *PGVectorStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.conn.QueryRow(ctx,
		`SELECT count(*) FROM vector_documents WHERE graph_id = $1 AND collection = $2`,
		s.graphID, s.collection,
	).Scan(&n)
	return n, err
}

const upsertDocumentSQL = `
INSERT INTO vector_documents (graph_id, collection, id, content, metadata, embedding)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (graph_id, collection, id) DO UPDATE
SET content   = EXCLUDED.content,
    metadata  = EXCLUDED.metadata,
    embedding = EXCLUDED.embedding;
`

const searchDocumentsSQL = `
SELECT id, content, metadata, 1 - (embedding <=> $3) AS score
FROM vector_documents
WHERE graph_id = $1 AND collection = $2
ORDER BY embedding <=> $3, id
LIMIT $4;
`
