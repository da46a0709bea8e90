package embedding

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxIConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

// PostgresStore keeps vectors in the embedding_cache table created by the
// database migrations.
type PostgresStore struct {
	conn pgxIConn
}

func NewPostgresStore(conn pgxIConn) *PostgresStore {
	return &PostgresStore{conn: conn}
}

func (s *PostgresStore) Get(ctx context.Context, namespace, key string) ([]float32, bool, error) {
	var blob []byte
	err := s.conn.QueryRow(ctx,
		`SELECT vector FROM embedding_cache WHERE namespace = $1 AND key = $2`,
		namespace, key,
	).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	vec, err := DecodeVector(blob)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

func (s *PostgresStore) Put(ctx context.Context, namespace, key string, vec []float32) error {
	_, err := s.conn.Exec(ctx,
		`INSERT INTO embedding_cache (namespace, key, vector) VALUES ($1, $2, $3)
		 ON CONFLICT (namespace, key) DO NOTHING`,
		namespace, key, EncodeVector(vec),
	)
	return err
}

// Close is a no-op, the connection pool is owned by the caller.
func (s *PostgresStore) Close() error {
	return nil
}
