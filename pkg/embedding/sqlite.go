package embedding

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS embedding_cache (
	namespace TEXT NOT NULL,
	key       TEXT NOT NULL,
	vector    BLOB NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (namespace, key)
)`

// SQLiteStore keeps vectors in a SQLite file under a cache directory.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// NewSQLiteStore opens or creates embeddings.db in dir.
func NewSQLiteStore(dir string) (*SQLiteStore, error) {
	if dir == "" {
		return nil, errors.New("cache directory is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	path := filepath.Join(dir, "embeddings.db")
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating embedding_cache table: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) Get(ctx context.Context, namespace, key string) ([]float32, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT vector FROM embedding_cache WHERE namespace = ? AND key = ?`,
		namespace, key,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
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

func (s *SQLiteStore) Put(ctx context.Context, namespace, key string, vec []float32) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO embedding_cache (namespace, key, vector) VALUES (?, ?, ?)
		 ON CONFLICT (namespace, key) DO NOTHING`,
		namespace, key, EncodeVector(vec),
	)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
