// Package sqlite stores the session state in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/PabloGalante/engigen-agent/internal/domain"
)

// BlobStore keeps blobs in a kv table.
type BlobStore struct {
	db *sql.DB
}

// NewBlobStore opens (or creates) the database at dbPath.
// If dbPath is empty, defaults to "./data/engigen.db".
func NewBlobStore(ctx context.Context, dbPath string) (*BlobStore, error) {
	if dbPath == "" {
		dbPath = "./data/engigen.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite store: creating directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	// A single writer keeps SQLite from returning SQLITE_BUSY under load.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: ping: %w", err)
	}

	s := &BlobStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BlobStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite store: schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *BlobStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *BlobStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrBlobNotFound
		}
		return nil, fmt.Errorf("sqlite store: get %s: %w", key, err)
	}
	return data, nil
}

func (s *BlobStore) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sqlite store: put %s: %w", key, err)
	}
	return nil
}
