package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/tursodatabase/go-libsql"
)

// DefaultQuotaBytes bounds the total size of stored values. The limit mirrors
// a browser localStorage budget: generous for chat transcripts, small enough
// that a runaway writer cannot fill the disk.
const DefaultQuotaBytes int64 = 5 * 1024 * 1024

var (
	// ErrNotFound is returned by Get for a missing key.
	ErrNotFound = errors.New("storage: key not found")

	// ErrQuotaExceeded is returned by Set when the write would push the total
	// stored size past the quota. Existing data is left untouched.
	ErrQuotaExceeded = errors.New("storage: size quota exceeded")
)

// BlobStore is a namespaced key -> string store with an enforced total-size
// quota. Oversized writes are rejected without corrupting existing data.
type BlobStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// SQLiteBlobStore implements BlobStore using SQLite/libsql
type SQLiteBlobStore struct {
	db    *sql.DB
	quota int64
}

// NewDefaultBlobStore creates a blob store in the default user directory
func NewDefaultBlobStore() (BlobStore, error) {
	pathManager := NewPathManager()
	dbPath, err := pathManager.GetBlobDatabasePath()
	if err != nil {
		return nil, fmt.Errorf("failed to get default blob database path: %w", err)
	}
	return NewBlobStore(dbPath, DefaultQuotaBytes)
}

// NewBlobStore creates a blob store backed by SQLite/libsql at dbPath.
// A quota of zero or less falls back to DefaultQuotaBytes.
func NewBlobStore(dbPath string, quota int64) (BlobStore, error) {
	if quota <= 0 {
		quota = DefaultQuotaBytes
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("libsql", "file:"+dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteBlobStore{db: db, quota: quota}

	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteBlobStore) initSchema() error {
	if _, err := s.db.Exec(blobSchema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Get retrieves the value stored under key
func (s *SQLiteBlobStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM blobs WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get blob %q: %w", key, err)
	}
	return value, nil
}

// Set stores value under key, replacing any previous value. The write is
// rejected with ErrQuotaExceeded when the total stored size would exceed the
// quota; in that case the previous value under key survives.
func (s *SQLiteBlobStore) Set(ctx context.Context, key, value string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Total size of everything except the key being replaced. The CAST
	// makes LENGTH count bytes, matching how the incoming value is charged.
	var used int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(LENGTH(CAST(value AS BLOB))), 0) FROM blobs WHERE key != ?`, key).Scan(&used)
	if err != nil {
		return fmt.Errorf("failed to compute stored size: %w", err)
	}

	if used+int64(len(value)) > s.quota {
		return ErrQuotaExceeded
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO blobs (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set blob %q: %w", key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit blob write: %w", err)
	}
	return nil
}

// Delete removes the value stored under key. Missing keys are not an error.
func (s *SQLiteBlobStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete blob %q: %w", key, err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteBlobStore) Close() error {
	return s.db.Close()
}

const blobSchema = `
CREATE TABLE IF NOT EXISTS blobs (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(key)
);
`
