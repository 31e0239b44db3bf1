// Package sqlite implements the file-backed local key-value store used by the
// session host. Each key is one row; values are opaque JSON documents.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/streakhub/streak-hub/internal/domain/shared"
	"github.com/streakhub/streak-hub/pkg/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS kv_records (
    record_key TEXT PRIMARY KEY,
    record_value TEXT NOT NULL,
    updated_at INTEGER NOT NULL
)`

// Store provides SQLite-backed persistence for participant and event records.
type Store struct {
	sqlDB  *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ shared.KeyValueStore = (*Store)(nil)

// Open opens the database file at path, creating the schema if needed.
func Open(path string, log *slog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := "file:" + cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps WAL contention out of the picture.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	store := &Store{
		sqlDB:  sqlDB,
		logger: logger.OrDefault(log).With(logger.Component("sqlite_store")),
		now:    time.Now,
	}
	store.logger.Debug("sqlite store opened", slog.String("path", cleanPath))
	return store, nil
}

// Get loads the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.sqlDB == nil {
		return "", false, shared.ErrClosed
	}

	var value string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT record_value FROM kv_records WHERE record_key = ?`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts the value stored under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	if s == nil || s.sqlDB == nil {
		return shared.ErrClosed
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO kv_records (record_key, record_value, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(record_key) DO UPDATE SET
		    record_value = excluded.record_value,
		    updated_at = excluded.updated_at`,
		key, value, s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	err := s.sqlDB.Close()
	s.sqlDB = nil
	return err
}
