// Package store persists synchronized records, sync checkpoints, push
// channels and run status in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultMaxBatch is the largest number of writes committed atomically.
const DefaultMaxBatch = 500

var (
	// ErrNotFound is returned when a keyed row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrBatchTooLarge is returned when a batch exceeds the store's limit.
	ErrBatchTooLarge = errors.New("store: batch too large")
)

// Store is the SQLite-backed document store.
type Store struct {
	db       *sql.DB
	maxBatch int
}

// New wraps an opened and migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db, maxBatch: DefaultMaxBatch}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// MaxBatch is the largest batch CommitBatch accepts.
func (s *Store) MaxBatch() int { return s.maxBatch }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Open opens the SQLite database at dsn with WAL journaling, foreign keys and
// a 5s busy timeout.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", p, err)
		}
	}
	return db, nil
}

// OpenStore opens dsn, applies pending migrations and returns a Store.
func OpenStore(ctx context.Context, dsn string) (*Store, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

// migrations are applied in order; version N is migrations[N-1].
var migrations = [][]string{
	{
		`CREATE TABLE records (
			id TEXT PRIMARY KEY,
			firm TEXT NOT NULL DEFAULT '',
			date TEXT NOT NULL DEFAULT '',
			data TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX idx_records_date ON records(date)`,

		`CREATE TABLE checkpoints (
			stream_id TEXT PRIMARY KEY,
			sync_token TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,

		`CREATE TABLE channels (
			id TEXT PRIMARY KEY,
			stream_id TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			token TEXT NOT NULL DEFAULT '',
			expiration TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX idx_channels_stream ON channels(stream_id, created_at)`,

		`CREATE TABLE sync_status (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			data TEXT NOT NULL
		)`,
	},
}

// Migrate applies pending migrations, each in its own transaction, tracking
// versions in schema_migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	for i, stmts := range migrations {
		version := i + 1

		var exists int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		if err := inTx(ctx, db, func(tx *sql.Tx) error {
			for _, stmt := range stmts {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", version)
			return err
		}); err != nil {
			return fmt.Errorf("migration %d: %w", version, err)
		}
	}
	return nil
}

func inTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
