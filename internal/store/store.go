// Package store is the SQLite-backed relational store underpinning the
// catalog mirror, the job lifecycle, access control and the download audit.
//
// The store is the single shared mutable resource of the deployment: the bot
// surface and the worker both open the same database file. WAL journaling
// plus busy_timeout make that safe; schema migrations are additionally
// serialized across processes with a sidecar flock.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gofrs/flock"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned by fetch operations when the row does not exist.
var ErrNotFound = fmt.Errorf("store: not found")

// TimeFormat is the sortable timestamp format SQLite's datetime('now')
// produces. Every timestamp column holds this format in UTC so that
// watermark comparisons stay lexicographic.
const TimeFormat = "2006-01-02 15:04:05"

// Store wraps a SQLite database and exposes the operations the core
// components depend on. All exported methods commit before returning.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the database at path and brings the
// schema up to the target version. Pass ":memory:" for an ephemeral database.
func Open(ctx context.Context, path string) (*Store, error) {
	connStr := "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)"
	if path == ":memory:" {
		connStr = "file::memory:?_pragma=foreign_keys(ON)"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	// Single writer; also keeps a :memory: database on one connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", path, err)
	}

	if err := migrate(db, path); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

// migrate runs the forward-only migration chain, holding a sidecar flock so
// that two processes opening the same file do not race on check-then-alter.
func migrate(db *sql.DB, path string) error {
	if path != ":memory:" {
		lock := flock.New(path + ".lock")
		if err := lock.Lock(); err != nil {
			return fmt.Errorf("failed to lock %s.lock for migrations: %w", path, err)
		}
		defer func() { _ = lock.Unlock() }()
	}
	return RunMigrations(db)
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Now returns the store's current instant as a TimeFormat string. Sync
// watermarks must come from here so they compare against seen_at stamps
// written by the same clock.
func (s *Store) Now(ctx context.Context) (string, error) {
	var now string
	if err := s.db.QueryRowContext(ctx, "SELECT datetime('now')").Scan(&now); err != nil {
		return "", fmt.Errorf("failed to read store clock: %w", err)
	}
	return now, nil
}

// UnderlyingDB exposes the raw handle for tests and diagnostics.
func (s *Store) UnderlyingDB() *sql.DB {
	return s.db
}

// parseTime converts a TimeFormat string into a UTC time.Time.
// Zero time on empty or malformed input.
func parseTime(s string) time.Time {
	t, err := time.ParseInLocation(TimeFormat, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

// formatTime renders t for storage comparison against datetime('now').
func formatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}
