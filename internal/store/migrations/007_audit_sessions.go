package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateAuditSessions adds the per-job download audit table and the
// short-lived search/admin session tables backing compact UI callbacks.
func MigrateAuditSessions(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS download_audit (
			id INTEGER PRIMARY KEY,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			job_id INTEGER NOT NULL UNIQUE,
			chat_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			item_id INTEGER NOT NULL,
			result TEXT NOT NULL CHECK(result IN ('succeeded','failed')),
			mode TEXT,
			bytes INTEGER,
			error TEXT
		)`); err != nil {
		return fmt.Errorf("failed to create download_audit: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_audit_created ON download_audit(created_at)"); err != nil {
		return fmt.Errorf("failed to create idx_audit_created: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS search_sessions (
			token TEXT PRIMARY KEY,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			user_id INTEGER NOT NULL,
			scope_path TEXT NOT NULL DEFAULT '',
			query TEXT NOT NULL DEFAULT ''
		)`); err != nil {
		return fmt.Errorf("failed to create search_sessions: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS admin_sessions (
			token TEXT PRIMARY KEY,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			user_id INTEGER NOT NULL,
			query TEXT NOT NULL DEFAULT ''
		)`); err != nil {
		return fmt.Errorf("failed to create admin_sessions: %w", err)
	}
	return nil
}
