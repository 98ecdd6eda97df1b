package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateAccessControl adds user status, admin note, expiry and the
// pre-expiry warning marker.
func MigrateAccessControl(db *sql.DB) error {
	if err := addColumnIfMissing(db, "users", "status", "TEXT NOT NULL DEFAULT 'guest'"); err != nil {
		return err
	}
	if err := addColumnIfMissing(db, "users", "note", "TEXT"); err != nil {
		return err
	}
	if err := addColumnIfMissing(db, "users", "expires_at", "TEXT"); err != nil {
		return err
	}
	if err := addColumnIfMissing(db, "users", "warned_at", "TEXT"); err != nil {
		return err
	}
	// ADD COLUMN cannot carry a non-constant default, so updated_at is
	// added nullable and backfilled; writers always set it explicitly.
	if err := addColumnIfMissing(db, "users", "updated_at", "TEXT"); err != nil {
		return err
	}
	if _, err := db.Exec("UPDATE users SET updated_at = datetime('now') WHERE updated_at IS NULL"); err != nil {
		return fmt.Errorf("failed to backfill users.updated_at: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_users_status_expires ON users(status, expires_at)"); err != nil {
		return fmt.Errorf("failed to create idx_users_status_expires: %w", err)
	}
	return nil
}
