package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateSoftDelete adds the last-seen watermark and the soft-deletion flag
// the catalog synchronizer reconciles against.
func MigrateSoftDelete(db *sql.DB) error {
	if err := addColumnIfMissing(db, "catalog_items", "seen_at", "TEXT"); err != nil {
		return err
	}
	if err := addColumnIfMissing(db, "catalog_items", "is_deleted", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_catalog_deleted_parent ON catalog_items(is_deleted, parent_path)"); err != nil {
		return fmt.Errorf("failed to create idx_catalog_deleted_parent: %w", err)
	}
	return nil
}
