package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateParentPath adds the parent pointer used for catalog navigation.
// The parent is a path string, not a row reference: lookups go back through
// the unique path index.
func MigrateParentPath(db *sql.DB) error {
	if err := addColumnIfMissing(db, "catalog_items", "parent_path", "TEXT"); err != nil {
		return err
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_catalog_parent_path ON catalog_items(parent_path)"); err != nil {
		return fmt.Errorf("failed to create idx_catalog_parent_path: %w", err)
	}
	return nil
}
