package migrations

import "database/sql"

// MigrateFileHandles adds the cached messenger content-handle pair and the
// content fingerprint used to invalidate it.
func MigrateFileHandles(db *sql.DB) error {
	if err := addColumnIfMissing(db, "catalog_items", "handle_id", "TEXT"); err != nil {
		return err
	}
	if err := addColumnIfMissing(db, "catalog_items", "handle_unique_id", "TEXT"); err != nil {
		return err
	}
	return addColumnIfMissing(db, "catalog_items", "fingerprint", "TEXT NOT NULL DEFAULT ''")
}
