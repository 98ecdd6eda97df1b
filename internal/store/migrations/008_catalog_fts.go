package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateCatalogFTS creates the full-text mirror over (title, path) and the
// triggers keeping it in lockstep with catalog_items. Because the mirror is
// content-linked, a rebuild is issued when the base table already has rows.
func MigrateCatalogFTS(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS catalog_fts USING fts5(
			title, path,
			content='catalog_items', content_rowid='id'
		)`); err != nil {
		return fmt.Errorf("failed to create catalog_fts: %w", err)
	}

	triggers := []string{
		`CREATE TRIGGER IF NOT EXISTS catalog_items_fts_ai AFTER INSERT ON catalog_items BEGIN
			INSERT INTO catalog_fts(rowid, title, path) VALUES (new.id, new.title, new.path);
		END`,
		`CREATE TRIGGER IF NOT EXISTS catalog_items_fts_ad AFTER DELETE ON catalog_items BEGIN
			INSERT INTO catalog_fts(catalog_fts, rowid, title, path) VALUES ('delete', old.id, old.title, old.path);
		END`,
		`CREATE TRIGGER IF NOT EXISTS catalog_items_fts_au AFTER UPDATE ON catalog_items BEGIN
			INSERT INTO catalog_fts(catalog_fts, rowid, title, path) VALUES ('delete', old.id, old.title, old.path);
			INSERT INTO catalog_fts(rowid, title, path) VALUES (new.id, new.title, new.path);
		END`,
	}
	for _, t := range triggers {
		if _, err := db.Exec(t); err != nil {
			return fmt.Errorf("failed to create catalog_fts trigger: %w", err)
		}
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM catalog_items").Scan(&n); err == nil && n > 0 {
		if _, err := db.Exec("INSERT INTO catalog_fts(catalog_fts) VALUES('rebuild')"); err != nil {
			return fmt.Errorf("failed to rebuild catalog_fts: %w", err)
		}
	}
	return nil
}
