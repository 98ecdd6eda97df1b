package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateJobKindMeta adds the job kind discriminator (download vs catalog
// sync) and the meta key/value table.
func MigrateJobKindMeta(db *sql.DB) error {
	if err := addColumnIfMissing(db, "jobs", "kind", "TEXT NOT NULL DEFAULT 'download'"); err != nil {
		return err
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create meta table: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_jobs_kind_state ON jobs(kind, state)"); err != nil {
		return fmt.Errorf("failed to create idx_jobs_kind_state: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_jobs_kind_created ON jobs(kind, created_at)"); err != nil {
		return fmt.Errorf("failed to create idx_jobs_kind_created: %w", err)
	}
	return nil
}
