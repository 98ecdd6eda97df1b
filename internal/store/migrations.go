// Database migrations: forward-only, versioned, idempotent.
package store

import (
	"database/sql"
	"fmt"

	"github.com/untoldecay/shelfbot/internal/store/migrations"
)

// TargetSchemaVersion is the schema version a freshly migrated database ends
// up at.
const TargetSchemaVersion = 8

// Migration is one schema step. Func must tolerate the step having been
// applied out-of-band (columns and tables may already exist).
type Migration struct {
	Version int
	Name    string
	Func    func(*sql.DB) error
}

var migrationsList = []Migration{
	{2, "file_handles", migrations.MigrateFileHandles},
	{3, "parent_path", migrations.MigrateParentPath},
	{4, "job_kind_meta", migrations.MigrateJobKindMeta},
	{5, "soft_delete", migrations.MigrateSoftDelete},
	{6, "access_control", migrations.MigrateAccessControl},
	{7, "audit_sessions", migrations.MigrateAuditSessions},
	{8, "catalog_fts", migrations.MigrateCatalogFTS},
}

// RunMigrations creates the base schema and applies every migration with a
// version greater than the current one, each in its own transaction so a
// crash mid-chain leaves a consistent prefix behind.
func RunMigrations(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create base schema: %w", err)
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		return fmt.Errorf("failed to read schema_version: %w", err)
	}
	if count == 0 {
		if _, err := db.Exec("INSERT INTO schema_version(version) VALUES (1)"); err != nil {
			return fmt.Errorf("failed to initialize schema_version: %w", err)
		}
	}

	current, err := SchemaVersion(db)
	if err != nil {
		return err
	}

	for _, m := range migrationsList {
		if m.Version <= current {
			continue
		}
		if err := applyOne(db, m); err != nil {
			return err
		}
	}
	return nil
}

func applyOne(db *sql.DB, m Migration) error {
	if _, err := db.Exec("BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("failed to begin migration %s: %w", m.Name, err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = db.Exec("ROLLBACK")
		}
	}()

	if err := m.Func(db); err != nil {
		return fmt.Errorf("migration %d_%s failed: %w", m.Version, m.Name, err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version=?", m.Version); err != nil {
		return fmt.Errorf("failed to record schema version %d: %w", m.Version, err)
	}
	if _, err := db.Exec("COMMIT"); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", m.Name, err)
	}
	committed = true
	return nil
}

// SchemaVersion reads the single-row schema version.
func SchemaVersion(db *sql.DB) (int, error) {
	var v int
	err := db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return v, nil
}
