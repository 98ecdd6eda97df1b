// Package migrations holds the ordered schema steps applied by the store.
// Every step is idempotent: a column or table created out-of-band must not
// make the step fail.
package migrations

import (
	"database/sql"
	"fmt"
)

func hasColumn(db *sql.DB, table, column string) (bool, error) {
	var present bool
	err := db.QueryRow(
		"SELECT COUNT(*) > 0 FROM pragma_table_info(?) WHERE name = ?",
		table, column,
	).Scan(&present)
	if err != nil {
		return false, fmt.Errorf("failed to check for %s.%s: %w", table, column, err)
	}
	return present, nil
}

func addColumnIfMissing(db *sql.DB, table, column, ddl string) error {
	present, err := hasColumn(db, table, column)
	if err != nil {
		return err
	}
	if present {
		return nil
	}
	if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, ddl)); err != nil {
		return fmt.Errorf("failed to add column %s.%s: %w", table, column, err)
	}
	return nil
}
