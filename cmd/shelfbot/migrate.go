package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/shelfbot/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Open the SQLite database, apply any pending schema migrations and
print the resulting schema version. Opening the store runs migrations,
so this is also a cheap way to verify the database file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := store.Open(cmd.Context(), cfg.DBPath)
		if err != nil {
			return err
		}
		defer st.Close()

		version, err := store.SchemaVersion(st.UnderlyingDB())
		if err != nil {
			return err
		}
		fmt.Printf("%s: schema version %d\n", cfg.DBPath, version)
		return nil
	},
}
