package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Meta keys written by the core.
const (
	MetaLastSyncAt        = "catalog_last_sync_at"
	MetaLastSyncDeleted   = "catalog_last_sync_deleted"
	MetaLastSyncTruncated = "catalog_last_sync_truncated"
)

// GetMeta returns the value for key, or "" when unset.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM meta WHERE key=?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get meta %s: %w", key, err)
	}
	return v, nil
}

// SetMeta stores the value for key, replacing any previous one.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO meta(key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set meta %s: %w", key, err)
	}
	return nil
}
