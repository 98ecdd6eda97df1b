package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/untoldecay/shelfbot/internal/types"
)

// ItemUpsert carries one observation of a storage node into the catalog
// mirror. Fingerprint is optional; when set and different from the stored
// one, the cached content handle is invalidated.
type ItemUpsert struct {
	Path        string
	Kind        types.ItemKind
	Title       string
	StorageID   string
	Size        *int64
	ParentPath  *string
	Fingerprint string
}

const itemColumns = "id, path, kind, title, storage_id, size_bytes, parent_path, " +
	"handle_id, handle_unique_id, fingerprint, seen_at, is_deleted, updated_at"

func scanItem(row interface{ Scan(...any) error }) (*types.CatalogItem, error) {
	var (
		it          types.CatalogItem
		kind        string
		storageID   sql.NullString
		size        sql.NullInt64
		parentPath  sql.NullString
		handleID    sql.NullString
		handleUID   sql.NullString
		fingerprint sql.NullString
		seenAt      sql.NullString
		deleted     int
		updatedAt   string
	)
	err := row.Scan(&it.ID, &it.Path, &kind, &it.Title, &storageID, &size, &parentPath,
		&handleID, &handleUID, &fingerprint, &seenAt, &deleted, &updatedAt)
	if err != nil {
		return nil, err
	}
	it.Kind = types.ItemKind(kind)
	it.StorageID = storageID.String
	if size.Valid {
		v := size.Int64
		it.Size = &v
	}
	if parentPath.Valid {
		p := parentPath.String
		it.ParentPath = &p
	}
	if handleID.Valid && handleID.String != "" {
		it.Handle = &types.FileHandle{ID: handleID.String, UniqueID: handleUID.String}
	}
	it.Fingerprint = fingerprint.String
	it.SeenAt = seenAt.String
	it.Deleted = deleted != 0
	it.UpdatedAt = parseTime(updatedAt)
	return &it, nil
}

// UpsertCatalogItem inserts or refreshes an item by its unique path and
// returns the row id. On conflict the last-seen watermark advances, the
// soft-delete flag clears, and the cached handle survives unless the fresh
// fingerprint differs from the stored one. Kind is stable across updates.
func (s *Store) UpsertCatalogItem(ctx context.Context, u ItemUpsert) (int64, error) {
	path := CanonicalPath(u.Path)
	var parent any
	if u.ParentPath != nil {
		parent = CanonicalPath(*u.ParentPath)
	}
	var size any
	if u.Size != nil {
		size = *u.Size
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO catalog_items(path, kind, title, storage_id, size_bytes, parent_path, fingerprint, seen_at, updated_at, is_deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, datetime('now'), datetime('now'), 0)
		ON CONFLICT(path) DO UPDATE SET
			title=excluded.title,
			storage_id=excluded.storage_id,
			size_bytes=excluded.size_bytes,
			parent_path=excluded.parent_path,
			handle_id=CASE
				WHEN excluded.fingerprint != '' AND catalog_items.fingerprint != '' AND excluded.fingerprint != catalog_items.fingerprint
				THEN NULL ELSE catalog_items.handle_id END,
			handle_unique_id=CASE
				WHEN excluded.fingerprint != '' AND catalog_items.fingerprint != '' AND excluded.fingerprint != catalog_items.fingerprint
				THEN NULL ELSE catalog_items.handle_unique_id END,
			fingerprint=CASE WHEN excluded.fingerprint != '' THEN excluded.fingerprint ELSE catalog_items.fingerprint END,
			seen_at=datetime('now'),
			updated_at=datetime('now'),
			is_deleted=0`,
		path, u.Kind, u.Title, u.StorageID, size, parent, u.Fingerprint)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert catalog item %s: %w", path, err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, "SELECT id FROM catalog_items WHERE path=?", path).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to read back catalog item %s: %w", path, err)
	}
	return id, nil
}

// FetchCatalogItem returns the item with the given row id, or ErrNotFound.
func (s *Store) FetchCatalogItem(ctx context.Context, id int64) (*types.CatalogItem, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+itemColumns+" FROM catalog_items WHERE id=?", id)
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog item %d: %w", id, err)
	}
	return it, nil
}

// FetchCatalogItemByPath returns the item at the canonical path, or
// ErrNotFound.
func (s *Store) FetchCatalogItemByPath(ctx context.Context, path string) (*types.CatalogItem, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+itemColumns+" FROM catalog_items WHERE path=?", CanonicalPath(path))
	it, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog item %s: %w", path, err)
	}
	return it, nil
}

// FetchChildren returns one page of non-deleted immediate children of the
// folder, folders before files, then by title.
func (s *Store) FetchChildren(ctx context.Context, parentPath string, limit, offset int) ([]*types.CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+itemColumns+" FROM catalog_items WHERE parent_path=? AND is_deleted=0 "+
			"ORDER BY kind DESC, title COLLATE NOCASE ASC LIMIT ? OFFSET ?",
		CanonicalPath(parentPath), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch children of %s: %w", parentPath, err)
	}
	defer rows.Close()

	var out []*types.CatalogItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// CountChildren counts non-deleted immediate children of the folder.
func (s *Store) CountChildren(ctx context.Context, parentPath string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM catalog_items WHERE parent_path=? AND is_deleted=0",
		CanonicalPath(parentPath)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count children of %s: %w", parentPath, err)
	}
	return n, nil
}

// SetItemHandle stores or clears the cached messenger content handle.
func (s *Store) SetItemHandle(ctx context.Context, id int64, handle *types.FileHandle) error {
	var hID, hUID any
	if handle != nil {
		hID, hUID = handle.ID, handle.UniqueID
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE catalog_items SET handle_id=?, handle_unique_id=?, updated_at=datetime('now') WHERE id=?",
		hID, hUID, id)
	if err != nil {
		return fmt.Errorf("failed to set handle on item %d: %w", id, err)
	}
	return nil
}

// MarkDeletedNotSeen soft-deletes every non-deleted item under root whose
// last-seen stamp is null or strictly before the watermark. The root itself
// is never deleted. Returns the affected row count.
func (s *Store) MarkDeletedNotSeen(ctx context.Context, root, watermark string) (int64, error) {
	root = CanonicalPath(root)
	var (
		q    string
		args []any
	)
	if root == "/" {
		q = `UPDATE catalog_items SET is_deleted=1, updated_at=datetime('now')
			WHERE (seen_at IS NULL OR seen_at < ?)
			  AND path LIKE '/%' AND path != '/'
			  AND is_deleted=0`
		args = []any{watermark}
	} else {
		q = `UPDATE catalog_items SET is_deleted=1, updated_at=datetime('now')
			WHERE (seen_at IS NULL OR seen_at < ?)
			  AND path LIKE ? AND path != ?
			  AND is_deleted=0`
		args = []any{watermark, root + "/%", root}
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to mark deleted under %s: %w", root, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CanonicalPath normalizes a logical path: leading "/", no trailing "/"
// except the root itself.
func CanonicalPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	for len(p) > 1 && strings.HasSuffix(p, "/") {
		p = p[:len(p)-1]
	}
	return p
}
