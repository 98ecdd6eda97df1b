package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/untoldecay/shelfbot/internal/types"
)

// newTestStore opens a store on a throwaway database file.
// Cleanup happens automatically when the test completes.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// upsertFile inserts a file item under parent and returns its id.
func upsertFile(t *testing.T, s *Store, path, parent string) int64 {
	t.Helper()
	id, err := s.UpsertCatalogItem(context.Background(), ItemUpsert{
		Path:       path,
		Kind:       types.KindFile,
		Title:      filepath.Base(path),
		StorageID:  path,
		ParentPath: &parent,
	})
	if err != nil {
		t.Fatalf("UpsertCatalogItem(%q) failed: %v", path, err)
	}
	return id
}

// upsertFolder inserts a folder item and returns its id.
func upsertFolder(t *testing.T, s *Store, path string, parent *string) int64 {
	t.Helper()
	title := filepath.Base(path)
	if path == "/" {
		title = "Catalog"
	}
	id, err := s.UpsertCatalogItem(context.Background(), ItemUpsert{
		Path:       path,
		Kind:       types.KindFolder,
		Title:      title,
		StorageID:  path,
		ParentPath: parent,
	})
	if err != nil {
		t.Fatalf("UpsertCatalogItem(%q) failed: %v", path, err)
	}
	return id
}

// backdateSeen pushes an item's last-seen stamp into the past so watermark
// comparisons are deterministic inside a one-second test run.
func backdateSeen(t *testing.T, s *Store, path string) {
	t.Helper()
	_, err := s.db.Exec(
		"UPDATE catalog_items SET seen_at = datetime('now', '-1 hour') WHERE path = ?", path)
	if err != nil {
		t.Fatalf("failed to backdate seen_at for %q: %v", path, err)
	}
}
