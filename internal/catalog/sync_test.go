package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/untoldecay/shelfbot/internal/drive"
	"github.com/untoldecay/shelfbot/internal/store"
	"github.com/untoldecay/shelfbot/internal/types"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// backdateSeen pushes every last-seen stamp into the past. The store clock
// has one-second resolution, so a fresh stamp can tie with the next sync's
// watermark without this.
func backdateSeen(t *testing.T, s *store.Store) {
	t.Helper()
	if _, err := s.UnderlyingDB().Exec(
		"UPDATE catalog_items SET seen_at = datetime('now', '-1 hour')"); err != nil {
		t.Fatalf("backdate: %v", err)
	}
}

// newTree materializes a local storage root from a map of relative paths;
// values are file contents, a trailing slash marks a folder.
func newTree(t *testing.T, files map[string]string) (*drive.LocalDriver, string) {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		if name[len(name)-1] == '/' {
			if err := os.MkdirAll(full, 0o755); err != nil {
				t.Fatalf("mkdir %s: %v", name, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", name, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	d, err := drive.NewLocalDriver(root)
	if err != nil {
		t.Fatalf("NewLocalDriver failed: %v", err)
	}
	return d, root
}

func TestSyncObservesTree(t *testing.T) {
	s := newStore(t)
	d, _ := newTree(t, map[string]string{
		"books/novel.epub": "n",
		"books/prose.pdf":  "p",
		"readme.txt":       "r",
	})
	sy := New(s, d, 0, zerolog.Nop())

	res, err := sy.Sync(context.Background(), "/")
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	// books, novel.epub, prose.pdf, readme.txt.
	if res.Observed != 4 || res.Deleted != 0 || res.Truncated {
		t.Fatalf("result = %+v", res)
	}

	ctx := context.Background()
	rootItem, err := s.FetchCatalogItemByPath(ctx, "/")
	if err != nil {
		t.Fatalf("root not seeded: %v", err)
	}
	if rootItem.Title != RootTitle || rootItem.Kind != types.KindFolder {
		t.Errorf("root item: %+v", rootItem)
	}
	it, err := s.FetchCatalogItemByPath(ctx, "/books/novel.epub")
	if err != nil {
		t.Fatalf("nested file not mirrored: %v", err)
	}
	if it.ParentPath == nil || *it.ParentPath != "/books" {
		t.Errorf("parent path = %v", it.ParentPath)
	}
	if it.Size == nil || *it.Size != 1 {
		t.Errorf("size = %v", it.Size)
	}
}

func TestSyncConverges(t *testing.T) {
	s := newStore(t)
	d, _ := newTree(t, map[string]string{"a.txt": "a", "sub/b.txt": "b"})
	sy := New(s, d, 0, zerolog.Nop())
	ctx := context.Background()

	first, err := sy.Sync(ctx, "/")
	if err != nil {
		t.Fatalf("first Sync failed: %v", err)
	}
	second, err := sy.Sync(ctx, "/")
	if err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}
	if first.Observed != second.Observed || second.Deleted != 0 {
		t.Errorf("syncs did not converge: %+v then %+v", first, second)
	}
}

func TestSyncSoftDeletesVanished(t *testing.T) {
	s := newStore(t)
	d, root := newTree(t, map[string]string{
		"keep.txt": "k",
		"gone.txt": "g",
	})
	sy := New(s, d, 0, zerolog.Nop())
	ctx := context.Background()

	if _, err := sy.Sync(ctx, "/"); err != nil {
		t.Fatalf("initial Sync failed: %v", err)
	}
	if err := os.Remove(filepath.Join(root, "gone.txt")); err != nil {
		t.Fatalf("remove: %v", err)
	}
	backdateSeen(t, s)

	res, err := sy.Sync(ctx, "/")
	if err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}
	if res.Deleted != 1 {
		t.Errorf("deleted = %d, want 1", res.Deleted)
	}
	gone, err := s.FetchCatalogItemByPath(ctx, "/gone.txt")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !gone.Deleted {
		t.Error("vanished item not soft-deleted")
	}
	keep, _ := s.FetchCatalogItemByPath(ctx, "/keep.txt")
	if keep.Deleted {
		t.Error("surviving item soft-deleted")
	}

	v, err := s.GetMeta(ctx, store.MetaLastSyncDeleted)
	if err != nil || v != "1" {
		t.Errorf("meta deleted count = %q, err = %v", v, err)
	}
}

func TestSyncBudgetTruncates(t *testing.T) {
	s := newStore(t)
	d, _ := newTree(t, map[string]string{
		"a.txt": "a", "b.txt": "b", "c.txt": "c", "d.txt": "d",
	})
	sy := New(s, d, 2, zerolog.Nop())

	ctx := context.Background()

	// An item the truncated walk will never reach must survive the sync.
	if _, err := s.UpsertCatalogItem(ctx, store.ItemUpsert{
		Path: "/z.txt", Kind: types.KindFile, Title: "z.txt", StorageID: "/z.txt",
	}); err != nil {
		t.Fatalf("seed stale item: %v", err)
	}
	backdateSeen(t, s)

	res, err := sy.Sync(ctx, "/")
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.Observed != 2 || !res.Truncated {
		t.Fatalf("result = %+v, want 2 observed and truncated", res)
	}
	if res.Deleted != 0 {
		t.Errorf("truncated sync soft-deleted %d items", res.Deleted)
	}
	stale, err := s.FetchCatalogItemByPath(ctx, "/z.txt")
	if err != nil {
		t.Fatalf("fetch stale item: %v", err)
	}
	if stale.Deleted {
		t.Error("unvisited item was soft-deleted by a truncated sync")
	}
	v, err := s.GetMeta(ctx, store.MetaLastSyncTruncated)
	if err != nil || v != "true" {
		t.Errorf("meta truncated = %q, err = %v", v, err)
	}
}

type failingDriver struct {
	drive.Driver
	failPath string
}

func (f *failingDriver) List(ctx context.Context, path string) ([]drive.Entry, error) {
	if path == f.failPath {
		return nil, errors.New("listing blew up")
	}
	return f.Driver.List(ctx, path)
}

func TestSyncAbortsOnListingFailure(t *testing.T) {
	s := newStore(t)
	d, _ := newTree(t, map[string]string{"sub/a.txt": "a", "old.txt": "o"})
	sy := New(s, d, 0, zerolog.Nop())
	ctx := context.Background()

	if _, err := sy.Sync(ctx, "/"); err != nil {
		t.Fatalf("seed Sync failed: %v", err)
	}

	broken := New(s, &failingDriver{Driver: d, failPath: "/sub"}, 0, zerolog.Nop())
	if _, err := broken.Sync(ctx, "/"); err == nil {
		t.Fatal("Sync succeeded despite a listing failure")
	}

	// The delete pass must not have run: nothing was marked deleted by the
	// failed sync.
	it, err := s.FetchCatalogItemByPath(ctx, "/sub/a.txt")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if it.Deleted {
		t.Error("aborted sync soft-deleted items")
	}
}

func TestSyncScopedRoot(t *testing.T) {
	s := newStore(t)
	d, _ := newTree(t, map[string]string{
		"inside/a.txt": "a",
		"outside.txt":  "o",
	})
	sy := New(s, d, 0, zerolog.Nop())
	ctx := context.Background()

	res, err := sy.Sync(ctx, "/inside")
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.Observed != 1 {
		t.Errorf("observed = %d, want 1", res.Observed)
	}
	if _, err := s.FetchCatalogItemByPath(ctx, "/outside.txt"); err != store.ErrNotFound {
		t.Errorf("item outside the root was mirrored: err = %v", err)
	}
}
