// Package catalog reconciles the relational mirror with the storage backend.
package catalog

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/untoldecay/shelfbot/internal/drive"
	"github.com/untoldecay/shelfbot/internal/store"
	"github.com/untoldecay/shelfbot/internal/types"
)

// DefaultBudget caps one sync at this many observed nodes.
const DefaultBudget = 5000

// RootTitle is the display title of the catalog root folder.
const RootTitle = "Каталог"

// Result summarizes one sync run. Truncated means the node budget stopped
// the walk before the tree was fully visited; the soft-delete pass is
// skipped in that case, because unvisited subtrees would look unseen and
// get marked deleted even though they still exist in storage.
type Result struct {
	Observed  int
	Deleted   int64
	Truncated bool
}

// Synchronizer walks the storage tree breadth-first and upserts every
// observed node, then soft-deletes what the walk did not see.
type Synchronizer struct {
	store  *store.Store
	driver drive.Driver
	budget int
	log    zerolog.Logger
}

// New builds a synchronizer. budget <= 0 selects DefaultBudget.
func New(st *store.Store, driver drive.Driver, budget int, log zerolog.Logger) *Synchronizer {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Synchronizer{
		store:  st,
		driver: driver,
		budget: budget,
		log:    log.With().Str("component", "catalog").Logger(),
	}
}

// Sync reconciles the subtree under root. The watermark is captured from the
// store before the first upsert, so the delete pass compares last-seen
// stamps against a consistent clock. A listing failure aborts the sync
// before the delete pass runs; the job-level retry budget covers transient
// storage trouble.
func (s *Synchronizer) Sync(ctx context.Context, root string) (Result, error) {
	root = store.CanonicalPath(root)
	var res Result

	watermark, err := s.store.Now(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to capture sync watermark: %w", err)
	}

	if _, err := s.store.UpsertCatalogItem(ctx, store.ItemUpsert{
		Path:      root,
		Kind:      types.KindFolder,
		Title:     RootTitle,
		StorageID: root,
	}); err != nil {
		return res, fmt.Errorf("failed to seed root %s: %w", root, err)
	}

	pending := []string{root}
	visited := map[string]bool{}
	truncated := false

walk:
	for len(pending) > 0 {
		cur := pending[0]
		pending = pending[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true

		entries, err := s.driver.List(ctx, cur)
		if err != nil {
			return res, fmt.Errorf("failed to list %s: %w", cur, err)
		}
		for _, e := range entries {
			path := store.CanonicalPath(e.Path)
			if !underRoot(root, path) {
				continue
			}
			parent := cur
			if _, err := s.store.UpsertCatalogItem(ctx, store.ItemUpsert{
				Path:        path,
				Kind:        e.Kind,
				Title:       e.Title,
				StorageID:   e.StorageID,
				Size:        e.Size,
				ParentPath:  &parent,
				Fingerprint: e.Fingerprint,
			}); err != nil {
				return res, fmt.Errorf("failed to upsert %s: %w", path, err)
			}
			res.Observed++
			if e.Kind == types.KindFolder {
				pending = append(pending, path)
			}
			if res.Observed >= s.budget {
				// The break can happen mid-listing with no folders left in
				// pending, so the flag is set here rather than inferred from
				// leftover queue entries.
				truncated = true
				break walk
			}
		}
	}
	res.Truncated = truncated

	if res.Truncated {
		s.log.Warn().
			Str("root", root).
			Int("budget", s.budget).
			Msg("sync budget exhausted, skipping delete pass")
	} else {
		deleted, err := s.store.MarkDeletedNotSeen(ctx, root, watermark)
		if err != nil {
			return res, fmt.Errorf("soft-delete pass failed: %w", err)
		}
		res.Deleted = deleted
	}

	if err := s.stampMeta(ctx, res); err != nil {
		return res, err
	}
	s.log.Info().
		Str("root", root).
		Int("observed", res.Observed).
		Int64("deleted", res.Deleted).
		Bool("truncated", res.Truncated).
		Msg("catalog sync finished")
	return res, nil
}

func (s *Synchronizer) stampMeta(ctx context.Context, res Result) error {
	now, err := s.store.Now(ctx)
	if err != nil {
		return fmt.Errorf("failed to read store clock: %w", err)
	}
	stamps := map[string]string{
		store.MetaLastSyncAt:        now,
		store.MetaLastSyncDeleted:   fmt.Sprintf("%d", res.Deleted),
		store.MetaLastSyncTruncated: fmt.Sprintf("%t", res.Truncated),
	}
	for key, value := range stamps {
		if err := s.store.SetMeta(ctx, key, value); err != nil {
			return fmt.Errorf("failed to stamp %s: %w", key, err)
		}
	}
	return nil
}

// underRoot reports whether path lies in the subtree rooted at root.
func underRoot(root, path string) bool {
	if root == "/" {
		return len(path) > 0 && path[0] == '/'
	}
	return path == root || (len(path) > len(root) && path[:len(root)] == root && path[len(root)] == '/')
}
