package drive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/untoldecay/shelfbot/internal/types"
)

// LocalDriver serves a directory tree on the local filesystem. Catalog paths
// are rooted at the configured directory; storage ids are the catalog paths
// themselves.
type LocalDriver struct {
	root string
}

// NewLocalDriver validates that root exists and is a directory.
func NewLocalDriver(root string) (*LocalDriver, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage root unavailable: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage root %s is not a directory", abs)
	}
	return &LocalDriver{root: abs}, nil
}

// resolve maps a catalog path onto the filesystem, rejecting anything that
// escapes the root.
func (d *LocalDriver) resolve(path string) (string, error) {
	full := filepath.Join(d.root, filepath.FromSlash(strings.TrimPrefix(path, "/")))
	rel, err := filepath.Rel(d.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes storage root", path)
	}
	return full, nil
}

// List returns the direct children of the given folder, folders first, then
// by name.
func (d *LocalDriver) List(ctx context.Context, path string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := d.resolve(path)
	if err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(full)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", path, err)
	}

	base := strings.TrimSuffix(path, "/")
	entries := make([]Entry, 0, len(dirents))
	for _, de := range dirents {
		name := de.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		childPath := base + "/" + name
		e := Entry{
			Path:      childPath,
			Title:     name,
			Kind:      types.KindFile,
			StorageID: childPath,
		}
		if de.IsDir() {
			e.Kind = types.KindFolder
		} else if info, err := de.Info(); err == nil {
			size := info.Size()
			e.Size = &size
			// Size plus mtime is a good enough change signal for a local
			// tree; hashing every file on each sync would not be.
			e.Fingerprint = fmt.Sprintf("%d:%d", size, info.ModTime().Unix())
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Kind != entries[j].Kind {
			return entries[i].Kind == types.KindFolder
		}
		return entries[i].Title < entries[j].Title
	})
	return entries, nil
}

// Stream opens the file for reading.
func (d *LocalDriver) Stream(ctx context.Context, storageID string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	full, err := d.resolve(storageID)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(full)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", storageID, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, not a file", storageID)
	}
	f, err := os.Open(full)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", storageID, err)
	}
	return f, nil
}
