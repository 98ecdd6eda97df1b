// Package drive abstracts the remote document store the catalog mirrors.
// Two drivers exist: the Yandex Disk REST API and a local directory tree for
// single-host deployments and tests.
package drive

import (
	"context"
	"errors"
	"io"

	"github.com/untoldecay/shelfbot/internal/types"
)

// ErrNotFound is returned when a listed or streamed path does not exist in
// the backing store.
var ErrNotFound = errors.New("drive: path not found")

// Entry is one child of a listed folder, expressed in the catalog's terms.
type Entry struct {
	Path        string
	Title       string
	Kind        types.ItemKind
	StorageID   string
	Size        *int64
	Fingerprint string
}

// Driver lists folders and streams file content. List returns one level of
// children; Stream addresses a file by the storage id recorded at sync time.
type Driver interface {
	List(ctx context.Context, path string) ([]Entry, error)
	Stream(ctx context.Context, storageID string) (io.ReadCloser, error)
}
