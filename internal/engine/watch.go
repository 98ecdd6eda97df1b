package engine

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const watchDebounce = 2 * time.Second

// Watcher observes a local storage root and triggers a catalog sync when
// files change. Only useful in local storage mode; remote mode relies on the
// periodic scheduler.
type Watcher struct {
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	root      string
	log       zerolog.Logger
}

// NewWatcher registers the root and every existing subdirectory. onChange
// fires after the events go quiet.
func NewWatcher(root string, onChange func(), log zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to start filesystem watcher: %w", err)
	}
	w := &Watcher{
		watcher:   fsw,
		debouncer: newDebouncer(watchDebounce, onChange),
		root:      root,
		log:       log.With().Str("component", "watcher").Logger(),
	}
	// fsnotify watches are not recursive; register the whole tree up front
	// and add new directories as they appear.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", root, err)
	}
	return w, nil
}

// Run consumes events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.debouncer.cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.watcher.Add(event.Name); err != nil {
						w.log.Warn().Err(err).Str("dir", event.Name).Msg("failed to watch new directory")
					}
				}
			}
			if event.Op.Has(fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename) {
				w.debouncer.trigger()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watcher error")
		}
	}
}

// Close releases the underlying watcher.
func (w *Watcher) Close() error {
	w.debouncer.cancel()
	return w.watcher.Close()
}
