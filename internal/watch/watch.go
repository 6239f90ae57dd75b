// Package watch reports batches of changed Java and mapper files under a
// source root.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/715d/topcallers/pkg/javasrc"
)

// DefaultDebounce is the quiet period after the last event before a batch
// is delivered.
const DefaultDebounce = 300 * time.Millisecond

// DefaultExtensions are the file extensions that trigger a reload.
var DefaultExtensions = []string{".java", ".xml"}

// Watcher watches a source tree recursively.
type Watcher struct {
	fs         *fsnotify.Watcher
	root       string
	extensions map[string]struct{}
	debounce   time.Duration
}

// New starts watching every directory under root that the indexer would
// visit. A zero debounce means DefaultDebounce; no extensions means
// DefaultExtensions.
func New(root string, debounce time.Duration, extensions ...string) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	w := &Watcher{
		fs:         fw,
		root:       root,
		extensions: make(map[string]struct{}, len(extensions)),
		debounce:   debounce,
	}
	for _, ext := range extensions {
		w.extensions[ext] = struct{}{}
	}
	if err := w.addTree(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Close releases the underlying watcher. Run returns once it is closed.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// Run delivers sorted, de-duplicated batches of changed files to onChange
// until ctx is done. onChange runs on the watching goroutine; events that
// arrive meanwhile are batched for the next call.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context, files []string)) error {
	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						slog.Warn("failed to watch new directory", "dir", ev.Name, "error", err)
					}
					continue
				}
			}
			if !w.relevant(ev) {
				continue
			}
			pending[ev.Name] = struct{}{}
			timer.Reset(w.debounce)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			files := make([]string, 0, len(pending))
			for f := range pending {
				files = append(files, f)
			}
			slices.Sort(files)
			clear(pending)
			slog.Debug("source change detected", "files", len(files))
			onChange(ctx, files)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	_, ok := w.extensions[filepath.Ext(ev.Name)]
	return ok
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && javasrc.SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("failed to watch directory", "dir", path, "error", err)
		}
		return nil
	})
}
