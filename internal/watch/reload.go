package watch

import (
	"context"
	"log/slog"

	"github.com/715d/topcallers/pkg/kb"
	"github.com/715d/topcallers/pkg/topcaller"
)

// CacheClearer drops memoised results that may refer to a replaced snapshot.
type CacheClearer interface {
	ClearAllCaches()
}

// Reloader rebuilds the knowledge base when sources change and publishes
// the result. Its Reload method is meant to be passed to Watcher.Run.
type Reloader struct {
	Load   func(ctx context.Context) (*topcaller.Loaded, error)
	Live   *kb.Live
	Caches CacheClearer

	// After runs once the new snapshot is published.
	After func(ctx context.Context, loaded *topcaller.Loaded)
}

// Reload re-indexes the tree. When indexing fails the previous snapshot
// stays published and the error is logged.
func (r *Reloader) Reload(ctx context.Context, files []string) {
	slog.Info("re-indexing", "changed", len(files))
	loaded, err := r.Load(ctx)
	if err != nil {
		slog.Warn("re-index failed, keeping previous snapshot", "error", err)
		return
	}
	// Cached callers hold symbols of the old snapshot; drop them first so no
	// search against the new snapshot can observe them.
	if r.Caches != nil {
		r.Caches.ClearAllCaches()
	}
	r.Live.Publish(loaded.Snapshot)
	slog.Debug("snapshot published", "version", r.Live.Version())
	if r.After != nil {
		r.After(ctx, loaded)
	}
}
