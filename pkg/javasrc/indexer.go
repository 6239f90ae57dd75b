package javasrc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/715d/topcallers/pkg/functional"
	"github.com/715d/topcallers/pkg/kb"
)

// Cache stores extracted files by the hash of their content.
type Cache interface {
	Get(hash string) (*File, bool)
	Put(hash string, f *File) error
}

// Options configures an indexing run.
type Options struct {
	Discover DiscoverOptions

	// Workers bounds concurrent file extraction. Zero means NumCPU.
	Workers int

	// Functional resolves well-known functional interfaces. Nil uses the
	// built-in table.
	Functional *functional.Table

	// Cache, if set, skips parsing files whose content was seen before.
	Cache Cache

	// Progress is called after each file is extracted. It must be safe for
	// concurrent use.
	Progress func(done, total int)
}

// Result is the outcome of indexing a source tree.
type Result struct {
	Sources *Sources
	Files   []*File
	Facts   *kb.Facts

	// Parsed and Cached count the files extracted and the files served from
	// the cache.
	Parsed int
	Cached int
}

// Index discovers, extracts and links the Java sources under root.
func Index(ctx context.Context, root string, opts Options) (*Result, error) {
	src, err := Discover(root, opts.Discover)
	if err != nil {
		return nil, err
	}
	slog.Debug("discovered sources", "root", root, "java", len(src.Java), "mappers", len(src.Mappers))

	res, err := Extract(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	table := opts.Functional
	if table == nil {
		table = functional.Default()
	}
	res.Facts = Link(res.Files, table)
	return res, nil
}

// Extract parses the Java files of src concurrently.
func Extract(ctx context.Context, src *Sources, opts Options) (*Result, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	var (
		files  = make([]*File, len(src.Java))
		done   atomic.Int64
		cached atomic.Int64
		total  = len(src.Java)
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for idx, rel := range src.Java {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			f, hit, err := extractFile(src.Abs(rel), rel, opts.Cache)
			if err != nil {
				return err
			}
			files[idx] = f
			if hit {
				cached.Add(1)
			}
			n := done.Add(1)
			if opts.Progress != nil {
				opts.Progress(int(n), total)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extract java sources: %w", err)
	}

	return &Result{
		Sources: src,
		Files:   files,
		Parsed:  total - int(cached.Load()),
		Cached:  int(cached.Load()),
	}, nil
}

func extractFile(path, rel string, cache Cache) (*File, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	var hash string
	if cache != nil {
		sum := sha256.Sum256(data)
		hash = hex.EncodeToString(sum[:])
		if f, ok := cache.Get(hash); ok {
			cp := *f
			cp.Path = rel
			return &cp, true, nil
		}
	}

	f, err := ParseSource(rel, data)
	if err != nil {
		return nil, false, err
	}
	if cache != nil {
		if err := cache.Put(hash, f); err != nil {
			slog.Warn("caching extracted file failed", "file", rel, "error", err)
		}
	}
	return f, false, nil
}
