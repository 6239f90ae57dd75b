package topcaller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/715d/topcallers/pkg/functional"
	"github.com/715d/topcallers/pkg/javasrc"
	"github.com/715d/topcallers/pkg/kb"
	"github.com/715d/topcallers/pkg/mapper"
)

// LoaderOptions configures how a knowledge base is loaded.
type LoaderOptions struct {
	// Root is the Java source tree to index. When FactsFile is set, Root is
	// only scanned for mapper XML files.
	Root string

	// FactsFile is a prebuilt facts file used instead of indexing sources.
	FactsFile string

	// TestRoots replaces the test source globs of the loaded facts when set.
	TestRoots []string

	Discover javasrc.DiscoverOptions

	// Workers bounds concurrent parsing. Zero means NumCPU.
	Workers int

	Functional *functional.Table

	// Cache, if set, is consulted before parsing each Java file.
	Cache javasrc.Cache

	// Progress reports parsed files. It must be safe for concurrent use.
	Progress func(done, total int)
}

// Loaded is a knowledge base ready for searching.
type Loaded struct {
	Snapshot   *kb.Snapshot
	Statements *mapper.Index

	// Files counts indexed Java files; Parsed and Cached split them by origin.
	Files  int
	Parsed int
	Cached int

	Duration time.Duration
}

// Load builds a snapshot from a facts file or by indexing the sources under
// opts.Root, and scans the mapper files found under the root.
func Load(ctx context.Context, opts LoaderOptions) (loaded *Loaded, err error) {
	if opts.Root == "" && opts.FactsFile == "" {
		return nil, fmt.Errorf("load: either a source root or a facts file is required")
	}
	began := time.Now()
	ctx, span := tracer.Start(ctx, "topcaller.Load", trace.WithAttributes(
		attribute.String("topcaller.root", opts.Root),
		attribute.String("topcaller.facts", opts.FactsFile),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(
				attribute.Int("topcaller.files", loaded.Files),
				attribute.Int("topcaller.cached", loaded.Cached),
				attribute.Int("topcaller.methods", len(loaded.Snapshot.Methods())),
				attribute.Int("topcaller.statements", loaded.Statements.Len()),
			)
		}
		span.End()
	}()

	loaded = &Loaded{Statements: mapper.NewIndex()}
	var (
		facts *kb.Facts
		src   *javasrc.Sources
	)
	if opts.FactsFile != "" {
		if facts, err = kb.LoadFacts(opts.FactsFile); err != nil {
			return nil, err
		}
		if opts.Root != "" {
			if src, err = javasrc.Discover(opts.Root, opts.Discover); err != nil {
				return nil, err
			}
		}
	} else {
		res, err := javasrc.Index(ctx, opts.Root, javasrc.Options{
			Discover:   opts.Discover,
			Workers:    opts.Workers,
			Functional: opts.Functional,
			Cache:      opts.Cache,
			Progress:   opts.Progress,
		})
		if err != nil {
			return nil, err
		}
		facts, src = res.Facts, res.Sources
		loaded.Files, loaded.Parsed, loaded.Cached = len(res.Files), res.Parsed, res.Cached
	}
	if len(opts.TestRoots) > 0 {
		facts.TestRoots = opts.TestRoots
	}

	if loaded.Snapshot, err = kb.Build(facts); err != nil {
		return nil, fmt.Errorf("build knowledge base: %w", err)
	}

	if src != nil && len(src.Mappers) > 0 {
		files := make([]string, len(src.Mappers))
		for i, rel := range src.Mappers {
			files[i] = src.Abs(rel)
		}
		if loaded.Statements, err = mapper.ScanFiles(ctx, files, opts.Workers); err != nil {
			return nil, err
		}
	}

	loaded.Duration = time.Since(began)
	slog.Info("knowledge base loaded",
		"methods", len(loaded.Snapshot.Methods()),
		"files", loaded.Files,
		"cached", loaded.Cached,
		"statements", loaded.Statements.Len(),
		"duration", loaded.Duration)
	return loaded, nil
}

// Targets resolves a method reference or a mapper statement id into start
// methods. Exactly one of method and statement must be set.
func (l *Loaded) Targets(method, statement string) ([]*kb.MethodSymbol, error) {
	switch {
	case method != "" && statement != "":
		return nil, fmt.Errorf("a method and a statement cannot both be given")
	case method != "":
		return l.Snapshot.LookupMethods(method)
	case statement != "":
		return l.Statements.Resolve(l.Snapshot, statement)
	}
	return nil, fmt.Errorf("no method or statement given")
}
