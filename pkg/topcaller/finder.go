package topcaller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/715d/topcallers/internal/analysis"
	"github.com/715d/topcallers/pkg/functional"
	"github.com/715d/topcallers/pkg/kb"
)

var tracer = otel.Tracer("github.com/715d/topcallers/pkg/topcaller")

// Options configures a Finder. Zero values select defaults.
type Options struct {
	// MaxDepth bounds the number of hops from the start method.
	MaxDepth int

	// Functional is the table of functional interface methods.
	Functional *functional.Table

	// Callers and Keys may be shared between finders over the same snapshot.
	Callers *CallerCache
	Keys    *analysis.KeyCache
}

// Finder runs top-caller searches against an index. It is safe for
// concurrent use; searches share the caches.
type Finder struct {
	index   kb.Index
	opts    Options
	callers *CallerCache
	keys    *analysis.KeyCache
}

func NewFinder(index kb.Index, opts Options) *Finder {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = MaxDepth
	}
	if opts.Functional == nil {
		opts.Functional = functional.Default()
	}
	f := &Finder{
		index:   index,
		opts:    opts,
		callers: opts.Callers,
		keys:    opts.Keys,
	}
	if f.callers == nil {
		f.callers = NewCallerCache()
	}
	if f.keys == nil {
		f.keys = analysis.NewKeyCache()
	}
	return f
}

// Keys returns the key cache used by the finder.
func (f *Finder) Keys() *analysis.KeyCache {
	return f.keys
}

// ClearAllCaches drops memoised caller sets and method keys. It must be
// called whenever the index publishes a new snapshot.
func (f *Finder) ClearAllCaches() {
	f.callers.Clear()
	f.keys.Clear()
	slog.Debug("cleared caches")
}

// FindTopCallers returns the top callers of start sorted by method key.
func (f *Finder) FindTopCallers(ctx context.Context, start *kb.MethodSymbol) ([]*kb.MethodSymbol, error) {
	res, err := f.Search(ctx, start)
	if err != nil {
		return nil, err
	}
	return res.Methods(), nil
}

type frontierItem struct {
	method *kb.MethodSymbol
	depth  int
}

// Search walks callers breadth first from start and reports every reached
// method that has no callers of its own.
func (f *Finder) Search(ctx context.Context, start *kb.MethodSymbol) (res *Result, err error) {
	if start == nil {
		return nil, fmt.Errorf("search: no start method")
	}
	began := time.Now()
	startKey := f.keys.MethodKey(start)

	ctx, span := tracer.Start(ctx, "topcaller.Search", trace.WithAttributes(
		attribute.String("topcaller.start", startKey),
		attribute.Int("topcaller.max_depth", f.opts.MaxDepth),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(
				attribute.Int("topcaller.visited", res.Visited),
				attribute.Int("topcaller.top_callers", len(res.TopCallers)),
				attribute.Bool("topcaller.truncated", res.Truncated),
			)
		}
		span.End()
	}()

	// Wait outside the snapshot so an indexing index blocks only this search.
	if !f.index.Ready() {
		slog.Info("waiting for index", "start", startKey)
	}
	if err := f.index.WaitUntilReady(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	snap := f.index.Snapshot()
	if snap == nil {
		return nil, kb.ErrNotReady
	}

	s := &search{
		finder:     f,
		kb:         snap,
		scope:      snap.ProductionScope(),
		resolver:   NewResolver(snap, snap.ProductionScope(), f.keys, f.callers),
		normalizer: NewNormalizer(snap, snap.ProductionScope(), f.opts.Functional, f.keys),
		visited:    make(map[string]struct{}),
		found:      make(map[string]*analysis.MethodInfo),
	}
	res, err = s.run(ctx, start)
	if err != nil {
		return nil, err
	}
	res.Duration = time.Since(began)
	slog.Debug("search finished",
		"start", startKey,
		"visited", res.Visited,
		"top_callers", len(res.TopCallers),
		"truncated", res.Truncated,
		"duration", res.Duration)
	return res, nil
}

// search holds the state of one traversal.
type search struct {
	finder     *Finder
	kb         kb.KnowledgeBase
	scope      kb.Scope
	resolver   *Resolver
	normalizer *Normalizer

	visited   map[string]struct{}
	found     map[string]*analysis.MethodInfo
	truncated bool
	failures  int
}

func (s *search) run(ctx context.Context, start *kb.MethodSymbol) (*Result, error) {
	keys := s.finder.keys
	maxDepth := s.finder.opts.MaxDepth
	queue := []frontierItem{{method: start}}

	for len(queue) > 0 {
		if ctx.Err() != nil {
			slog.Info("search cancelled", "start", keys.MethodKey(start), "visited", len(s.visited))
			return nil, cancelled(ctx)
		}
		item := queue[0]
		queue[0] = frontierItem{}
		queue = queue[1:]

		key := keys.MethodKey(item.method)
		if item.depth > maxDepth {
			if _, seen := s.visited[key]; !seen {
				slog.Warn("depth limit reached", "method", key, "depth", item.depth)
				s.truncated = true
			}
			continue
		}
		if _, ok := s.visited[key]; ok {
			continue
		}
		s.visited[key] = struct{}{}

		next, terminal, err := s.expand(ctx, item.method)
		if err != nil {
			if errors.Is(err, ErrCancelled) || ctx.Err() != nil {
				return nil, cancelled(ctx)
			}
			slog.Warn("expanding method failed", "method", key, "error", err)
			s.failures++
			continue
		}
		if terminal {
			s.found[key] = analysis.NewMethodInfo(item.method, item.depth, s.scope, keys)
			continue
		}
		for _, m := range next {
			queue = append(queue, frontierItem{method: m, depth: item.depth + 1})
		}
	}

	// A method is never its own entry point.
	delete(s.found, keys.MethodKey(start))

	top := make([]*analysis.MethodInfo, 0, len(s.found))
	for _, mi := range s.found {
		top = append(top, mi)
	}
	slices.SortFunc(top, func(a, b *analysis.MethodInfo) int { return strings.Compare(a.Key, b.Key) })

	return &Result{
		Start:      start,
		TopCallers: top,
		Visited:    len(s.visited),
		Truncated:  s.truncated,
		Failures:   s.failures,
	}, nil
}

// expand returns the methods to enqueue after m, or terminal when m is a top
// caller. A panic inside the knowledge base fails only this method.
func (s *search) expand(ctx context.Context, m *kb.MethodSymbol) (next []*kb.MethodSymbol, terminal bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while expanding %s: %v", m.Ref(), r)
		}
	}()

	sub, err := s.normalizer.Normalize(ctx, m)
	if err != nil {
		return nil, false, err
	}
	if len(sub.Methods) > 0 {
		return sub.Methods, false, nil
	}

	callers, err := s.resolver.CallersOf(ctx, m, "")
	if err != nil {
		return nil, false, err
	}
	if len(callers) == 0 {
		return nil, !sub.Unresolved, nil
	}
	return callers, false, nil
}
