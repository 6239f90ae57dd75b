package topcaller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/715d/topcallers/internal/analysis"
	"github.com/715d/topcallers/pkg/kb"
)

// Resolver computes the immediate callers of a method within one snapshot.
type Resolver struct {
	kb    kb.KnowledgeBase
	scope kb.Scope
	keys  *analysis.KeyCache
	cache *CallerCache
}

// NewResolver creates a resolver over base restricted to scope. Nil caches
// are replaced with private ones.
func NewResolver(base kb.KnowledgeBase, scope kb.Scope, keys *analysis.KeyCache, cache *CallerCache) *Resolver {
	if keys == nil {
		keys = analysis.NewKeyCache()
	}
	if cache == nil {
		cache = NewCallerCache()
	}
	if scope == nil {
		scope = base.ProductionScope()
	}
	return &Resolver{kb: base, scope: scope, keys: keys, cache: cache}
}

// CallersOf returns the methods containing a call to m, or to a method m
// overrides, in discovery order without duplicates.
//
// implOwner, when non-empty, drops call sites whose receiver is a concrete
// class outside implOwner's subtree. The cache is keyed by m alone, so a set
// computed under one implOwner is reused for any other; searches started
// through Finder always pass "".
//
// Transient lookup failures contribute nothing and keep the result out of the
// cache. The only error returned is ErrCancelled, or a non-transient failure
// of the knowledge base.
func (r *Resolver) CallersOf(ctx context.Context, m *kb.MethodSymbol, implOwner string) ([]*kb.MethodSymbol, error) {
	key := r.keys.MethodKey(m)
	if callers, ok := r.cache.Load(key); ok {
		slog.Debug("caller cache hit", "method", key, "callers", len(callers))
		return callers, nil
	}

	acc := newCallerSet(r.keys)
	complete, err := r.collect(ctx, m, implOwner, acc)
	if err != nil {
		return nil, err
	}

	roots, err := r.kb.FindOverriddenRootMethods(ctx, m)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, cancelled(ctx)
	case kb.IsTransient(err):
		slog.Warn("super method lookup failed", "method", key, "error", err)
		complete = false
	default:
		return nil, fmt.Errorf("find super methods of %s: %w", key, err)
	}
	for _, root := range roots {
		ok, err := r.collect(ctx, root, m.Owner, acc)
		if err != nil {
			return nil, err
		}
		complete = complete && ok
	}

	callers := acc.list
	if complete {
		callers = r.cache.Store(key, callers)
	}
	return callers, nil
}

// collect adds the enclosing methods of every surviving call site of m. It
// reports false when a transient failure hid some of them.
func (r *Resolver) collect(ctx context.Context, m *kb.MethodSymbol, implOwner string, acc *callerSet) (bool, error) {
	sites, err := r.kb.FindCallSites(ctx, m, r.scope)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return false, cancelled(ctx)
	case kb.IsTransient(err):
		slog.Warn("call site lookup failed", "method", r.keys.MethodKey(m), "error", err)
		return false, nil
	default:
		return false, fmt.Errorf("find call sites of %s: %w", r.keys.MethodKey(m), err)
	}

	for _, site := range sites {
		if err := ctx.Err(); err != nil {
			return false, cancelled(ctx)
		}
		if r.kb.IsInDocComment(site.Location) {
			continue
		}
		if !r.receiverRelated(m, site) {
			continue
		}
		if implOwner != "" && !r.receiverCompatible(site, implOwner) {
			continue
		}
		caller, ok := r.kb.EnclosingMethod(site.Location)
		if !ok {
			// Field initialisers and static blocks have no enclosing method.
			slog.Debug("call outside any method", "method", r.keys.MethodKey(m), "location", site.Location.String())
			continue
		}
		acc.add(caller)
	}
	return true, nil
}

// receiverRelated drops sites whose receiver cannot hold an instance of the
// declaring type of m. Sites without a resolved receiver are kept.
func (r *Resolver) receiverRelated(m *kb.MethodSymbol, site kb.CallSite) bool {
	if site.Receiver == nil {
		return true
	}
	return r.kb.IsRelatedType(*site.Receiver, kb.NamedType(m.Owner))
}

// receiverCompatible reports whether the receiver of site could be an
// instance of implOwner. Interfaces, unknown types and unbounded type
// variables give no static guarantee and are accepted.
func (r *Resolver) receiverCompatible(site kb.CallSite, implOwner string) bool {
	if site.Receiver == nil {
		return true
	}
	for _, name := range site.Receiver.Erasure() {
		if name == kb.ObjectType {
			return true
		}
		ti, ok := r.kb.TypeInfo(name)
		if !ok || ti.External || !ti.Kind.Concrete() {
			return true
		}
		if r.kb.IsSubtypeOrSelf(name, implOwner) {
			return true
		}
	}
	return false
}

// callerSet is an insertion-ordered set of methods keyed by method key.
type callerSet struct {
	keys *analysis.KeyCache
	seen map[string]struct{}
	list []*kb.MethodSymbol
}

func newCallerSet(keys *analysis.KeyCache) *callerSet {
	return &callerSet{keys: keys, seen: make(map[string]struct{})}
}

func (s *callerSet) add(m *kb.MethodSymbol) {
	key := s.keys.MethodKey(m)
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}
	s.list = append(s.list, m)
}
