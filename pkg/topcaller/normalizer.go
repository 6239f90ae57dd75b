package topcaller

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/715d/topcallers/internal/analysis"
	"github.com/715d/topcallers/pkg/functional"
	"github.com/715d/topcallers/pkg/kb"
)

// Substitution is the outcome of normalising one method.
type Substitution struct {
	// Methods replaces the normalised method in the frontier. Empty means
	// the method is resolved normally.
	Methods []*kb.MethodSymbol

	// Unresolved marks a functional abstract method for which no lambda or
	// method reference was found. Such a method is never a top caller.
	Unresolved bool
}

// Normalizer rewrites methods that are not invoked where they are declared:
// methods of anonymous classes and abstract methods of functional interfaces.
type Normalizer struct {
	kb    kb.KnowledgeBase
	scope kb.Scope
	table *functional.Table
	keys  *analysis.KeyCache
}

func NewNormalizer(base kb.KnowledgeBase, scope kb.Scope, table *functional.Table, keys *analysis.KeyCache) *Normalizer {
	if table == nil {
		table = functional.Default()
	}
	if keys == nil {
		keys = analysis.NewKeyCache()
	}
	if scope == nil {
		scope = base.ProductionScope()
	}
	return &Normalizer{kb: base, scope: scope, table: table, keys: keys}
}

// Normalize applies at most one rewrite rule. The anonymous owner rule is
// tried first; when the anonymous class has no enclosing method the
// functional interface rule is tried instead.
func (n *Normalizer) Normalize(ctx context.Context, m *kb.MethodSymbol) (Substitution, error) {
	if encl, ok := n.anonymousCreator(m); ok {
		slog.Debug("substituted anonymous class method",
			"method", n.keys.MethodKey(m), "creator", n.keys.MethodKey(encl))
		return Substitution{Methods: []*kb.MethodSymbol{encl}}, nil
	}

	isFunctional, err := n.isFunctional(ctx, m)
	if err != nil || !isFunctional {
		return Substitution{}, err
	}

	refs, err := n.kb.FindFunctionalImplementations(ctx, m.Owner, n.scope)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return Substitution{}, cancelled(ctx)
	case kb.IsTransient(err):
		slog.Warn("functional implementation lookup failed", "method", n.keys.MethodKey(m), "error", err)
	default:
		return Substitution{}, fmt.Errorf("find implementations of %s: %w", m.Owner, err)
	}

	set := newCallerSet(n.keys)
	for _, ref := range refs {
		if n.kb.IsInDocComment(ref.Location) {
			continue
		}
		encl, ok := n.kb.EnclosingMethod(ref.Location)
		if !ok {
			slog.Debug("functional expression outside any method", "interface", m.Owner, "location", ref.Location.String())
			continue
		}
		set.add(encl)
	}
	if len(set.list) == 0 {
		slog.Debug("no functional implementations", "method", n.keys.MethodKey(m))
		return Substitution{Unresolved: true}, nil
	}
	slog.Debug("substituted functional method",
		"method", n.keys.MethodKey(m), "implementors", len(set.list))
	return Substitution{Methods: set.list}, nil
}

// anonymousCreator returns the method that lexically contains the creation
// of m's anonymous declaring class.
func (n *Normalizer) anonymousCreator(m *kb.MethodSymbol) (*kb.MethodSymbol, bool) {
	ti, ok := n.kb.TypeInfo(m.Owner)
	if !ok || !ti.Anonymous() {
		return nil, false
	}
	encl, ok := n.kb.EnclosingMethod(ti.DefinedAt)
	if !ok || encl == m {
		slog.Debug("anonymous class without enclosing method", "type", m.Owner)
		return nil, false
	}
	return encl, true
}

// isFunctional matches m, or one of the deepest methods it overrides, against
// the functional interface table.
func (n *Normalizer) isFunctional(ctx context.Context, m *kb.MethodSymbol) (bool, error) {
	if m.Static {
		return false, nil
	}
	if n.table.IsAbstractMethod(m.Owner, m.Name) {
		return true, nil
	}
	roots, err := n.kb.FindOverriddenRootMethods(ctx, m)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return false, cancelled(ctx)
	case kb.IsTransient(err):
		slog.Warn("super method lookup failed", "method", n.keys.MethodKey(m), "error", err)
		return false, nil
	default:
		return false, fmt.Errorf("find super methods of %s: %w", n.keys.MethodKey(m), err)
	}
	for _, root := range roots {
		if n.table.IsAbstractMethod(root.Owner, root.Name) {
			return true, nil
		}
	}
	return false, nil
}
