package topcaller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/topcallers/internal/analysis"
	"github.com/715d/topcallers/pkg/functional"
)

const dispatchFacts = `
types:
  - {name: app.Repo, kind: interface}
  - {name: app.SqlRepo, supertypes: [app.Repo]}
  - {name: app.CachedRepo, supertypes: [app.SqlRepo]}
  - {name: app.MemRepo, supertypes: [app.Repo]}
methods:
  - {owner: app.Repo, name: find, params: [long]}
  - {owner: app.SqlRepo, name: find, params: [long]}
  - {owner: app.CachedRepo, name: find, params: [long]}
  - {owner: app.MemRepo, name: find, params: [long]}
  - {owner: app.Web, name: viaInterface}
  - {owner: app.Web, name: viaSql}
  - {owner: app.Web, name: viaCached}
  - {owner: app.Web, name: viaMem}
  - {owner: app.Web, name: direct}
calls:
  - {target: app.Repo.find(long), in: app.Web.viaInterface(), receiver: app.Repo}
  - {target: app.Repo.find(long), in: app.Web.viaSql(), receiver: app.SqlRepo}
  - {target: app.Repo.find(long), in: app.Web.viaCached(), receiver: app.CachedRepo}
  - {target: app.Repo.find(long), in: app.Web.viaMem(), receiver: app.MemRepo}
  - {target: app.SqlRepo.find(long), in: app.Web.direct(), receiver: app.SqlRepo}
`

func callerNames(t *testing.T, r *Resolver, ref, implOwner string) []string {
	t.Helper()
	s := r.kb
	callers, err := r.CallersOf(context.Background(), lookup(t, s, ref), implOwner)
	require.NoError(t, err)
	var names []string
	for _, c := range callers {
		names = append(names, c.Name)
	}
	return names
}

func TestResolverSuperCallersFiltered(t *testing.T) {
	s := buildSnapshot(t, dispatchFacts)

	tests := []struct {
		ref  string
		want []string
	}{
		{"app.SqlRepo.find(long)", []string{"direct", "viaInterface", "viaSql", "viaCached"}},
		{"app.CachedRepo.find(long)", []string{"viaInterface", "viaCached"}},
		{"app.MemRepo.find(long)", []string{"viaInterface", "viaMem"}},
		{"app.Repo.find(long)", []string{"viaInterface", "viaSql", "viaCached", "viaMem"}},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			r := NewResolver(s, nil, nil, nil)
			require.ElementsMatch(t, tt.want, callerNames(t, r, tt.ref, ""))
		})
	}
}

func TestResolverDiscoveryOrder(t *testing.T) {
	s := buildSnapshot(t, dispatchFacts)
	r := NewResolver(s, nil, nil, nil)

	// Direct callers precede callers found through the super method.
	got := callerNames(t, r, "app.SqlRepo.find(long)", "")
	require.Equal(t, "direct", got[0])
}

func TestResolverCacheIgnoresImplOwner(t *testing.T) {
	s := buildSnapshot(t, dispatchFacts)
	cache := NewCallerCache()
	r := NewResolver(s, nil, analysis.NewKeyCache(), cache)

	filtered := callerNames(t, r, "app.Repo.find(long)", "app.MemRepo")
	require.ElementsMatch(t, []string{"viaInterface", "viaMem"}, filtered)
	require.Equal(t, 1, cache.Len())

	// The set computed for MemRepo is reused verbatim.
	require.Equal(t, filtered, callerNames(t, r, "app.Repo.find(long)", ""))
}

func TestNormalizerRules(t *testing.T) {
	s := buildSnapshot(t, `
types:
  - {name: java.util.function.Supplier, kind: interface, external: true}
  - {name: app.Callback, kind: interface}
  - {name: app.Page$1, kind: anonymous, supertypes: [app.Callback], in: app.Page.render()}
  - {name: app.Orphan$1, kind: anonymous, supertypes: [java.util.function.Supplier], defined_at: {file: app/Orphan.java, line: 500}}
methods:
  - {owner: java.util.function.Supplier, name: get, returns: T}
  - {owner: app.Callback, name: done}
  - {owner: app.Page, name: render}
  - {owner: app.Page, name: load}
  - {owner: app.Page$1, name: done}
  - {owner: app.Orphan$1, name: get, returns: Object}
functionals:
  - {interface: app.Callback, in: app.Page.load()}
`)
	table, err := functional.New([]string{"app.Callback#done"})
	require.NoError(t, err)
	n := NewNormalizer(s, nil, table, nil)
	ctx := context.Background()

	t.Run("anonymous owner", func(t *testing.T) {
		sub, err := n.Normalize(ctx, lookup(t, s, "app.Page$1.done()"))
		require.NoError(t, err)
		require.Len(t, sub.Methods, 1)
		require.Equal(t, "render", sub.Methods[0].Name)
	})

	t.Run("configured functional interface", func(t *testing.T) {
		sub, err := n.Normalize(ctx, lookup(t, s, "app.Callback.done()"))
		require.NoError(t, err)
		require.Len(t, sub.Methods, 1)
		require.Equal(t, "load", sub.Methods[0].Name)
	})

	t.Run("anonymous without creator falls through", func(t *testing.T) {
		sub, err := n.Normalize(ctx, lookup(t, s, "app.Orphan$1.get()"))
		require.NoError(t, err)
		require.Empty(t, sub.Methods)
		require.True(t, sub.Unresolved)
	})

	t.Run("functional without implementations", func(t *testing.T) {
		sub, err := n.Normalize(ctx, lookup(t, s, "java.util.function.Supplier.get()"))
		require.NoError(t, err)
		require.Empty(t, sub.Methods)
		require.True(t, sub.Unresolved)
	})

	t.Run("ordinary method", func(t *testing.T) {
		sub, err := n.Normalize(ctx, lookup(t, s, "app.Page.render()"))
		require.NoError(t, err)
		require.Empty(t, sub.Methods)
		require.False(t, sub.Unresolved)
	})
}
