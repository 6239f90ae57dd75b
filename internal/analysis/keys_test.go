package analysis

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/topcallers/pkg/functional"
	"github.com/715d/topcallers/pkg/kb"
)

func TestMethodKeyFormat(t *testing.T) {
	tests := []struct {
		name string
		m    *kb.MethodSymbol
		want string
	}{
		{
			name: "no params",
			m:    &kb.MethodSymbol{Owner: "com.acme.Service", Name: "run", ReturnType: "void"},
			want: "void com.acme.Service.run()",
		},
		{
			name: "params",
			m:    &kb.MethodSymbol{Owner: "com.acme.Repo", Name: "find", ReturnType: "List<User>", Params: []string{"String", "int"}},
			want: "List<User> com.acme.Repo.find(String,int)",
		},
		{
			name: "constructor",
			m:    &kb.MethodSymbol{Owner: "com.acme.Repo", Name: "Repo", Params: []string{"DataSource"}},
			want: "com.acme.Repo.Repo(DataSource)",
		},
		{
			name: "anonymous owner",
			m:    &kb.MethodSymbol{Owner: "com.acme.Service$1", Name: "accept", ReturnType: "void", Params: []string{"T"}},
			want: "void com.acme.Service$1.accept(T)",
		},
		{
			name: "nil",
			m:    nil,
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, NewKeyCache().MethodKey(tt.m))
		})
	}
}

func TestMethodKeyOverloadsDistinct(t *testing.T) {
	keys := NewKeyCache()
	a := &kb.MethodSymbol{Owner: "a.B", Name: "f", ReturnType: "void", Params: []string{"int"}}
	b := &kb.MethodSymbol{Owner: "a.B", Name: "f", ReturnType: "void", Params: []string{"long"}}
	c := &kb.MethodSymbol{Owner: "a.B", Name: "f", ReturnType: "void", Params: []string{"int"}}

	require.NotEqual(t, keys.MethodKey(a), keys.MethodKey(b))
	require.Equal(t, keys.MethodKey(a), keys.MethodKey(c))
}

func TestKeyCaching(t *testing.T) {
	keys := NewKeyCache()
	m := &kb.MethodSymbol{Owner: "a.B", Name: "f", ReturnType: "int"}

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				require.Equal(t, "int a.B.f()", keys.MethodKey(m))
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, keys.Len())

	keys.Clear()
	require.Equal(t, 0, keys.Len())
	require.Equal(t, "int a.B.f()", keys.MethodKey(m))
}

func TestMethodInfoShouldReport(t *testing.T) {
	keys := NewKeyCache()
	production := kb.MustPathScope(nil, kb.DefaultTestRoots)

	handler := &kb.MethodSymbol{
		Owner: "a.Web", Name: "list", ReturnType: "String",
		Annotations: []string{"GetMapping"},
		Location:    kb.Location{File: "src/main/java/a/Web.java"},
	}
	mi := NewMethodInfo(handler, 3, production, keys)
	require.Equal(t, "String a.Web.list()", mi.Key)
	require.Equal(t, functional.EntryHTTP, mi.Kind)
	require.Equal(t, 3, mi.Depth)
	require.True(t, mi.ShouldReport(false))

	testMethod := &kb.MethodSymbol{
		Owner: "a.WebTest", Name: "lists", ReturnType: "void",
		Location: kb.Location{File: "src/test/java/a/WebTest.java"},
	}
	mi = NewMethodInfo(testMethod, 1, production, keys)
	require.True(t, mi.InTestScope)
	require.False(t, mi.ShouldReport(false))
	require.True(t, mi.ShouldReport(true))
}
