package functional

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/topcallers/pkg/kb"
)

func TestTableLookup(t *testing.T) {
	tab := Default()

	tests := []struct {
		iface string
		name  string
		want  bool
	}{
		{"java.util.function.Consumer", "accept", true},
		{"java.util.function.Consumer", "andThen", false},
		{"java.lang.Runnable", "run", true},
		{"org.springframework.jdbc.core.RowMapper", "mapRow", true},
		{"org.apache.ibatis.session.ResultHandler", "handleResult", true},
		{"com.acme.Handler", "handle", false},
	}
	for _, tt := range tests {
		t.Run(tt.iface+"#"+tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tab.IsAbstractMethod(tt.iface, tt.name))
		})
	}

	qn, ok := tab.QualifiedBySimpleName("Supplier")
	require.True(t, ok)
	require.Equal(t, "java.util.function.Supplier", qn)

	var empty *Table
	_, ok = empty.Lookup("java.lang.Runnable")
	require.False(t, ok)
}

func TestTableExtra(t *testing.T) {
	tab, err := New([]string{"com.acme.Outer$Callback#onEvent", " com.acme.Job#execute "})
	require.NoError(t, err)
	require.True(t, tab.IsAbstractMethod("com.acme.Outer.Callback", "onEvent"))
	require.True(t, tab.IsAbstractMethod("com.acme.Outer$Callback", "onEvent"))
	require.True(t, tab.IsAbstractMethod("com.acme.Job", "execute"))
	require.Len(t, tab.Methods(), len(Default().Methods())+2)

	for _, bad := range []string{"com.acme.Job", "#run", "com.acme.Job#", "a.B#c.d"} {
		_, err := New([]string{bad})
		require.Error(t, err, bad)
	}
}

func TestClassifyEntry(t *testing.T) {
	tests := []struct {
		name string
		m    kb.MethodSymbol
		want EntryKind
	}{
		{"get mapping", kb.MethodSymbol{Name: "list", Annotations: []string{"GetMapping"}}, EntryHTTP},
		{"qualified annotation", kb.MethodSymbol{Name: "tick", Annotations: []string{"org.springframework.scheduling.annotation.Scheduled"}}, EntryScheduled},
		{"kafka", kb.MethodSymbol{Name: "onMessage", Annotations: []string{"Override", "KafkaListener"}}, EntryListener},
		{"main", kb.MethodSymbol{Name: "main", Static: true, ReturnType: "void", Params: []string{"String[]"}}, EntryMain},
		{"varargs main", kb.MethodSymbol{Name: "main", Static: true, ReturnType: "void", Params: []string{"String..."}}, EntryMain},
		{"instance main", kb.MethodSymbol{Name: "main", ReturnType: "void", Params: []string{"String[]"}}, EntryUnreferenced},
		{"post construct", kb.MethodSymbol{Name: "warm", Annotations: []string{"PostConstruct"}}, EntryLifecycle},
		{"initializing bean", kb.MethodSymbol{Name: "afterPropertiesSet", ReturnType: "void"}, EntryLifecycle},
		{"junit", kb.MethodSymbol{Name: "shouldWork", Annotations: []string{"Test"}}, EntryTest},
		{"plain", kb.MethodSymbol{Name: "orphan", ReturnType: "void"}, EntryUnreferenced},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ClassifyEntry(&tt.m))
		})
	}
}

func TestEntryKindText(t *testing.T) {
	b, err := EntryHTTP.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "http-endpoint", string(b))
	require.Equal(t, "unreferenced", EntryUnreferenced.String())
}
