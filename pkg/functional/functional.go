// Package functional knows which interface methods are single abstract
// methods of functional interfaces and how entry points are recognised.
package functional

import (
	"fmt"
	"slices"
	"strings"
)

// Method identifies an abstract method by declaring interface and name.
type Method struct {
	Interface string
	Name      string
}

func (m Method) String() string {
	return m.Interface + "#" + m.Name
}

// wellKnown maps interface qualified names to their abstract method.
var wellKnown = map[string]string{
	"java.lang.Runnable":                      "run",
	"java.util.concurrent.Callable":           "call",
	"java.util.Comparator":                    "compare",
	"java.util.function.Consumer":             "accept",
	"java.util.function.BiConsumer":           "accept",
	"java.util.function.IntConsumer":          "accept",
	"java.util.function.LongConsumer":         "accept",
	"java.util.function.Function":             "apply",
	"java.util.function.BiFunction":           "apply",
	"java.util.function.IntFunction":          "apply",
	"java.util.function.UnaryOperator":        "apply",
	"java.util.function.BinaryOperator":       "apply",
	"java.util.function.ToIntFunction":        "applyAsInt",
	"java.util.function.ToLongFunction":       "applyAsLong",
	"java.util.function.ToDoubleFunction":     "applyAsDouble",
	"java.util.function.Supplier":             "get",
	"java.util.function.BooleanSupplier":      "getAsBoolean",
	"java.util.function.Predicate":            "test",
	"java.util.function.BiPredicate":          "test",
	"java.util.function.IntPredicate":         "test",
	"java.util.concurrent.Executor":           "execute",
	"java.util.concurrent.ThreadFactory":      "newThread",

	"org.springframework.transaction.support.TransactionCallback":              "doInTransaction",
	"org.springframework.transaction.support.TransactionCallbackWithoutResult": "doInTransactionWithoutResult",
	"org.springframework.jdbc.core.RowMapper":                                  "mapRow",
	"org.springframework.jdbc.core.ResultSetExtractor":                         "extractData",
	"org.springframework.jdbc.core.RowCallbackHandler":                         "processRow",
	"org.springframework.jdbc.core.PreparedStatementSetter":                    "setValues",
	"org.springframework.jdbc.core.PreparedStatementCreator":                   "createPreparedStatement",
	"org.springframework.jdbc.core.ConnectionCallback":                         "doInConnection",
	"org.springframework.jdbc.core.StatementCallback":                          "doInStatement",
	"org.springframework.jdbc.core.CallableStatementCallback":                  "doInCallableStatement",
	"org.apache.ibatis.session.ResultHandler":                                  "handleResult",
}

// Table is a set of functional abstract methods. A nil *Table is empty.
type Table struct {
	entries     []Method
	byInterface map[string]string
	bySimple    map[string]string
}

// Default returns the built-in table.
func Default() *Table {
	t := &Table{
		byInterface: make(map[string]string, len(wellKnown)),
		bySimple:    make(map[string]string, len(wellKnown)),
	}
	for iface, name := range wellKnown {
		t.add(iface, name)
	}
	return t
}

// New returns the built-in table extended with entries of the form
// "pkg.Interface#method".
func New(extra []string) (*Table, error) {
	t := Default()
	for _, e := range extra {
		m, err := ParseMethod(e)
		if err != nil {
			return nil, err
		}
		t.add(m.Interface, m.Name)
	}
	return t, nil
}

// ParseMethod parses "pkg.Interface#method".
func ParseMethod(s string) (Method, error) {
	iface, name, ok := strings.Cut(strings.TrimSpace(s), "#")
	if !ok || iface == "" || name == "" || strings.ContainsAny(name, ".#()") {
		return Method{}, fmt.Errorf("malformed functional method %q: want Interface#method", s)
	}
	return Method{Interface: iface, Name: name}, nil
}

func (t *Table) add(iface, name string) {
	key := canonical(iface)
	if _, dup := t.byInterface[key]; dup {
		for i := range t.entries {
			if canonical(t.entries[i].Interface) == key {
				t.entries[i].Name = name
			}
		}
	} else {
		t.entries = append(t.entries, Method{Interface: iface, Name: name})
	}
	t.byInterface[key] = name
	t.bySimple[simpleName(iface)] = iface
}

// Lookup returns the abstract method name of a functional interface.
func (t *Table) Lookup(iface string) (string, bool) {
	if t == nil {
		return "", false
	}
	name, ok := t.byInterface[canonical(iface)]
	return name, ok
}

// IsAbstractMethod reports whether name is the abstract method of iface.
func (t *Table) IsAbstractMethod(iface, name string) bool {
	got, ok := t.Lookup(iface)
	return ok && got == name
}

// QualifiedBySimpleName resolves the simple name of a table interface, for
// sources that use a functional type without an import the indexer can see.
func (t *Table) QualifiedBySimpleName(simple string) (string, bool) {
	if t == nil {
		return "", false
	}
	qn, ok := t.bySimple[simple]
	return qn, ok
}

// Methods returns the table entries sorted by interface.
func (t *Table) Methods() []Method {
	if t == nil {
		return nil
	}
	out := slices.Clone(t.entries)
	slices.SortFunc(out, func(a, b Method) int { return strings.Compare(a.Interface, b.Interface) })
	return out
}

// canonical folds the '$' nesting separator used for binary names.
func canonical(iface string) string {
	return strings.ReplaceAll(iface, "$", ".")
}

func simpleName(qn string) string {
	if i := strings.LastIndexAny(qn, ".$"); i >= 0 {
		return qn[i+1:]
	}
	return qn
}
