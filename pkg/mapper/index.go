package mapper

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/715d/topcallers/pkg/kb"
)

// statementAnnotations mark mapper interface methods that carry their SQL inline.
var statementAnnotations = []string{"Select", "Insert", "Update", "Delete", "SelectProvider", "InsertProvider", "UpdateProvider", "DeleteProvider"}

// Index maps statement ids to the statements declared in mapper files.
type Index struct {
	byFullID map[string]Statement
	byID     map[string][]Statement
}

func NewIndex() *Index {
	return &Index{
		byFullID: make(map[string]Statement),
		byID:     make(map[string][]Statement),
	}
}

// Add records the statements of one mapper file. A later statement with the
// same full id replaces the earlier one.
func (x *Index) Add(info *Info) {
	for _, st := range info.Statements {
		full := st.FullID()
		if _, dup := x.byFullID[full]; !dup {
			x.byID[st.ID] = append(x.byID[st.ID], st)
		}
		x.byFullID[full] = st
	}
}

// Len returns the number of distinct statements.
func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.byFullID)
}

// Statements returns all statements sorted by full id.
func (x *Index) Statements() []Statement {
	if x == nil {
		return nil
	}
	out := make([]Statement, 0, len(x.byFullID))
	for _, st := range x.byFullID {
		out = append(out, st)
	}
	slices.SortFunc(out, func(a, b Statement) int { return strings.Compare(a.FullID(), b.FullID()) })
	return out
}

// Lookup finds a statement by "namespace.id" or by a bare id that is unique
// across all mappers.
func (x *Index) Lookup(id string) (Statement, error) {
	if x == nil {
		return Statement{}, fmt.Errorf("statement %q: %w", id, kb.ErrUnknownMethod)
	}
	if st, ok := x.byFullID[id]; ok {
		return st, nil
	}
	switch candidates := x.byID[id]; len(candidates) {
	case 0:
		return Statement{}, fmt.Errorf("statement %q: %w", id, kb.ErrUnknownMethod)
	case 1:
		return candidates[0], nil
	default:
		names := make([]string, len(candidates))
		for i, c := range candidates {
			names[i] = c.FullID()
		}
		slices.Sort(names)
		return Statement{}, fmt.Errorf("statement %q is ambiguous: %s", id, strings.Join(names, ", "))
	}
}

// Resolve returns the mapper interface methods bound to the statement id.
// Statements declared only through annotations such as @Select are resolved
// against the knowledge base directly.
func (x *Index) Resolve(base kb.KnowledgeBase, id string) ([]*kb.MethodSymbol, error) {
	st, err := x.Lookup(id)
	if err == nil {
		methods, err := base.LookupMethods(st.FullID())
		if err != nil {
			return nil, fmt.Errorf("resolve statement %s (%s:%d): %w", st.FullID(), st.File, st.Line, err)
		}
		return methods, nil
	}
	if !errors.Is(err, kb.ErrUnknownMethod) {
		return nil, err
	}

	methods, lerr := base.LookupMethods(id)
	if lerr != nil {
		return nil, err
	}
	var annotated []*kb.MethodSymbol
	for _, m := range methods {
		if slices.ContainsFunc(statementAnnotations, m.HasAnnotation) {
			annotated = append(annotated, m)
		}
	}
	if len(annotated) == 0 {
		return nil, err
	}
	return annotated, nil
}
