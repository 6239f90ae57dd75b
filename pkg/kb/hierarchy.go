package kb

import (
	"errors"
	"fmt"

	"github.com/dominikbraun/graph"
	"github.com/puzpuzpuz/xsync/v4"
)

// hierarchy is the subtype graph. Edges point from a type to its direct
// supertypes.
type hierarchy struct {
	g graph.Graph[string, string]

	// ancestors memoises the reflexive-transitive supertype set per type.
	ancestors *xsync.Map[string, Set[string]]
}

func newHierarchy() *hierarchy {
	return &hierarchy{
		g:         graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles()),
		ancestors: xsync.NewMap[string, Set[string]](),
	}
}

func (h *hierarchy) addType(name string) error {
	err := h.g.AddVertex(name)
	if err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
		return fmt.Errorf("add type %s: %w", name, err)
	}
	return nil
}

func (h *hierarchy) addSupertype(sub, sup string) error {
	if sub == sup {
		return fmt.Errorf("type %s extends itself", sub)
	}
	if err := h.addType(sub); err != nil {
		return err
	}
	if err := h.addType(sup); err != nil {
		return err
	}
	err := h.g.AddEdge(sub, sup)
	switch {
	case err == nil, errors.Is(err, graph.ErrEdgeAlreadyExists):
		return nil
	case errors.Is(err, graph.ErrEdgeCreatesCycle):
		return fmt.Errorf("type hierarchy cycle through %s and %s", sub, sup)
	default:
		return fmt.Errorf("add supertype %s of %s: %w", sup, sub, err)
	}
}

// supertypesOf returns name and all of its transitive supertypes in
// depth-first discovery order.
func (h *hierarchy) supertypesOf(name string) Set[string] {
	if s, ok := h.ancestors.Load(name); ok {
		return s
	}
	s := make(Set[string])
	s.Add(name)
	if _, err := h.g.Vertex(name); err == nil {
		_ = graph.DFS(h.g, name, func(v string) bool {
			s.Add(v)
			return false
		})
	}
	h.ancestors.Store(name, s)
	return s
}

// isSubtypeOrSelf treats java.lang.Object as the supertype of everything.
func (h *hierarchy) isSubtypeOrSelf(sub, sup string) bool {
	sub, sup = EraseGenerics(sub), EraseGenerics(sup)
	if sub == sup || sup == ObjectType {
		return true
	}
	return h.supertypesOf(sub).Has(sup)
}

func (h *hierarchy) isRelated(a, b string) bool {
	return h.isSubtypeOrSelf(a, b) || h.isSubtypeOrSelf(b, a)
}

// Set is a generic set type, as used throughout the knowledge base.
type Set[T comparable] map[T]struct{}

func (s Set[T]) Add(v T) {
	s[v] = struct{}{}
}

func (s Set[T]) Has(v T) bool {
	_, ok := s[v]
	return ok
}
