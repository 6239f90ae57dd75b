// Package analysis provides method identity keys and result metadata for the
// top-caller search.
package analysis

import (
	"github.com/715d/topcallers/pkg/functional"
	"github.com/715d/topcallers/pkg/kb"
)

// MethodInfo represents information about a method reported by a search.
type MethodInfo struct {
	// Method is the symbol in the snapshot the search ran against.
	Method *kb.MethodSymbol

	// Key is the canonical method key.
	Key string

	// Kind explains why the method has no callers.
	Kind functional.EntryKind

	// Depth is the number of hops from the start method on the path that
	// first reached this method.
	Depth int

	// InTestScope is set for methods declared under a test source root.
	InTestScope bool
}

// NewMethodInfo creates a MethodInfo for a top caller found at depth.
func NewMethodInfo(m *kb.MethodSymbol, depth int, production kb.Scope, keys *KeyCache) *MethodInfo {
	mi := &MethodInfo{
		Method: m,
		Key:    keys.MethodKey(m),
		Kind:   functional.ClassifyEntry(m),
		Depth:  depth,
	}
	if production != nil {
		mi.InTestScope = !production.Contains(m.Location.File)
	}
	return mi
}

// ShouldReport determines if the method belongs in a production report.
// Test methods only call into production code and are never entry points of
// it, so they are dropped unless includeTests is set.
func (mi *MethodInfo) ShouldReport(includeTests bool) bool {
	if includeTests {
		return true
	}
	return !mi.InTestScope && mi.Kind != functional.EntryTest
}
