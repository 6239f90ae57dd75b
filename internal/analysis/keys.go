package analysis

import (
	"strings"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/715d/topcallers/pkg/kb"
)

// KeyCache provides efficient caching of canonical method keys for
// deduplication across one or more searches over the same snapshot.
type KeyCache struct {
	keys *xsync.Map[*kb.MethodSymbol, string]
}

func NewKeyCache() *KeyCache {
	return &KeyCache{
		keys: xsync.NewMap[*kb.MethodSymbol, string](),
	}
}

// MethodKey returns the canonical key "<returnType> <owner>.<name>(<params>)".
// Constructors have no return type and their key starts with the owner.
func (c *KeyCache) MethodKey(m *kb.MethodSymbol) string {
	if m == nil {
		return ""
	}
	key, ok := c.keys.Load(m)
	if ok {
		return key
	}
	key = ComputeMethodKey(m)
	c.keys.Store(m, key)
	return key
}

// Len returns the number of memoised keys.
func (c *KeyCache) Len() int {
	return c.keys.Size()
}

// Clear drops every memoised key. Keys must be cleared when the snapshot the
// symbols belong to is replaced.
func (c *KeyCache) Clear() {
	c.keys.Clear()
}

// ComputeMethodKey derives the key without caching. It depends only on the
// return type, owner, name and parameter types of m.
func ComputeMethodKey(m *kb.MethodSymbol) string {
	var builder strings.Builder
	builder.Grow(len(m.ReturnType) + len(m.Owner) + len(m.Name) + 32)

	if m.ReturnType != "" {
		builder.WriteString(m.ReturnType)
		builder.WriteByte(' ')
	}
	builder.WriteString(m.Owner)
	builder.WriteByte('.')
	builder.WriteString(m.Name)
	builder.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(p)
	}
	builder.WriteByte(')')
	return builder.String()
}
