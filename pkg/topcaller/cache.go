package topcaller

import (
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/715d/topcallers/pkg/kb"
)

// CallerCache memoises caller sets by method key. It is shared by every
// search handed the same instance and is never invalidated implicitly: call
// Clear whenever the code snapshot changes.
type CallerCache struct {
	entries *xsync.Map[string, []*kb.MethodSymbol]
	hits    atomic.Int64
	misses  atomic.Int64
}

func NewCallerCache() *CallerCache {
	return &CallerCache{
		entries: xsync.NewMap[string, []*kb.MethodSymbol](),
	}
}

// Load returns the cached callers of the method with the given key. The
// returned slice must not be modified.
func (c *CallerCache) Load(key string) ([]*kb.MethodSymbol, bool) {
	callers, ok := c.entries.Load(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return callers, ok
}

// Store records callers for key. A concurrent search that resolved the same
// method first wins; both computed the same set from the same snapshot.
func (c *CallerCache) Store(key string, callers []*kb.MethodSymbol) []*kb.MethodSymbol {
	actual, _ := c.entries.LoadOrStore(key, callers)
	return actual
}

func (c *CallerCache) Len() int {
	return c.entries.Size()
}

// Stats returns the number of cache hits and misses since creation.
func (c *CallerCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *CallerCache) Clear() {
	c.entries.Clear()
}
