package kb

import (
	"context"
	"sync"
	"sync/atomic"
)

// Live is an Index whose snapshot is replaced as the code base is re-indexed.
// It is not ready until the first snapshot is published.
type Live struct {
	cur     atomic.Pointer[Snapshot]
	ready   chan struct{}
	once    sync.Once
	version atomic.Uint64
}

var _ Index = (*Live)(nil)

func NewLive() *Live {
	return &Live{ready: make(chan struct{})}
}

// Publish swaps in s. Searches already running keep the view they started with.
func (l *Live) Publish(s *Snapshot) {
	l.cur.Store(s)
	l.version.Add(1)
	l.once.Do(func() { close(l.ready) })
}

// Version counts published snapshots.
func (l *Live) Version() uint64 {
	return l.version.Load()
}

func (l *Live) Ready() bool {
	select {
	case <-l.ready:
		return true
	default:
		return false
	}
}

func (l *Live) WaitUntilReady(ctx context.Context) error {
	select {
	case <-l.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns nil until the first Publish.
func (l *Live) Snapshot() KnowledgeBase {
	s := l.cur.Load()
	if s == nil {
		return nil
	}
	return s
}
