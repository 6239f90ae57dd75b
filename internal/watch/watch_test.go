package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/715d/topcallers/pkg/kb"
	"github.com/715d/topcallers/pkg/topcaller"
)

func startWatcher(t *testing.T, root string) <-chan []string {
	t.Helper()
	w, err := New(root, 50*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	batches := make(chan []string, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx, func(_ context.Context, files []string) { batches <- files })
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		require.NoError(t, w.Close())
	})
	return batches
}

func waitBatch(t *testing.T, batches <-chan []string) []string {
	t.Helper()
	select {
	case files := <-batches:
		return files
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
		return nil
	}
}

func TestNewMissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), 0)
	require.Error(t, err)
}

func TestWatcherBatchesChanges(t *testing.T) {
	root := t.TempDir()
	batches := startWatcher(t, root)

	a := filepath.Join(root, "A.java")
	b := filepath.Join(root, "B.java")
	require.NoError(t, os.WriteFile(a, []byte("class A {}"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("class B {}"), 0o644))
	require.NoError(t, os.WriteFile(a, []byte("class A { void m() {} }"), 0o644))

	files := waitBatch(t, batches)
	require.Contains(t, files, a)
	require.Contains(t, files, b)
	require.IsNonDecreasing(t, files)
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	batches := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	mapperFile := filepath.Join(root, "Mapper.xml")
	require.NoError(t, os.WriteFile(mapperFile, []byte("<mapper/>"), 0o644))

	require.Equal(t, []string{mapperFile}, waitBatch(t, batches))
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()
	batches := startWatcher(t, root)

	dir := filepath.Join(root, "src", "main")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	// Give the watcher a moment to register the new directory.
	time.Sleep(200 * time.Millisecond)

	file := filepath.Join(dir, "C.java")
	require.NoError(t, os.WriteFile(file, []byte("class C {}"), 0o644))
	require.Contains(t, waitBatch(t, batches), file)
}

type clearCounter struct {
	n    int
	live *kb.Live
	// versions records the published version seen at each clear.
	versions []uint64
}

func (c *clearCounter) ClearAllCaches() {
	c.n++
	if c.live != nil {
		c.versions = append(c.versions, c.live.Version())
	}
}

func TestReloader(t *testing.T) {
	snap := kb.MustBuild(&kb.Facts{})
	live := kb.NewLive()
	caches := &clearCounter{live: live}
	fail := false
	var after int

	r := &Reloader{
		Load: func(context.Context) (*topcaller.Loaded, error) {
			if fail {
				return nil, errors.New("parse failure")
			}
			return &topcaller.Loaded{Snapshot: snap}, nil
		},
		Live:   live,
		Caches: caches,
		After:  func(context.Context, *topcaller.Loaded) { after++ },
	}

	r.Reload(context.Background(), []string{"A.java"})
	require.True(t, live.Ready())
	require.Equal(t, uint64(1), live.Version())
	require.Equal(t, 1, caches.n)
	require.Equal(t, 1, after)

	r.Reload(context.Background(), []string{"B.java"})
	require.Equal(t, uint64(2), live.Version())
	require.Equal(t, []uint64{0, 1}, caches.versions, "caches must be cleared before the snapshot is swapped")

	fail = true
	r.Reload(context.Background(), []string{"A.java"})
	require.Equal(t, uint64(2), live.Version())
	require.Equal(t, 2, caches.n)
	require.Equal(t, 2, after)
}
