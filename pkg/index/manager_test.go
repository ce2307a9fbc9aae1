package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestManager_CachesIndex(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.py": "def a():\n    pass\n"})

	m := NewManager(root, DefaultOptions(), zap.NewNop())
	defer m.Stop()

	first, err := m.Index(context.Background())
	require.NoError(t, err)
	second, err := m.Index(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestManager_InvalidateForcesRebuild(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.py": "def a():\n    pass\n"})

	m := NewManager(root, DefaultOptions(), zap.NewNop())
	defer m.Stop()

	idx, err := m.Index(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, idx.Len())

	writeTree(t, root, map[string]string{"b.py": "def b():\n    pass\n"})
	m.Invalidate()

	idx, err = m.Index(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, idx.Len())
}

func TestManager_ConcurrentSearches(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"svc/user.py":  "class UserService:\n    pass\n",
		"svc/order.py": "class OrderService:\n    pass\n",
	})

	m := NewManager(root, DefaultOptions(), zap.NewNop())
	defer m.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			candidates, err := m.Search(context.Background(), []FrameRef{{Function: "UserService"}}, "")
			assert.NoError(t, err)
			assert.NotEmpty(t, candidates)
		}()
	}
	wg.Wait()
}

func TestManager_WatcherInvalidates(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.py": "def a():\n    pass\n"})

	m := NewManager(root, DefaultOptions(), zap.NewNop())
	defer m.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	idx, err := m.Index(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, idx.Len())

	require.NoError(t, m.Watch(ctx))

	// Give the watcher time to register.
	time.Sleep(50 * time.Millisecond)

	err = os.WriteFile(filepath.Join(root, "b.py"), []byte("def b():\n    pass\n"), 0o644)
	require.NoError(t, err)

	// Invalidation is debounced; poll until the rebuild picks up the new
	// file or the deadline passes.
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		idx, err = m.Index(ctx)
		require.NoError(t, err)
		if idx.Len() == 2 {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("index never invalidated, still %d files", idx.Len())
}

func TestManager_StopIsIdempotent(t *testing.T) {
	m := NewManager(t.TempDir(), DefaultOptions(), nil)
	m.Stop()
	m.Stop()
}

func TestManager_ExcerptThroughManager(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.py": "line one\nline two\nline three\n"})

	m := NewManager(root, DefaultOptions(), zap.NewNop())
	defer m.Stop()

	out, err := m.Excerpt(context.Background(), "a.py", 2, 1)
	require.NoError(t, err)
	assert.Contains(t, out, "line one")
	assert.Contains(t, out, ">    2 | line two")
	assert.Contains(t, out, "line three")
}
