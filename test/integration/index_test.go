package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/pkg/index"
)

// TestIndex_WatcherPicksUpNewFiles validates the live index over a real
// filesystem: a file created after the initial build becomes searchable
// once the watcher invalidates the cached snapshot.
func TestIndex_WatcherPicksUpNewFiles(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo := initTestRepo(t, map[string]string{"app/views.py": buggyViews})

	mgr := index.NewManager(repo, index.DefaultOptions(), zap.NewNop())
	idx, err := mgr.Rebuild(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, idx.Len())

	require.NoError(t, mgr.Watch(ctx))
	defer mgr.Stop()

	payments := `def charge(amount):
    raise ConnectionError("gateway unreachable")
`
	require.NoError(t, os.WriteFile(filepath.Join(repo, "app", "payments.py"), []byte(payments), 0o644))

	// The watcher debounces events before invalidating; the next Index
	// call after that rebuilds the snapshot.
	require.Eventually(t, func() bool {
		idx, err := mgr.Index(ctx)
		return err == nil && idx.Len() == 2
	}, 10*time.Second, 100*time.Millisecond, "new file never became visible")

	cands, err := mgr.Search(ctx, []index.FrameRef{
		{File: "app/payments.py", Function: "charge"},
	}, "ConnectionError: gateway unreachable")
	require.NoError(t, err)
	require.NotEmpty(t, cands)
	assert.Equal(t, "app/payments.py", cands[0].Path)
}
