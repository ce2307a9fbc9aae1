package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/remedyd/pkg/index"
)

func TestExtensionCounts(t *testing.T) {
	counts := extensionCounts([]string{"app.py", "db/pool.py", "util.go", "Makefile"})
	require.Len(t, counts, 3)

	assert.Equal(t, extCount{Ext: ".py", Count: 2}, counts[0])
	assert.Equal(t, extCount{Ext: "(none)", Count: 1}, counts[1])
	assert.Equal(t, extCount{Ext: ".go", Count: 1}, counts[2])
}

func TestExtensionCounts_Empty(t *testing.T) {
	assert.Empty(t, extensionCounts(nil))
}

func TestPrintIndexReport(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.py"), []byte("def handle():\n    pass\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "util.go"), []byte("package util\n\nfunc Parse() {}\n"), 0o644))

	idx, err := index.Build(context.Background(), dir, index.DefaultOptions())
	require.NoError(t, err)

	var buf bytes.Buffer
	printIndexReport(&buf, idx, 42*time.Millisecond)
	out := buf.String()

	assert.Contains(t, out, "Indexed "+idx.Root())
	assert.Contains(t, out, "files:    2")
	assert.Contains(t, out, "duration: 42ms")
	assert.Contains(t, out, ".py")
	assert.Contains(t, out, ".go")
}
