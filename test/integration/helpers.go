// Package integration exercises the remediation stack across package
// boundaries: a real repository index, real git staging, a real knowledge
// store, and a scripted completion model. Everything runs offline.
package integration

import (
	"context"
	"hash/fnv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/pkg/knowledge"
)

// tokenEmbedder maps text onto deterministic bag-of-tokens vectors so
// semantic search works without a model. Identical texts embed
// identically; texts sharing tokens land near each other.
type tokenEmbedder struct {
	dim int
}

func newTokenEmbedder() *tokenEmbedder {
	return &tokenEmbedder{dim: 64}
}

func (e *tokenEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[int(h.Sum32())%e.dim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

func (e *tokenEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *tokenEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

// newTestMemory builds fix memory over an embedded chromem store.
func newTestMemory(t *testing.T) *knowledge.Memory {
	t.Helper()

	store, err := knowledge.NewChromemStore(knowledge.ChromemConfig{
		Path:       t.TempDir(),
		Collection: "fixes_integration",
	}, newTokenEmbedder(), zap.NewNop())
	require.NoError(t, err, "Should create test knowledge store")

	mem, err := knowledge.NewMemory(store, knowledge.MemoryConfig{})
	require.NoError(t, err, "Should create fix memory")
	t.Cleanup(func() { _ = mem.Close() })
	return mem
}

// initTestRepo creates a git repository with the given files committed on
// the default branch.
func initTestRepo(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	for rel, content := range files {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		_, err = wt.Add(rel)
		require.NoError(t, err)
	}

	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@localhost", When: time.Now()},
	})
	require.NoError(t, err)
	return dir
}

// branchNames lists the repository's local branch names.
func branchNames(t *testing.T, repoPath string) []string {
	t.Helper()

	repo, err := git.PlainOpen(repoPath)
	require.NoError(t, err)
	iter, err := repo.Branches()
	require.NoError(t, err)

	var names []string
	require.NoError(t, iter.ForEach(func(ref *plumbing.Reference) error {
		names = append(names, ref.Name().Short())
		return nil
	}))
	return names
}

// readBranchFile returns a file's content at the tip of the given branch.
func readBranchFile(t *testing.T, repoPath, branch, rel string) string {
	t.Helper()

	repo, err := git.PlainOpen(repoPath)
	require.NoError(t, err)
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	require.NoError(t, err)
	commit, err := repo.CommitObject(ref.Hash())
	require.NoError(t, err)
	file, err := commit.File(rel)
	require.NoError(t, err)
	content, err := file.Contents()
	require.NoError(t, err)
	return content
}

// scriptedCompleter replays canned completions in call order, recording
// every prompt. Calls past the script repeat the last completion.
type scriptedCompleter struct {
	mu      sync.Mutex
	outs    []string
	prompts []string
}

func newScriptedCompleter(outs ...string) *scriptedCompleter {
	return &scriptedCompleter{outs: outs}
}

func (c *scriptedCompleter) Complete(_ context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	i := len(c.prompts) - 1
	if i >= len(c.outs) {
		i = len(c.outs) - 1
	}
	return c.outs[i], nil
}

func (c *scriptedCompleter) promptAt(t *testing.T, i int) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.Greater(t, len(c.prompts), i, "completion %d was never requested", i)
	return c.prompts[i]
}
