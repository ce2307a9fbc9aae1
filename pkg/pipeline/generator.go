package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/pkg/diff"
)

// CodeGenerator produces the complete corrected content for every planned
// file. Each file is read from disk at generation time, so the model works
// against current content, not what the index saw. A per-file failure is
// recorded on that file's change entry and the stage moves on.
type CodeGenerator struct {
	completer Completer
	repoRoot  string
	policy    retryPolicy
	logger    *zap.Logger
}

// NewCodeGenerator creates the fourth pipeline stage.
func NewCodeGenerator(completer Completer, cfg Config, logger *zap.Logger) *CodeGenerator {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CodeGenerator{
		completer: completer,
		repoRoot:  cfg.RepoPath,
		policy:    cfg.policy(),
		logger:    logger,
	}
}

// Name returns the stage name.
func (g *CodeGenerator) Name() string { return StageCodeGenerator }

// Run fills ec.Changes, one entry per planned file. Entries are written
// incrementally, so a cancelled run keeps the files generated so far.
func (g *CodeGenerator) Run(ctx context.Context, ec *ErrorCase) error {
	if ec.Solution == nil {
		return fmt.Errorf("case %s has no solution", ec.ID)
	}
	sol := ec.Solution
	ec.Changes = make(map[string]*FileChange, len(sol.FilesToChange))
	if len(sol.FilesToChange) == 0 {
		return nil
	}

	creation := containsCreationIntent(sol.ArchitectureNotes)
	files := append([]string(nil), sol.FilesToChange...)
	sort.Strings(files)

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("generation interrupted: %w", err)
		}
		fc := &FileChange{}
		ec.Changes[rel] = fc

		abs, ok := g.safePath(rel)
		if !ok {
			fc.Err = "path escapes the repository"
			g.logger.Warn("skipping unsafe path", zap.String("case_id", ec.ID), zap.String("path", rel))
			continue
		}
		data, err := os.ReadFile(abs)
		switch {
		case err == nil:
			fc.OriginalContent = string(data)
		case errors.Is(err, fs.ErrNotExist) && creation:
			// new file, generated from the plan alone
		case errors.Is(err, fs.ErrNotExist):
			fc.Err = "file does not exist and the plan does not call for new files"
			g.logger.Warn("planned file missing", zap.String("case_id", ec.ID), zap.String("path", rel))
			continue
		default:
			fc.Err = fmt.Sprintf("read: %v", err)
			g.logger.Warn("planned file unreadable", zap.String("case_id", ec.ID), zap.String("path", rel), zap.Error(err))
			continue
		}

		prompt := generatorPrompt(ec.Analysis, sol, rel, fc.OriginalContent)
		raw, err := completeWithRetry(ctx, g.completer, prompt, g.policy, acceptNonEmptyCode, g.logger)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("generation interrupted: %w", ctx.Err())
			}
			fc.Err = err.Error()
			g.logger.Warn("file fix not generated", zap.String("case_id", ec.ID), zap.String("path", rel), zap.Error(err))
			continue
		}

		fixed := stripFences(raw)
		if !strings.HasSuffix(fixed, "\n") {
			fixed += "\n"
		}
		fc.FixedContent = fixed
		fc.Diff = diff.Unified(rel, fc.OriginalContent, fixed)
		g.logger.Info("file fix generated",
			zap.String("case_id", ec.ID),
			zap.String("path", rel),
			zap.Int("bytes", len(fixed)))
	}
	return nil
}

// safePath joins rel under the repository root, rejecting absolute and
// escaping paths.
func (g *CodeGenerator) safePath(rel string) (string, bool) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.Join(g.repoRoot, clean), true
}

// acceptNonEmptyCode rejects completions that are empty once fences are
// stripped, so the retry covers them.
func acceptNonEmptyCode(raw string) error {
	if strings.TrimSpace(stripFences(raw)) == "" {
		return fmt.Errorf("empty completion")
	}
	return nil
}
