package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/pkg/gitstage"
)

// GitManager commits the generated changes to a fix branch. Files whose
// generation failed are excluded; a run with nothing committable becomes a
// recorded no-op, not a failure.
type GitManager struct {
	stager Stager
	logger *zap.Logger
}

// NewGitManager creates the final pipeline stage.
func NewGitManager(stager Stager, logger *zap.Logger) *GitManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GitManager{stager: stager, logger: logger}
}

// Name returns the stage name.
func (m *GitManager) Name() string { return StageGitManager }

// Run stages every successfully generated file and records the result.
func (m *GitManager) Run(ctx context.Context, ec *ErrorCase) error {
	if ec.Analysis == nil || ec.Solution == nil {
		return fmt.Errorf("case %s is missing analysis or solution", ec.ID)
	}

	changes := make(map[string]gitstage.Change, len(ec.Changes))
	for rel, fc := range ec.Changes {
		if fc == nil || fc.Err != "" || fc.FixedContent == "" {
			continue
		}
		changes[rel] = gitstage.Change{Original: fc.OriginalContent, Fixed: fc.FixedContent}
	}

	res, err := m.stager.Stage(ctx, gitstage.Request{
		ErrorType:   ec.Analysis.ErrorType,
		Description: ec.Solution.Description,
		Changes:     changes,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStagingFailed, err)
	}
	ec.GitResult = res

	if res.NoOp {
		m.logger.Info("nothing to commit", zap.String("case_id", ec.ID))
		return nil
	}
	m.logger.Info("fix staged",
		zap.String("case_id", ec.ID),
		zap.String("branch", res.BranchName),
		zap.Int("files", len(res.CommittedFiles)))
	return nil
}
