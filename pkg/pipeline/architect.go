package pipeline

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/pkg/knowledge"
)

// newFileNote is appended to plans that create files without saying so.
const newFileNote = "This plan creates new files that do not yet exist in the repository."

// SolutionArchitect turns the analysis and location into a remediation
// plan. When location candidates exist, the plan may only touch them;
// paths outside the candidate set are dropped. When memory is configured,
// similar past fixes are folded into the prompt.
type SolutionArchitect struct {
	completer   Completer
	recaller    Recaller
	policy      retryPolicy
	recallLimit int
	logger      *zap.Logger
}

// NewSolutionArchitect creates the third pipeline stage. recaller may be
// nil; the stage then plans without precedents.
func NewSolutionArchitect(completer Completer, recaller Recaller, cfg Config, logger *zap.Logger) *SolutionArchitect {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SolutionArchitect{
		completer:   completer,
		recaller:    recaller,
		policy:      cfg.policy(),
		recallLimit: cfg.RecallLimit,
		logger:      logger,
	}
}

// Name returns the stage name.
func (s *SolutionArchitect) Name() string { return StageSolutionArchitect }

type architectResponse struct {
	Description       string            `json:"description"`
	FilesToChange     []string          `json:"files_to_change"`
	FileNotes         map[string]string `json:"file_notes"`
	ArchitectureNotes string            `json:"architecture_notes"`
	TestStrategy      string            `json:"test_strategy"`
}

// Run produces the solution plan.
func (s *SolutionArchitect) Run(ctx context.Context, ec *ErrorCase) error {
	if ec.Analysis == nil || ec.Location == nil {
		return fmt.Errorf("case %s is missing analysis or location", ec.ID)
	}

	prompt := architectPrompt(ec.Analysis, ec.Location, s.precedents(ctx, ec))
	var resp architectResponse
	accept := func(raw string) error {
		resp = architectResponse{}
		return decodeResponse(raw, &resp)
	}
	if _, err := completeWithRetry(ctx, s.completer, prompt, s.policy, accept, s.logger); err != nil {
		return fmt.Errorf("solution planning: %w", err)
	}

	files, notes := s.resolveFiles(ec, resp)
	arch := strings.TrimSpace(resp.ArchitectureNotes)

	if ec.Location.Unresolved() && len(files) > 0 && !containsCreationIntent(arch) {
		// nothing was located, so every planned file is a new one
		if arch != "" {
			arch += " "
		}
		arch += newFileNote
	}
	if len(files) == 0 && !containsCreationIntent(arch) {
		return fmt.Errorf("%w", ErrNoActionablePlan)
	}

	ec.Solution = &Solution{
		Description:       strings.TrimSpace(resp.Description),
		FilesToChange:     files,
		FileNotes:         notes,
		ArchitectureNotes: arch,
		TestStrategy:      strings.TrimSpace(resp.TestStrategy),
	}
	s.logger.Info("solution planned",
		zap.String("case_id", ec.ID),
		zap.Int("files", len(files)))
	return nil
}

// precedents recalls similar past fixes. Recall failures only log; the
// stage plans without precedents.
func (s *SolutionArchitect) precedents(ctx context.Context, ec *ErrorCase) []knowledge.SearchResult {
	if s.recaller == nil {
		return nil
	}
	results, err := s.recaller.Recall(ctx, ec.Analysis.NormalizedMessage, s.recallLimit)
	if err != nil {
		s.logger.Warn("fix recall unavailable", zap.String("case_id", ec.ID), zap.Error(err))
		return nil
	}
	return results
}

// resolveFiles normalizes the proposed paths and enforces the candidate
// set. When candidates exist, a proposal is kept only if it names a
// candidate path exactly or by unique base name; everything else is
// dropped. With no candidates, any repository-relative path passes.
func (s *SolutionArchitect) resolveFiles(ec *ErrorCase, resp architectResponse) ([]string, map[string]string) {
	byBase := make(map[string][]string)
	inSet := make(map[string]bool, len(ec.Location.Candidates))
	for _, c := range ec.Location.Candidates {
		inSet[c.Path] = true
		base := strings.ToLower(baseName(c.Path))
		byBase[base] = append(byBase[base], c.Path)
	}

	var files []string
	notes := make(map[string]string)
	seen := make(map[string]bool)
	for _, raw := range resp.FilesToChange {
		rel := cleanRelPath(raw)
		if rel == "" {
			s.logger.Warn("dropping invalid path from plan", zap.String("path", raw))
			continue
		}
		if len(inSet) > 0 && !inSet[rel] {
			matches := byBase[strings.ToLower(baseName(rel))]
			if len(matches) != 1 {
				s.logger.Warn("dropping path outside located candidates",
					zap.String("case_id", ec.ID),
					zap.String("path", rel))
				continue
			}
			s.logger.Debug("resolved planned path to candidate",
				zap.String("proposed", rel),
				zap.String("resolved", matches[0]))
			rel = matches[0]
		}
		if seen[rel] {
			continue
		}
		seen[rel] = true
		files = append(files, rel)
		// the note may be keyed by the proposed spelling or the resolved path
		note := resp.FileNotes[raw]
		if note == "" {
			note = resp.FileNotes[rel]
		}
		if note != "" {
			notes[rel] = note
		}
	}
	if len(notes) == 0 {
		notes = nil
	}
	return files, notes
}

// cleanRelPath normalizes a proposed path to a clean repository-relative
// form. Empty, absolute, and escaping paths return "".
func cleanRelPath(raw string) string {
	p := path.Clean(strings.TrimSpace(strings.ReplaceAll(raw, `\`, "/")))
	if p == "" || p == "." || strings.HasPrefix(p, "/") || p == ".." || strings.HasPrefix(p, "../") {
		return ""
	}
	return p
}

// containsCreationIntent reports whether the notes announce new-file
// creation.
func containsCreationIntent(notes string) bool {
	lower := strings.ToLower(notes)
	return strings.Contains(lower, "creat") || strings.Contains(lower, "new file")
}
