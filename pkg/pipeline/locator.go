package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/pkg/index"
	"github.com/fyrsmithlabs/remedyd/pkg/logsource"
)

const (
	// maxPromptCandidates caps the ranked files shown to the model.
	maxPromptCandidates = 10

	// maxExcerpts caps how many candidates get a code excerpt.
	maxExcerpts = 3

	// excerptContext is the lines of context around a frame line.
	excerptContext = 10

	// maxExcerptChars truncates each excerpt in the prompt.
	maxExcerptChars = 500
)

// locationUnresolvedSummary is recorded when the index has no candidates.
const locationUnresolvedSummary = "location unresolved: the codebase index returned no matching files"

// ErrorLocator searches the codebase index for the files behind the error
// and asks the model for a root cause summary grounded in them. An empty
// search result is not a failure; the case continues unresolved.
type ErrorLocator struct {
	searcher  Searcher
	completer Completer
	policy    retryPolicy
	logger    *zap.Logger
}

// NewErrorLocator creates the second pipeline stage.
func NewErrorLocator(searcher Searcher, completer Completer, cfg Config, logger *zap.Logger) *ErrorLocator {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ErrorLocator{searcher: searcher, completer: completer, policy: cfg.policy(), logger: logger}
}

// Name returns the stage name.
func (l *ErrorLocator) Name() string { return StageErrorLocator }

type locatorResponse struct {
	RootCauseSummary string `json:"root_cause_summary"`
}

// Run resolves the analysis to candidate files and a root cause summary.
func (l *ErrorLocator) Run(ctx context.Context, ec *ErrorCase) error {
	if ec.Analysis == nil {
		return fmt.Errorf("case %s has no analysis", ec.ID)
	}
	an := ec.Analysis

	frames := make([]index.FrameRef, 0, len(an.Frames))
	for _, f := range an.Frames {
		if f.File == "" && f.Function == "" {
			continue
		}
		frames = append(frames, index.FrameRef{File: f.File, Function: f.Function})
	}

	cands, err := l.searcher.Search(ctx, frames, an.NormalizedMessage)
	if err != nil {
		return fmt.Errorf("codebase search: %w", err)
	}
	if len(cands) == 0 {
		ec.Location = &Location{Candidates: []Candidate{}, RootCauseSummary: locationUnresolvedSummary}
		l.logger.Warn("no candidate files located",
			zap.String("case_id", ec.ID),
			zap.String("error_type", an.ErrorType))
		return nil
	}
	if len(cands) > maxPromptCandidates {
		cands = cands[:maxPromptCandidates]
	}

	prompt := locatorPrompt(an, cands, l.excerpts(ctx, an, cands))
	var resp locatorResponse
	accept := func(raw string) error {
		resp = locatorResponse{}
		if err := decodeResponse(raw, &resp); err != nil {
			return err
		}
		if strings.TrimSpace(resp.RootCauseSummary) == "" {
			return fmt.Errorf("response has no root_cause_summary")
		}
		return nil
	}
	if _, err := completeWithRetry(ctx, l.completer, prompt, l.policy, accept, l.logger); err != nil {
		return fmt.Errorf("root cause analysis: %w", err)
	}

	summary := strings.TrimSpace(resp.RootCauseSummary)
	if !citesAnyCandidate(summary, cands) {
		summary = fmt.Sprintf("%s Most relevant file: %s.", summary, cands[0].Path)
	}

	ec.Location = &Location{Candidates: toCandidates(cands), RootCauseSummary: summary}
	l.logger.Info("error located",
		zap.String("case_id", ec.ID),
		zap.Int("candidates", len(cands)),
		zap.String("top", cands[0].Path))
	return nil
}

// excerpts pulls code context for the top candidates. A candidate whose
// path matches a stack frame is excerpted around the frame line, the rest
// from the top of the file. Read failures just drop the excerpt.
func (l *ErrorLocator) excerpts(ctx context.Context, an *Analysis, cands []index.Candidate) []excerptBlock {
	var blocks []excerptBlock
	for _, c := range cands {
		if len(blocks) >= maxExcerpts {
			break
		}
		line := frameLineFor(an.Frames, c.Path)
		text, err := l.searcher.Excerpt(ctx, c.Path, max(line, 1), excerptContext)
		if err != nil {
			l.logger.Debug("excerpt unavailable", zap.String("path", c.Path), zap.Error(err))
			continue
		}
		if len(text) > maxExcerptChars {
			text = text[:maxExcerptChars] + "..."
		}
		blocks = append(blocks, excerptBlock{Path: c.Path, Line: line, Text: text})
	}
	return blocks
}

// frameLineFor finds the line number of the first frame that refers to the
// candidate path, matching on the file's base name. 0 when no frame does.
func frameLineFor(frames []logsource.Frame, rel string) int {
	want := strings.ToLower(baseName(rel))
	for _, f := range frames {
		if f.Line > 0 && strings.ToLower(baseName(f.File)) == want {
			return f.Line
		}
	}
	return 0
}

// citesAnyCandidate reports whether the summary mentions any candidate by
// path or base name.
func citesAnyCandidate(summary string, cands []index.Candidate) bool {
	for _, c := range cands {
		if strings.Contains(summary, c.Path) || strings.Contains(summary, baseName(c.Path)) {
			return true
		}
	}
	return false
}

func toCandidates(cands []index.Candidate) []Candidate {
	out := make([]Candidate, len(cands))
	for i, c := range cands {
		out[i] = Candidate{Path: c.Path, Score: c.Score, MatchedSymbol: c.MatchedSymbol}
	}
	return out
}

func baseName(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}
