package pipeline

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/remedyd/pkg/gitstage"
	"github.com/fyrsmithlabs/remedyd/pkg/index"
	"github.com/fyrsmithlabs/remedyd/pkg/knowledge"
)

// completionStep is one canned Complete outcome.
type completionStep struct {
	out string
	err error
}

// scriptedCompleter replays canned completions in call order and records
// every prompt. Calls past the script repeat the last step.
type scriptedCompleter struct {
	steps   []completionStep
	prompts []string
}

func completerReturning(outs ...string) *scriptedCompleter {
	c := &scriptedCompleter{}
	for _, out := range outs {
		c.steps = append(c.steps, completionStep{out: out})
	}
	return c
}

func (c *scriptedCompleter) Complete(_ context.Context, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	if len(c.steps) == 0 {
		return "", fmt.Errorf("unexpected completion request")
	}
	i := len(c.prompts) - 1
	if i >= len(c.steps) {
		i = len(c.steps) - 1
	}
	return c.steps[i].out, c.steps[i].err
}

// excerptCall records one Excerpt invocation.
type excerptCall struct {
	rel  string
	line int
}

// stubSearcher serves a fixed candidate list and excerpt map.
type stubSearcher struct {
	cands        []index.Candidate
	searchErr    error
	excerpts     map[string]string
	searches     int
	lastFrames   []index.FrameRef
	lastMessage  string
	excerptCalls []excerptCall
}

func (s *stubSearcher) Search(_ context.Context, frames []index.FrameRef, message string) ([]index.Candidate, error) {
	s.searches++
	s.lastFrames = frames
	s.lastMessage = message
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	return s.cands, nil
}

func (s *stubSearcher) Excerpt(_ context.Context, rel string, line, _ int) (string, error) {
	s.excerptCalls = append(s.excerptCalls, excerptCall{rel: rel, line: line})
	if text, ok := s.excerpts[rel]; ok {
		return text, nil
	}
	return "", fmt.Errorf("no excerpt for %s", rel)
}

// stubStager records staging requests and serves a fixed result.
type stubStager struct {
	result *gitstage.Result
	err    error
	reqs   []gitstage.Request
}

func (s *stubStager) Stage(_ context.Context, req gitstage.Request) (*gitstage.Result, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &gitstage.Result{NoOp: true, CommittedFiles: []string{}}, nil
}

// stubMemory serves canned recalls and records fixes.
type stubMemory struct {
	recalls    []knowledge.SearchResult
	recallErr  error
	recorded   []*knowledge.Fix
	recordErr  error
	lastQuery  string
	lastLimit  int
	recallHits int
}

func (m *stubMemory) Recall(_ context.Context, signature string, limit int) ([]knowledge.SearchResult, error) {
	m.recallHits++
	m.lastQuery = signature
	m.lastLimit = limit
	if m.recallErr != nil {
		return nil, m.recallErr
	}
	return m.recalls, nil
}

func (m *stubMemory) Record(_ context.Context, fix *knowledge.Fix) error {
	if m.recordErr != nil {
		return m.recordErr
	}
	m.recorded = append(m.recorded, fix)
	return nil
}
