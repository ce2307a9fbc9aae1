package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/remedyd/pkg/index"
	"github.com/fyrsmithlabs/remedyd/pkg/logsource"
)

func locatorCase() *ErrorCase {
	ec := NewCase(logsource.LogEntry{Message: "KeyError: 'user_id'", Severity: logsource.SeverityError})
	ec.Analysis = &Analysis{
		ErrorType:         "KeyError",
		NormalizedMessage: "KeyError: 'user_id'",
		Severity:          logsource.SeverityError,
		StackTrace:        pythonTrace,
		Frames:            []logsource.Frame{{File: "app/views.py", Function: "get_user", Line: 31}},
	}
	return ec
}

func TestErrorLocator_NoCandidatesIsSoft(t *testing.T) {
	searcher := &stubSearcher{}
	completer := completerReturning()
	loc := NewErrorLocator(searcher, completer, Config{RepoPath: "/repo"}, nil)

	ec := locatorCase()
	require.NoError(t, loc.Run(context.Background(), ec))

	require.NotNil(t, ec.Location)
	assert.True(t, ec.Location.Unresolved())
	assert.Equal(t, locationUnresolvedSummary, ec.Location.RootCauseSummary)
	assert.Empty(t, completer.prompts, "no completion should be requested without candidates")
}

func TestErrorLocator_HappyPath(t *testing.T) {
	searcher := &stubSearcher{
		cands: []index.Candidate{
			{Path: "app/views.py", Score: 12.5, MatchedSymbol: "get_user"},
			{Path: "app/models.py", Score: 3.0},
		},
		excerpts: map[string]string{"app/views.py": "def get_user(user_id):\n    return users[user_id]"},
	}
	completer := completerReturning(`{"root_cause_summary": "get_user in app/views.py indexes users without checking the key."}`)
	loc := NewErrorLocator(searcher, completer, Config{RepoPath: "/repo"}, nil)

	ec := locatorCase()
	require.NoError(t, loc.Run(context.Background(), ec))

	require.NotNil(t, ec.Location)
	assert.False(t, ec.Location.Unresolved())
	require.Len(t, ec.Location.Candidates, 2)
	assert.Equal(t, Candidate{Path: "app/views.py", Score: 12.5, MatchedSymbol: "get_user"}, ec.Location.Candidates[0])
	assert.Equal(t, "get_user in app/views.py indexes users without checking the key.", ec.Location.RootCauseSummary)

	// the search was driven by the analysis
	require.Len(t, searcher.lastFrames, 1)
	assert.Equal(t, index.FrameRef{File: "app/views.py", Function: "get_user"}, searcher.lastFrames[0])
	assert.Equal(t, "KeyError: 'user_id'", searcher.lastMessage)

	// the prompt carries candidates, the frame-anchored excerpt, and the trace
	require.Len(t, completer.prompts, 1)
	prompt := completer.prompts[0]
	assert.Contains(t, prompt, "app/views.py")
	assert.Contains(t, prompt, "return users[user_id]")
	assert.Contains(t, prompt, "Traceback")

	// the excerpt for the matching frame used the frame line
	require.NotEmpty(t, searcher.excerptCalls)
	assert.Equal(t, excerptCall{rel: "app/views.py", line: 31}, searcher.excerptCalls[0])
}

func TestErrorLocator_CitationAppended(t *testing.T) {
	searcher := &stubSearcher{cands: []index.Candidate{{Path: "app/views.py", Score: 5}}}
	completer := completerReturning(`{"root_cause_summary": "A dictionary key is read without a guard."}`)
	loc := NewErrorLocator(searcher, completer, Config{RepoPath: "/repo"}, nil)

	ec := locatorCase()
	require.NoError(t, loc.Run(context.Background(), ec))
	assert.Equal(t,
		"A dictionary key is read without a guard. Most relevant file: app/views.py.",
		ec.Location.RootCauseSummary)
}

func TestErrorLocator_RetriesOnBadJSON(t *testing.T) {
	searcher := &stubSearcher{cands: []index.Candidate{{Path: "app/views.py", Score: 5}}}
	completer := completerReturning(
		"I think the problem is somewhere in the views.",
		`{"root_cause_summary": "app/views.py reads a missing key."}`,
	)
	loc := NewErrorLocator(searcher, completer, Config{RepoPath: "/repo", MaxCompletionRetries: 1}, nil)

	ec := locatorCase()
	require.NoError(t, loc.Run(context.Background(), ec))
	assert.Len(t, completer.prompts, 2)
	assert.Equal(t, "app/views.py reads a missing key.", ec.Location.RootCauseSummary)
}

func TestErrorLocator_RetryExhaustionFailsStage(t *testing.T) {
	searcher := &stubSearcher{cands: []index.Candidate{{Path: "app/views.py", Score: 5}}}
	completer := completerReturning("not json", "still not json")
	loc := NewErrorLocator(searcher, completer, Config{RepoPath: "/repo", MaxCompletionRetries: 1}, nil)

	ec := locatorCase()
	err := loc.Run(context.Background(), ec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Nil(t, ec.Location)
}

func TestErrorLocator_EmptySummaryRetries(t *testing.T) {
	searcher := &stubSearcher{cands: []index.Candidate{{Path: "app/views.py", Score: 5}}}
	completer := completerReturning(
		`{"root_cause_summary": ""}`,
		`{"root_cause_summary": "app/views.py is at fault."}`,
	)
	loc := NewErrorLocator(searcher, completer, Config{RepoPath: "/repo", MaxCompletionRetries: 1}, nil)

	ec := locatorCase()
	require.NoError(t, loc.Run(context.Background(), ec))
	assert.Equal(t, "app/views.py is at fault.", ec.Location.RootCauseSummary)
}

func TestErrorLocator_SearchErrorFailsStage(t *testing.T) {
	searcher := &stubSearcher{searchErr: errors.New("index rebuild failed")}
	loc := NewErrorLocator(searcher, completerReturning(), Config{RepoPath: "/repo"}, nil)

	ec := locatorCase()
	err := loc.Run(context.Background(), ec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "codebase search")
}

func TestErrorLocator_MissingAnalysis(t *testing.T) {
	loc := NewErrorLocator(&stubSearcher{}, completerReturning(), Config{RepoPath: "/repo"}, nil)
	ec := NewCase(logsource.LogEntry{})
	require.Error(t, loc.Run(context.Background(), ec))
}
