// Package pipeline chains the remediation stages that turn one error log
// entry into a committed fix proposal: analyze the log, locate the error in
// the codebase, design a solution, generate corrected files, and stage them
// on a git branch.
//
// The shared ErrorCase is the only artifact that moves between stages. Each
// stage appends its own section and never rewrites an earlier one, so a
// failed or cancelled run still carries everything produced before the
// failure.
package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/remedyd/pkg/gitstage"
	"github.com/fyrsmithlabs/remedyd/pkg/logsource"
)

// Stage names in execution order.
const (
	StageLogAnalyzer       = "LogAnalyzer"
	StageErrorLocator      = "ErrorLocator"
	StageSolutionArchitect = "SolutionArchitect"
	StageCodeGenerator     = "CodeGenerator"
	StageGitManager        = "GitManager"
)

// Status is the lifecycle state of an ErrorCase.
type Status string

const (
	// StatusPending marks a case that has been created but not started.
	StatusPending Status = "pending"

	// StatusInProgress marks a case with at least one stage running.
	StatusInProgress Status = "in_progress"

	// StatusPartialFailure marks a case that failed after completing at
	// least one stage. Everything produced before the failure is kept.
	StatusPartialFailure Status = "partial_failure"

	// StatusComplete marks a case where every stage finished.
	StatusComplete Status = "complete"

	// StatusFailed marks a case whose first stage failed before anything
	// was recorded.
	StatusFailed Status = "failed"
)

// Terminal reports whether the case has reached a final state.
func (s Status) Terminal() bool {
	switch s {
	case StatusComplete, StatusFailed, StatusPartialFailure:
		return true
	}
	return false
}

// StageStatus is the outcome of one stage execution.
type StageStatus string

const (
	StageStarted   StageStatus = "started"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
)

// Analysis is the LogAnalyzer output: a normalized view of the raw log
// entry, extracted without any model call.
type Analysis struct {
	// ErrorType is the error class, such as NullPointerException. When
	// neither the structured payload nor the message names one, it falls
	// back to a severity-derived generic type.
	ErrorType string `json:"error_type"`

	// NormalizedMessage is the first line of the message with whitespace
	// collapsed. It doubles as the error signature for memory recall.
	NormalizedMessage string `json:"normalized_message"`

	// Severity is carried over from the source entry.
	Severity logsource.Severity `json:"severity"`

	// StackTrace is the raw trace text, taken from the structured payload
	// when present, otherwise from the message body.
	StackTrace string `json:"stack_trace,omitempty"`

	// Frames are the stack frames: structured frames from the source
	// first, then frames parsed out of the trace text.
	Frames []logsource.Frame `json:"extracted_frames,omitempty"`
}

// Candidate is one codebase file ranked as a likely error source.
type Candidate struct {
	// Path is relative to the repository root.
	Path string `json:"path"`

	// Score is the index relevance score.
	Score float64 `json:"score"`

	// MatchedSymbol is the symbol that tied this file to a stack frame,
	// when one did.
	MatchedSymbol string `json:"matched_symbol,omitempty"`
}

// Location is the ErrorLocator output.
type Location struct {
	// Candidates are the ranked files from the codebase index. Empty when
	// the index had nothing relevant; the run still continues.
	Candidates []Candidate `json:"candidates"`

	// RootCauseSummary explains where and why the error occurs. When
	// candidates exist it cites at least one of them.
	RootCauseSummary string `json:"root_cause_summary"`
}

// Unresolved reports whether the locator found no candidate files. An
// unresolved location is not a failure: later stages fall back to the
// analysis alone.
func (l *Location) Unresolved() bool {
	return l != nil && len(l.Candidates) == 0
}

// Solution is the SolutionArchitect output: the remediation plan.
type Solution struct {
	// Description is a short explanation of the fix.
	Description string `json:"description"`

	// FilesToChange lists repository-relative paths the fix touches. When
	// location candidates exist, every entry is one of them.
	FilesToChange []string `json:"files_to_change"`

	// FileNotes carries the per-file change description, keyed by path.
	FileNotes map[string]string `json:"file_notes,omitempty"`

	// ArchitectureNotes holds broader remarks. Plans that create files
	// which do not yet exist say so here.
	ArchitectureNotes string `json:"architecture_notes,omitempty"`

	// TestStrategy describes how the fix should be verified.
	TestStrategy string `json:"test_strategy,omitempty"`
}

// FileChange is the CodeGenerator output for one file.
type FileChange struct {
	// OriginalContent is the file as read from disk at generation time.
	// Empty for newly created files.
	OriginalContent string `json:"original_content"`

	// FixedContent is the complete corrected file.
	FixedContent string `json:"fixed_content"`

	// Diff is a unified diff from original to fixed.
	Diff string `json:"diff,omitempty"`

	// Err marks a per-file generation failure. The run continues past it;
	// files with a marker are excluded from the commit.
	Err string `json:"error,omitempty"`
}

// StageResult records one stage execution on the case.
type StageResult struct {
	Stage       string      `json:"stage"`
	Status      StageStatus `json:"status"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt time.Time   `json:"completed_at"`
	Err         string      `json:"error,omitempty"`
}

// ErrorCase is the shared state of one remediation run. The orchestrator
// owns it; stages only append their own sections.
type ErrorCase struct {
	// ID uniquely identifies the run.
	ID string `json:"id"`

	// SourceLog is the log entry that triggered the run. Immutable.
	SourceLog logsource.LogEntry `json:"source_log"`

	// Status is the case lifecycle state.
	Status Status `json:"status"`

	// Analysis is written by LogAnalyzer.
	Analysis *Analysis `json:"analysis,omitempty"`

	// Location is written by ErrorLocator.
	Location *Location `json:"location,omitempty"`

	// Solution is written by SolutionArchitect.
	Solution *Solution `json:"solution,omitempty"`

	// Changes is written by CodeGenerator, one entry per planned file.
	Changes map[string]*FileChange `json:"changes,omitempty"`

	// GitResult is written by GitManager.
	GitResult *gitstage.Result `json:"git_result,omitempty"`

	// FailureStage names the stage that ended the run early.
	FailureStage string `json:"failure_stage,omitempty"`

	// FailureReason is the failing stage's error text.
	FailureReason string `json:"failure_reason,omitempty"`

	// StageResults records every stage execution in order.
	StageResults []StageResult `json:"stage_results"`

	// CreatedAt is when the case was opened.
	CreatedAt time.Time `json:"created_at"`
}

// NewCase opens a pending case for one log entry.
func NewCase(entry logsource.LogEntry) *ErrorCase {
	return &ErrorCase{
		ID:        uuid.New().String(),
		SourceLog: entry,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
}
