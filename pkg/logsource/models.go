// Package logsource provides log retrieval for the remediation pipeline.
//
// A Source supplies a finite sequence of LogEntry records for a time window
// and severity filter. Entries are immutable once produced; the pipeline never
// mutates them. Two sources ship with the package: MockSource for demos and
// tests, and ElasticSource for Elasticsearch-compatible backends.
package logsource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Severity classifies a log entry.
type Severity string

const (
	SeverityDebug Severity = "DEBUG"
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
	SeverityFatal Severity = "FATAL"
)

// severityRanks orders severities from least to most severe.
var severityRanks = map[Severity]int{
	SeverityDebug: 0,
	SeverityInfo:  1,
	SeverityWarn:  2,
	SeverityError: 3,
	SeverityFatal: 4,
}

// Rank returns the ordering rank of the severity. Unknown severities rank
// below DEBUG so they never pass a minimum-severity filter by accident.
func (s Severity) Rank() int {
	if r, ok := severityRanks[s]; ok {
		return r
	}
	return -1
}

// ParseSeverity normalizes a raw severity string to a known Severity.
// Common aliases (WARNING, CRITICAL, ERR) map to their canonical values.
func ParseSeverity(raw string) (Severity, bool) {
	switch Severity(strings.ToUpper(strings.TrimSpace(raw))) {
	case SeverityDebug:
		return SeverityDebug, true
	case SeverityInfo:
		return SeverityInfo, true
	case SeverityWarn, "WARNING":
		return SeverityWarn, true
	case SeverityError, "ERR":
		return SeverityError, true
	case SeverityFatal, "CRITICAL":
		return SeverityFatal, true
	}
	return "", false
}

// Frame is one stack-trace frame. Fields are best-effort; a frame may carry
// only a file, only a function, or both.
type Frame struct {
	// File is the source file reference as it appeared in the trace.
	File string `json:"file,omitempty"`

	// Function is the function, method, or class member named by the frame.
	Function string `json:"function,omitempty"`

	// Line is the 1-based line number, 0 when unknown.
	Line int `json:"line,omitempty"`
}

// LogEntry is one error log record. Entries are immutable: sources build
// them, the pipeline only reads them.
type LogEntry struct {
	// Timestamp is when the log was emitted.
	Timestamp time.Time `json:"timestamp"`

	// Service is the emitting service name.
	Service string `json:"service"`

	// Severity is the normalized log level.
	Severity Severity `json:"severity"`

	// Message is the raw log message.
	Message string `json:"message"`

	// Stack holds structured stack frames when the source provides them.
	// Most sources leave this empty and carry the raw trace in Payload.
	Stack []Frame `json:"stack,omitempty"`

	// Payload holds the remaining structured fields of the source record,
	// such as stack_trace, error_type, or host. Opaque to the pipeline.
	Payload map[string]string `json:"payload,omitempty"`
}

// TimeRange bounds a fetch window. A zero From means unbounded past; a zero
// To means now.
type TimeRange struct {
	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`
}

// LastWindow returns a TimeRange covering the trailing duration d ending now.
func LastWindow(d time.Duration) TimeRange {
	now := time.Now()
	return TimeRange{From: now.Add(-d), To: now}
}

// Contains reports whether t falls inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// Filter narrows a fetch to matching entries.
type Filter struct {
	// Severities limits results to the listed severities. Empty means
	// ERROR and FATAL, the pipeline's default interest.
	Severities []Severity `json:"severities,omitempty"`

	// Services limits results to the listed service names. Empty means all.
	Services []string `json:"services,omitempty"`

	// MaxEntries caps the number of returned entries. Zero means the
	// source default.
	MaxEntries int `json:"max_entries,omitempty"`
}

// DefaultSeverities returns the effective severity set for the filter.
func (f Filter) DefaultSeverities() []Severity {
	if len(f.Severities) > 0 {
		return f.Severities
	}
	return []Severity{SeverityError, SeverityFatal}
}

// Matches reports whether the entry passes the filter's severity and
// service constraints.
func (f Filter) Matches(entry LogEntry) bool {
	matched := false
	for _, s := range f.DefaultSeverities() {
		if entry.Severity == s {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	if len(f.Services) == 0 {
		return true
	}
	for _, svc := range f.Services {
		if entry.Service == svc {
			return true
		}
	}
	return false
}

// Source supplies log entries for a time window and filter. An empty result
// is a valid return, not an error.
type Source interface {
	// Fetch returns entries within the range matching the filter, newest
	// first. Implementations must honor ctx cancellation.
	Fetch(ctx context.Context, window TimeRange, filter Filter) ([]LogEntry, error)
}

// Common source errors.
var (
	ErrInvalidConfig = errors.New("invalid log source config")
	ErrFetchFailed   = errors.New("log fetch failed")
)

// FilterBySeverity returns the entries whose severity ranks at or above min.
// It is applied to a fetched sequence before pipeline entry; it is not a
// pipeline stage.
func FilterBySeverity(entries []LogEntry, min Severity) []LogEntry {
	if min.Rank() < 0 {
		return entries
	}
	out := make([]LogEntry, 0, len(entries))
	for _, e := range entries {
		if e.Severity.Rank() >= min.Rank() {
			out = append(out, e)
		}
	}
	return out
}

// NewSource creates a Source from a provider name.
//
// Supported providers:
//   - "mock" (default): canned entries, no external dependencies
//   - "elastic": Elasticsearch-compatible _search over HTTP
func NewSource(provider string, elastic ElasticConfig) (Source, error) {
	switch provider {
	case "mock", "":
		return NewMockSource(), nil
	case "elastic":
		return NewElasticSource(elastic)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q (supported: mock, elastic)", ErrInvalidConfig, provider)
	}
}
