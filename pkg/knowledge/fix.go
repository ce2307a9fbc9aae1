package knowledge

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Validation errors for fix records.
var (
	ErrInvalidFixID     = errors.New("invalid fix ID")
	ErrEmptySignature   = errors.New("error signature is required")
	ErrEmptySolution    = errors.New("solution is required")
	ErrSignatureTooLong = errors.New("error signature exceeds maximum length")
	ErrSolutionTooLong  = errors.New("solution exceeds maximum length")
)

// Length caps for stored fixes. Oversized records bloat the vector store
// without improving retrieval.
const (
	MaxSignatureLength = 2048
	MaxSolutionLength  = 32768
)

// maxPatterns caps how many lexical patterns a fix carries.
const maxPatterns = 16

var (
	errorClassRe = regexp.MustCompile(`\b[A-Z][A-Za-z0-9_]*(?:Error|Exception)\b`)
	dottedPathRe = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)+\b`)
	quotedRe     = regexp.MustCompile("['`\"]([A-Za-z_][A-Za-z0-9_.]{2,})['`\"]")
)

// Fix is a completed remediation recorded for future recall.
type Fix struct {
	// ID is a UUID assigned at creation.
	ID string `json:"id"`

	// ProjectPath is the repository the fix was applied to.
	ProjectPath string `json:"project_path,omitempty"`

	// ErrorSignature is the whitespace-normalized first line of the
	// error the fix resolved. It is the text that gets embedded.
	ErrorSignature string `json:"error_signature"`

	// ErrorType classifies the error (NullPointerException, KeyError, ...).
	ErrorType string `json:"error_type,omitempty"`

	// Solution describes the change that resolved the error.
	Solution string `json:"solution"`

	// Patterns are lexical tokens extracted from the signature. They let
	// operators see why a recalled fix matched.
	Patterns []string `json:"patterns,omitempty"`

	// Metadata carries optional context such as the branch name or the
	// files the fix touched.
	Metadata map[string]string `json:"metadata,omitempty"`

	// CreatedAt is when the fix was recorded, in UTC.
	CreatedAt time.Time `json:"created_at"`
}

// NewFix creates a validated fix record with a fresh ID and patterns
// extracted from the signature. The signature is whitespace-normalized so
// multi-line error text collapses to a single line.
func NewFix(projectPath, errorSignature, errorType, solution string) (*Fix, error) {
	f := &Fix{
		ID:             uuid.New().String(),
		ProjectPath:    strings.TrimSpace(projectPath),
		ErrorSignature: strings.Join(strings.Fields(errorSignature), " "),
		ErrorType:      strings.TrimSpace(errorType),
		Solution:       strings.TrimSpace(solution),
		CreatedAt:      time.Now().UTC(),
	}
	f.Patterns = ExtractPatterns(f.ErrorSignature)
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Validate checks that the fix is well formed.
func (f *Fix) Validate() error {
	if _, err := uuid.Parse(f.ID); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidFixID, f.ID)
	}
	if f.ErrorSignature == "" {
		return ErrEmptySignature
	}
	if len(f.ErrorSignature) > MaxSignatureLength {
		return fmt.Errorf("%w: %d > %d", ErrSignatureTooLong, len(f.ErrorSignature), MaxSignatureLength)
	}
	if f.Solution == "" {
		return ErrEmptySolution
	}
	if len(f.Solution) > MaxSolutionLength {
		return fmt.Errorf("%w: %d > %d", ErrSolutionTooLong, len(f.Solution), MaxSolutionLength)
	}
	return nil
}

// ExtractPatterns pulls exception class names, dotted module paths, and
// quoted identifiers out of an error signature. Order of first appearance
// is preserved and the result is capped at maxPatterns entries.
func ExtractPatterns(signature string) []string {
	seen := make(map[string]struct{})
	var patterns []string
	add := func(p string) {
		if len(patterns) >= maxPatterns {
			return
		}
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		patterns = append(patterns, p)
	}

	for _, m := range errorClassRe.FindAllString(signature, -1) {
		add(m)
	}
	for _, m := range dottedPathRe.FindAllString(signature, -1) {
		add(m)
	}
	for _, m := range quotedRe.FindAllStringSubmatch(signature, -1) {
		add(m[1])
	}
	return patterns
}

// encodeFix serializes a fix for storage in a backend payload.
func encodeFix(f *Fix) (string, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return "", fmt.Errorf("encoding fix %s: %w", f.ID, err)
	}
	return string(b), nil
}

// decodeFix restores a fix from its payload form.
func decodeFix(raw string) (*Fix, error) {
	var f Fix
	if err := json.Unmarshal([]byte(raw), &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if f.ErrorSignature == "" {
		return nil, fmt.Errorf("%w: missing error signature", ErrCorruptRecord)
	}
	return &f, nil
}
