package secrets

import (
	"regexp"
	"sync"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

// Finding reports one detected credential. The secret value itself is
// deliberately not carried; findings end up in case records and logs.
type Finding struct {
	// RuleID is the Gitleaks rule that fired (e.g. "openai-api-key").
	RuleID string

	// Description is the rule's human-readable description.
	Description string

	// Line is the 1-based line where the match starts.
	Line int
}

// Scanner detects secrets in generated file content before staging. The
// default Gitleaks config is compiled once at construction and reused
// across files.
type Scanner struct {
	mu       sync.Mutex
	detector *detect.Detector
}

// NewScanner builds a scanner with the default Gitleaks rule set and an
// optional allowlist (nil to skip).
func NewScanner(allowlist *Allowlist) (*Scanner, error) {
	detector, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, err
	}
	if allowlist != nil {
		applyAllowlist(&detector.Config, allowlist)
	}
	return &Scanner{detector: detector}, nil
}

// Scan checks content and returns a finding per detected secret. A nil
// return means the content is safe to stage.
func (s *Scanner) Scan(content string) []Finding {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw := s.detector.DetectString(content)
	if len(raw) == 0 {
		return nil
	}
	findings := make([]Finding, 0, len(raw))
	for _, f := range raw {
		findings = append(findings, Finding{
			RuleID:      f.RuleID,
			Description: f.Description,
			Line:        f.StartLine,
		})
	}
	return findings
}

// applyAllowlist merges pre-validated allowlist patterns into the
// Gitleaks config.
func applyAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) {
	entry := &gitleaksConfig.Allowlist{
		Description: "remedyd staging allowlist",
	}

	// Patterns were validated at load time; a failure here is a
	// programming error, not user input.
	for _, pattern := range allowlist.Paths {
		re, err := regexp.Compile(pattern)
		if err != nil {
			panic("BUG: pre-validated path pattern failed to compile: " + pattern + ": " + err.Error())
		}
		entry.Paths = append(entry.Paths, (*gitleaksRegexp.Regexp)(re))
	}
	for _, pattern := range allowlist.Regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			panic("BUG: pre-validated content pattern failed to compile: " + pattern + ": " + err.Error())
		}
		entry.Regexes = append(entry.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	entry.StopWords = append(entry.StopWords, allowlist.Regexes...)

	cfg.Allowlists = append(cfg.Allowlists, entry)
}
