package gitstage

import (
	"fmt"
	"strings"
	"time"
)

// branchTimestampLayout formats the timestamp component of staged branch
// names, e.g. fix/nullpointerexception-20250101-000000.
const branchTimestampLayout = "20060102-150405"

// maxBranchAttempts bounds collision retries. Attempt 1 uses the bare
// name, attempts 2..5 append -2..-5.
const maxBranchAttempts = 5

// BranchName derives the deterministic staging branch name for an error
// type and timestamp: fix/<error-type>-<timestamp>.
func BranchName(errorType string, when time.Time) string {
	slug := sanitizeSlug(errorType)
	if slug == "" {
		slug = "unknown"
	}
	return fmt.Sprintf("fix/%s-%s", slug, when.Format(branchTimestampLayout))
}

// attemptName returns the branch name for the nth collision attempt.
func attemptName(base string, attempt int) string {
	if attempt <= 1 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, attempt)
}

// sanitizeSlug lowercases s and reduces it to the ref-safe set
// [a-z0-9._-]. Runs of other characters collapse to a single dash.
func sanitizeSlug(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-.")
}
