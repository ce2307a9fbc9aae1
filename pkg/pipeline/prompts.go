package pipeline

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/remedyd/pkg/index"
	"github.com/fyrsmithlabs/remedyd/pkg/knowledge"
)

// excerptBlock is one code excerpt included in the locator prompt.
type excerptBlock struct {
	Path string
	Line int
	Text string
}

func locatorPrompt(an *Analysis, cands []index.Candidate, excerpts []excerptBlock) string {
	var b strings.Builder
	b.WriteString("Analyze the following error and locate its source in the codebase.\n\n")
	fmt.Fprintf(&b, "Error type: %s\n", an.ErrorType)
	fmt.Fprintf(&b, "Error message: %s\n", an.NormalizedMessage)
	fmt.Fprintf(&b, "Severity: %s\n", an.Severity)
	if an.StackTrace != "" {
		fmt.Fprintf(&b, "\nStack trace:\n%s\n", an.StackTrace)
	}

	b.WriteString("\nCandidate files, ranked by relevance:\n")
	for i, c := range cands {
		fmt.Fprintf(&b, "%d. %s", i+1, c.Path)
		if c.MatchedSymbol != "" {
			fmt.Fprintf(&b, " (symbol: %s)", c.MatchedSymbol)
		}
		b.WriteByte('\n')
	}
	for _, ex := range excerpts {
		if ex.Line > 0 {
			fmt.Fprintf(&b, "\nExcerpt from %s around line %d:\n%s\n", ex.Path, ex.Line, ex.Text)
		} else {
			fmt.Fprintf(&b, "\nExcerpt from %s:\n%s\n", ex.Path, ex.Text)
		}
	}

	b.WriteString(`
Your task:
1. Work through the stack trace line by line.
2. Decide which file, function, and line the error originates from.
3. Use the excerpts above to identify the probable root cause.

Respond with JSON only, in exactly this shape:
{
    "root_cause_summary": "Probable root cause in 2-3 sentences, naming the file it originates from."
}

RETURN ONLY JSON.
`)
	return b.String()
}

func architectPrompt(an *Analysis, loc *Location, precedents []knowledge.SearchResult) string {
	var b strings.Builder
	b.WriteString("Propose a fix for the following error.\n\n")
	fmt.Fprintf(&b, "Error type: %s\n", an.ErrorType)
	fmt.Fprintf(&b, "Error message: %s\n", an.NormalizedMessage)
	fmt.Fprintf(&b, "Severity: %s\n", an.Severity)
	if an.StackTrace != "" {
		fmt.Fprintf(&b, "\nStack trace:\n%s\n", an.StackTrace)
	}

	if loc != nil {
		fmt.Fprintf(&b, "\nRoot cause:\n%s\n", loc.RootCauseSummary)
		if len(loc.Candidates) > 0 {
			b.WriteString("\nFiles you may change (choose only from this list):\n")
			for _, c := range loc.Candidates {
				fmt.Fprintf(&b, "- %s\n", c.Path)
			}
		} else {
			b.WriteString("\nNo existing files were located for this error. You may propose new files; if you do, say so explicitly in architecture_notes.\n")
		}
	}

	if len(precedents) > 0 {
		b.WriteString("\nSimilar errors fixed before:\n")
		for i, p := range precedents {
			fmt.Fprintf(&b, "%d. %s\n   Fix: %s\n", i+1, p.Fix.ErrorSignature, truncate(p.Fix.Solution, 300))
		}
	}

	b.WriteString(`
Respond with JSON only, in exactly this shape:
{
    "description": "What the fix does and why it resolves the error.",
    "files_to_change": ["path/to/file.py"],
    "file_notes": {"path/to/file.py": "What to change in this file."},
    "architecture_notes": "Broader remarks, or an empty string.",
    "test_strategy": "How to verify the fix."
}

RETURN ONLY JSON.
`)
	return b.String()
}

func generatorPrompt(an *Analysis, sol *Solution, path, original string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fix the following file.\n\nFile: %s\n", path)
	if note := sol.FileNotes[path]; note != "" {
		fmt.Fprintf(&b, "Required change: %s\n", note)
	}
	fmt.Fprintf(&b, "Overall solution: %s\n", sol.Description)
	fmt.Fprintf(&b, "Error being fixed: %s: %s\n", an.ErrorType, an.NormalizedMessage)

	if original == "" {
		b.WriteString("\nThe file does not exist yet. Create it from scratch according to the plan.\n")
	} else {
		fmt.Fprintf(&b, "\nCurrent content:\n```\n%s\n```\n", original)
	}

	b.WriteString("\nReturn the COMPLETE corrected file. Output only code: no explanations, no markdown fences.\n")
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
