// Package diff builds and applies unified diffs over file contents.
//
// Diffs are computed deterministically from an (original, fixed) pair and are
// always regenerable from that pair alone. Applying a diff to its original
// reproduces the fixed content byte for byte, including files without a
// trailing newline.
package diff

import (
	"errors"
	"fmt"
	"strings"
)

// Context lines included around each change in a hunk.
const contextLines = 3

// maxDPCells bounds the line-diff DP table. Pairs larger than this fall back
// to a single whole-file replacement hunk, which still satisfies the
// round-trip law.
const maxDPCells = 4_000_000

const noNewlineMarker = `\ No newline at end of file`

// Common errors returned by Apply.
var (
	ErrInvalidDiff     = errors.New("invalid unified diff")
	ErrContextMismatch = errors.New("diff does not apply to content")
)

// Unified returns the unified diff transforming original into fixed, with
// standard ---/+++ headers naming path. Identical contents produce an empty
// string. An empty original is rendered as a file creation (--- /dev/null).
func Unified(path, original, fixed string) string {
	if original == fixed {
		return ""
	}

	a := splitKeepEnds(original)
	b := splitKeepEnds(fixed)
	ops := diffOps(a, b)
	hunks := buildHunks(ops, a, b)
	if len(hunks) == 0 {
		return ""
	}

	var sb strings.Builder
	if original == "" {
		sb.WriteString("--- /dev/null\n")
	} else {
		fmt.Fprintf(&sb, "--- a/%s\n", path)
	}
	if fixed == "" {
		sb.WriteString("+++ /dev/null\n")
	} else {
		fmt.Fprintf(&sb, "+++ b/%s\n", path)
	}

	for _, h := range hunks {
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", h.aStart, h.aLen, h.bStart, h.bLen)
		for _, ln := range h.lines {
			sb.WriteByte(ln.kind)
			sb.WriteString(strings.TrimSuffix(ln.text, "\n"))
			sb.WriteByte('\n')
			if !strings.HasSuffix(ln.text, "\n") {
				sb.WriteString(noNewlineMarker)
				sb.WriteByte('\n')
			}
		}
	}
	return sb.String()
}

// Apply applies a unified diff produced by Unified (or any conforming tool)
// to original and returns the patched content. It verifies context and
// deleted lines against the original and fails with ErrContextMismatch when
// they disagree.
func Apply(original, patch string) (string, error) {
	if patch == "" {
		return original, nil
	}

	hunks, err := parseHunks(patch)
	if err != nil {
		return "", err
	}

	a := splitKeepEnds(original)
	var out strings.Builder
	aPos := 0

	for _, h := range hunks {
		start := h.aStart - 1
		if h.aLen == 0 {
			// Zero-length ranges address the line before the insertion.
			start = h.aStart
		}
		if start < aPos || start > len(a) {
			return "", fmt.Errorf("%w: hunk start %d out of range", ErrContextMismatch, h.aStart)
		}
		for aPos < start {
			out.WriteString(a[aPos])
			aPos++
		}
		for _, ln := range h.lines {
			switch ln.kind {
			case ' ', '-':
				if aPos >= len(a) || a[aPos] != ln.text {
					return "", fmt.Errorf("%w: line %d", ErrContextMismatch, aPos+1)
				}
				if ln.kind == ' ' {
					out.WriteString(ln.text)
				}
				aPos++
			case '+':
				out.WriteString(ln.text)
			default:
				return "", fmt.Errorf("%w: unknown line prefix %q", ErrInvalidDiff, ln.kind)
			}
		}
	}

	for aPos < len(a) {
		out.WriteString(a[aPos])
		aPos++
	}
	return out.String(), nil
}

// hunkLine is one body line; text keeps its trailing newline except for a
// final line without one.
type hunkLine struct {
	kind byte // ' ', '-', '+'
	text string
}

type hunk struct {
	aStart, aLen int
	bStart, bLen int
	lines        []hunkLine
}

// splitKeepEnds splits content into lines that retain their terminators.
// The final line keeps no terminator when the content does not end in one.
func splitKeepEnds(s string) []string {
	if s == "" {
		return nil
	}
	var lines []string
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			lines = append(lines, s)
			break
		}
		lines = append(lines, s[:i+1])
		s = s[i+1:]
		if s == "" {
			break
		}
	}
	return lines
}

type opKind byte

const (
	opEqual  opKind = ' '
	opDelete opKind = '-'
	opInsert opKind = '+'
)

type editOp struct {
	kind opKind
	aIdx int
	bIdx int
}

// diffOps computes a line-level edit script via LCS. Oversized inputs fall
// back to a whole-file replacement, which keeps the output deterministic.
func diffOps(a, b []string) []editOp {
	n, m := len(a), len(b)
	if n*m > maxDPCells {
		return replaceAll(a, b)
	}

	// lcs[i][j] = LCS length of a[i:], b[j:].
	lcs := make([][]int32, n+1)
	for i := range lcs {
		lcs[i] = make([]int32, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	ops := make([]editOp, 0, n+m)
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			ops = append(ops, editOp{kind: opEqual, aIdx: i, bIdx: j})
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			ops = append(ops, editOp{kind: opDelete, aIdx: i})
			i++
		default:
			ops = append(ops, editOp{kind: opInsert, bIdx: j})
			j++
		}
	}
	for ; i < n; i++ {
		ops = append(ops, editOp{kind: opDelete, aIdx: i})
	}
	for ; j < m; j++ {
		ops = append(ops, editOp{kind: opInsert, bIdx: j})
	}
	return ops
}

func replaceAll(a, b []string) []editOp {
	ops := make([]editOp, 0, len(a)+len(b))
	for i := range a {
		ops = append(ops, editOp{kind: opDelete, aIdx: i})
	}
	for j := range b {
		ops = append(ops, editOp{kind: opInsert, bIdx: j})
	}
	return ops
}

// buildHunks groups the edit script into hunks with surrounding context.
// Changes separated by more than 2*contextLines equal lines start a new hunk.
func buildHunks(ops []editOp, a, b []string) []hunk {
	var hunks []hunk
	i := 0
	for i < len(ops) {
		if ops[i].kind == opEqual {
			i++
			continue
		}

		// Walk back for leading context.
		start := i
		for start > 0 && i-start < contextLines && ops[start-1].kind == opEqual {
			start--
		}

		// Extend through subsequent changes, absorbing short equal gaps.
		lastChange := i
		end := i + 1
		for end < len(ops) {
			if ops[end].kind != opEqual {
				lastChange = end
				end++
				continue
			}
			gap := 0
			for end+gap < len(ops) && ops[end+gap].kind == opEqual {
				gap++
			}
			if end+gap < len(ops) && gap <= 2*contextLines {
				end += gap
				continue
			}
			break
		}
		// Trailing context.
		end = lastChange + 1
		for end < len(ops) && end-lastChange <= contextLines && ops[end].kind == opEqual {
			end++
		}

		// Lines consumed on each side before this hunk.
		aBefore, bBefore := 0, 0
		for _, op := range ops[:start] {
			if op.kind == opEqual || op.kind == opDelete {
				aBefore++
			}
			if op.kind == opEqual || op.kind == opInsert {
				bBefore++
			}
		}

		h := hunk{}
		for _, op := range ops[start:end] {
			switch op.kind {
			case opEqual:
				h.aLen++
				h.bLen++
				h.lines = append(h.lines, hunkLine{kind: ' ', text: a[op.aIdx]})
			case opDelete:
				h.aLen++
				h.lines = append(h.lines, hunkLine{kind: '-', text: a[op.aIdx]})
			case opInsert:
				h.bLen++
				h.lines = append(h.lines, hunkLine{kind: '+', text: b[op.bIdx]})
			}
		}
		// Empty ranges address the line before the range, per the format.
		h.aStart = aBefore + 1
		if h.aLen == 0 {
			h.aStart = aBefore
		}
		h.bStart = bBefore + 1
		if h.bLen == 0 {
			h.bStart = bBefore
		}
		hunks = append(hunks, h)
		i = end
	}
	return hunks
}

// parseHunks parses the hunks of a unified diff, reattaching line
// terminators and honoring no-newline markers.
func parseHunks(patch string) ([]hunk, error) {
	rawLines := strings.Split(patch, "\n")
	var hunks []hunk
	var current *hunk

	flush := func() {
		if current != nil {
			hunks = append(hunks, *current)
			current = nil
		}
	}

	for idx := 0; idx < len(rawLines); idx++ {
		raw := rawLines[idx]
		switch {
		case raw == "" && idx == len(rawLines)-1:
			// Trailing newline of the patch itself.
		case strings.HasPrefix(raw, "--- ") || strings.HasPrefix(raw, "+++ "):
			// File headers carry no positional data we need.
		case strings.HasPrefix(raw, "@@ "):
			flush()
			h := hunk{}
			if _, err := fmt.Sscanf(raw, "@@ -%d,%d +%d,%d @@", &h.aStart, &h.aLen, &h.bStart, &h.bLen); err != nil {
				return nil, fmt.Errorf("%w: bad hunk header %q", ErrInvalidDiff, raw)
			}
			current = &h
		case strings.HasPrefix(raw, `\`):
			if current == nil || len(current.lines) == 0 {
				return nil, fmt.Errorf("%w: stray no-newline marker", ErrInvalidDiff)
			}
			last := &current.lines[len(current.lines)-1]
			last.text = strings.TrimSuffix(last.text, "\n")
		case raw == "":
			// Blank context line inside a hunk ("" after stripping would be
			// a context line holding an empty string plus newline).
			if current != nil {
				current.lines = append(current.lines, hunkLine{kind: ' ', text: "\n"})
			}
		default:
			if current == nil {
				return nil, fmt.Errorf("%w: content outside hunk: %q", ErrInvalidDiff, raw)
			}
			kind := raw[0]
			if kind != ' ' && kind != '-' && kind != '+' {
				return nil, fmt.Errorf("%w: unknown line prefix %q", ErrInvalidDiff, string(kind))
			}
			current.lines = append(current.lines, hunkLine{kind: kind, text: raw[1:] + "\n"})
		}
	}
	flush()

	if len(hunks) == 0 {
		return nil, fmt.Errorf("%w: no hunks found", ErrInvalidDiff)
	}
	return hunks, nil
}
