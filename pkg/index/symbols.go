package index

import (
	"bufio"
	"regexp"
	"strings"
)

// languageByExtension maps indexable extensions to language names.
var languageByExtension = map[string]string{
	".py":   "python",
	".java": "java",
	".cs":   "csharp",
	".js":   "javascript",
	".ts":   "typescript",
	".go":   "go",
	".rb":   "ruby",
}

// symbolPattern is one line-anchored declaration pattern. Capture group 1
// is the symbol name.
type symbolPattern struct {
	kind string
	re   *regexp.Regexp
}

// Declaration patterns are deliberately lexical. They trade completeness
// for robustness: a file that defeats them still indexes, just with fewer
// symbols.
var symbolPatterns = map[string][]symbolPattern{
	"python": {
		{kind: "class", re: regexp.MustCompile(`^\s*class\s+([A-Za-z_]\w*)`)},
		{kind: "function", re: regexp.MustCompile(`^\s*(?:async\s+)?def\s+([A-Za-z_]\w*)`)},
	},
	"java": {
		{kind: "class", re: regexp.MustCompile(`^\s*(?:public\s+|protected\s+|private\s+|abstract\s+|final\s+|static\s+)*(?:class|interface|enum|record)\s+([A-Za-z_]\w*)`)},
		{kind: "function", re: regexp.MustCompile(`^\s*(?:public|protected|private)\s+[\w<>\[\],.\s]*?([A-Za-z_]\w*)\s*\(`)},
	},
	"csharp": {
		{kind: "class", re: regexp.MustCompile(`^\s*(?:public\s+|internal\s+|protected\s+|private\s+|abstract\s+|sealed\s+|static\s+|partial\s+)*(?:class|interface|struct|enum|record)\s+([A-Za-z_]\w*)`)},
		{kind: "function", re: regexp.MustCompile(`^\s*(?:public|internal|protected|private)\s+[\w<>\[\],.\s]*?([A-Za-z_]\w*)\s*\(`)},
	},
	"javascript": {
		{kind: "class", re: regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?class\s+([A-Za-z_$]\w*)`)},
		{kind: "function", re: regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$]\w*)`)},
		{kind: "function", re: regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$]\w*)\s*=\s*(?:async\s+)?(?:function\b|\()`)},
	},
	"go": {
		{kind: "type", re: regexp.MustCompile(`^type\s+([A-Za-z_]\w*)`)},
		{kind: "function", re: regexp.MustCompile(`^func\s+(?:\([^)]*\)\s+)?([A-Za-z_]\w*)\s*\(`)},
	},
	"ruby": {
		{kind: "class", re: regexp.MustCompile(`^\s*(?:class|module)\s+([A-Z]\w*)`)},
		{kind: "function", re: regexp.MustCompile(`^\s*def\s+(?:self\.)?([A-Za-z_]\w*[?!=]?)`)},
	},
}

func init() {
	// TypeScript declarations are the JavaScript set plus interfaces and
	// type aliases.
	symbolPatterns["typescript"] = append([]symbolPattern{
		{kind: "type", re: regexp.MustCompile(`^\s*(?:export\s+)?(?:interface|type)\s+([A-Za-z_$]\w*)`)},
	}, symbolPatterns["javascript"]...)
}

// extractSymbols scans content line by line and returns the declarations
// matched by the language's patterns, in file order.
func extractSymbols(language, content string) []Symbol {
	patterns, ok := symbolPatterns[language]
	if !ok {
		return nil
	}

	var symbols []Symbol
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		for _, p := range patterns {
			m := p.re.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			symbols = append(symbols, Symbol{Name: m[1], Kind: p.kind, Line: line})
			break
		}
	}
	return symbols
}

const minTokenLen = 3

var identifierRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// tokenStopwords are high-frequency words that carry no signal when
// overlapping an error message with source identifiers.
var tokenStopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "not": {}, "with": {}, "from": {},
	"was": {}, "has": {}, "but": {}, "are": {}, "this": {}, "that": {},
	"error": {}, "exception": {}, "failed": {}, "while": {},
}

// tokenize lowercases and collects the identifier tokens of a string,
// dropping short tokens and stopwords.
func tokenize(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, m := range identifierRe.FindAllString(s, -1) {
		tok := strings.ToLower(m)
		if len(tok) < minTokenLen {
			continue
		}
		if _, skip := tokenStopwords[tok]; skip {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}
