// Package index builds and serves a lightweight file and symbol retrieval
// index over a project directory.
//
// The index is lexical, not syntactic: symbols are extracted with per-language
// line patterns, never a full parser, so a file with syntax errors still
// indexes (with an empty symbol list and a parse-failure flag). Excluded
// directories (virtual environments, dependency trees, VCS metadata) are
// pruned before descent and never opened.
//
// Example usage:
//
//	idx, err := index.Build(ctx, "/path/to/project", index.DefaultOptions())
//	candidates := idx.Search([]index.FrameRef{{File: "app/user.py", Function: "load"}}, "NullPointerException")
package index

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("remedyd/index")

// Score tiers for Search. A candidate's final score is the sum of every
// tier that matched, merged by path.
const (
	frameMatchScore  = 1.0
	symbolMatchScore = 0.8
	overlapMaxScore  = 0.5
)

// Symbol is a single top-level declaration extracted from a source file.
type Symbol struct {
	// Name is the declared identifier.
	Name string

	// Kind is "class", "function", or "type" depending on the language.
	Kind string

	// Line is the 1-based line of the declaration.
	Line int
}

// SymbolRef locates one definition of a symbol. A symbol name may map to
// multiple definitions; callers must tolerate ambiguity.
type SymbolRef struct {
	Path string
	Line int
}

// FileInfo is the per-file index record.
type FileInfo struct {
	// Path is the path relative to the index root, with forward slashes.
	Path string

	// Language is the detected language name ("python", "go", ...).
	Language string

	// Size is the file size in bytes at index time.
	Size int64

	// LastModified is the file mtime at index time.
	LastModified time.Time

	// Symbols are the extracted top-level declarations, in file order.
	Symbols []Symbol

	// ParseFailed is true when the file could not be read or is not
	// valid UTF-8. The file is still listed; it just has no symbols.
	ParseFailed bool

	// tokens is the lowercased identifier set used for fuzzy scoring.
	tokens map[string]struct{}
}

// FrameRef is a stack-frame reference used as a search query term.
type FrameRef struct {
	// File is the frame's source path as reported by the runtime. It may
	// be absolute, relative, or a bare filename.
	File string

	// Function is the frame's function, method, or class name.
	Function string
}

// Candidate is one ranked search result.
type Candidate struct {
	// Path is the indexed file path relative to the root.
	Path string

	// Score is the summed relevance across all matching tiers.
	Score float64

	// MatchedSymbol is the symbol that matched a frame function name,
	// when the symbol tier contributed to the score.
	MatchedSymbol string
}

// Options configures an index build.
type Options struct {
	// ExcludedDirs are directory names pruned before descent, compared
	// case-insensitively at every depth.
	ExcludedDirs []string

	// Extensions are the source file extensions to index (with dot).
	Extensions []string

	// MaxFileSize is the symbol-scan cap in bytes. Larger files are
	// indexed with metadata only.
	MaxFileSize int64

	// TopK is the maximum number of search candidates returned.
	TopK int
}

// DefaultOptions returns the standard exclusion and extension sets.
func DefaultOptions() Options {
	return Options{
		ExcludedDirs: []string{
			".venv", "venv", "env", "node_modules", ".git", "__pycache__",
			"bin", "obj", "build", "dist", ".pytest_cache", ".mypy_cache",
			"site-packages", "lib", "packages", "vendor", "target",
		},
		Extensions:  []string{".py", ".java", ".cs", ".js", ".ts", ".go", ".rb"},
		MaxFileSize: 1 << 20,
		TopK:        5,
	}
}

// Index is an immutable snapshot of a project tree. It is safe for
// concurrent reads once built.
type Index struct {
	root       string
	opts       Options
	files      map[string]*FileInfo
	classIndex map[string][]SymbolRef
	builtAt    time.Time
}

// Build walks the tree rooted at root and returns a fresh index.
//
// Directories whose name matches opts.ExcludedDirs (case-insensitive) are
// pruned before descent. Unreadable or non-UTF-8 files are recorded with
// ParseFailed set and never abort the build.
func Build(ctx context.Context, root string, opts Options) (*Index, error) {
	ctx, span := tracer.Start(ctx, "index.build")
	defer span.End()

	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultOptions().MaxFileSize
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving index root: %w", err)
	}
	if info, err := os.Stat(absRoot); err != nil {
		return nil, fmt.Errorf("stat index root: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("index root is not a directory: %s", absRoot)
	}

	excluded := make(map[string]struct{}, len(opts.ExcludedDirs))
	for _, d := range opts.ExcludedDirs {
		excluded[strings.ToLower(d)] = struct{}{}
	}
	extensions := make(map[string]struct{}, len(opts.Extensions))
	for _, e := range opts.Extensions {
		extensions[strings.ToLower(e)] = struct{}{}
	}

	idx := &Index{
		root:       absRoot,
		opts:       opts,
		files:      make(map[string]*FileInfo),
		classIndex: make(map[string][]SymbolRef),
		builtAt:    time.Now(),
	}

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			// Unreadable directory entries are skipped, not fatal.
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if path == absRoot {
				return nil
			}
			if _, skip := excluded[strings.ToLower(d.Name())]; skip {
				return fs.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(d.Name()))
		if _, ok := extensions[ext]; !ok {
			return nil
		}

		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			idx.files[rel] = &FileInfo{Path: rel, Language: languageByExtension[ext], ParseFailed: true}
			return nil
		}

		fi := &FileInfo{
			Path:         rel,
			Language:     languageByExtension[ext],
			Size:         info.Size(),
			LastModified: info.ModTime(),
		}

		// Oversized files keep their metadata but skip the symbol scan.
		if info.Size() > opts.MaxFileSize {
			idx.files[rel] = fi
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil || !utf8.Valid(content) {
			fi.ParseFailed = true
			idx.files[rel] = fi
			return nil
		}

		fi.Symbols = extractSymbols(fi.Language, string(content))
		fi.tokens = tokenize(string(content))
		for _, tok := range pathTokens(rel) {
			fi.tokens[tok] = struct{}{}
		}
		idx.files[rel] = fi

		for _, sym := range fi.Symbols {
			idx.classIndex[sym.Name] = append(idx.classIndex[sym.Name], SymbolRef{Path: rel, Line: sym.Line})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", absRoot, err)
	}

	span.SetAttributes(
		attribute.String("index.root", absRoot),
		attribute.Int("index.files", len(idx.files)),
		attribute.Int("index.symbols", len(idx.classIndex)),
	)
	return idx, nil
}

// Root returns the absolute root the index was built from.
func (idx *Index) Root() string {
	return idx.root
}

// Len returns the number of indexed files.
func (idx *Index) Len() int {
	return len(idx.files)
}

// SymbolCount returns the number of distinct indexed symbol names.
func (idx *Index) SymbolCount() int {
	return len(idx.classIndex)
}

// File returns the index record for a relative path, if present.
func (idx *Index) File(rel string) (*FileInfo, bool) {
	fi, ok := idx.files[rel]
	return fi, ok
}

// Paths returns every indexed path in lexical order.
func (idx *Index) Paths() []string {
	out := make([]string, 0, len(idx.files))
	for rel := range idx.files {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out
}

// Lookup returns every definition site recorded for a symbol name.
func (idx *Index) Lookup(symbol string) []SymbolRef {
	return idx.classIndex[symbol]
}

// Search ranks indexed files against stack-frame references and an error
// message. Scores: 1.0 per frame whose file reference matches the indexed
// path, 0.8 per frame function that matches an indexed symbol, and up to
// 0.5 for token overlap between the message and the file's identifiers.
// Scores are merged by path and summed; ties break to the shallower path,
// then lexical order. An empty result is a valid return, never an error.
func (idx *Index) Search(frames []FrameRef, errorMessage string) []Candidate {
	scores := make(map[string]*Candidate)
	bump := func(path string, delta float64) *Candidate {
		c, ok := scores[path]
		if !ok {
			c = &Candidate{Path: path}
			scores[path] = c
		}
		c.Score += delta
		return c
	}

	for _, frame := range frames {
		if frame.File != "" {
			want := filepath.ToSlash(frame.File)
			base := strings.ToLower(pathBase(want))
			for rel := range idx.files {
				if pathRefMatches(rel, want, base) {
					bump(rel, frameMatchScore)
				}
			}
		}
		if frame.Function != "" {
			for _, name := range frameSymbolNames(frame.Function) {
				for _, ref := range idx.classIndex[name] {
					c := bump(ref.Path, symbolMatchScore)
					if c.MatchedSymbol == "" {
						c.MatchedSymbol = name
					}
				}
			}
		}
	}

	if msgTokens := tokenize(errorMessage); len(msgTokens) > 0 {
		for rel, fi := range idx.files {
			if len(fi.tokens) == 0 {
				continue
			}
			matched := 0
			for tok := range msgTokens {
				if _, ok := fi.tokens[tok]; ok {
					matched++
				}
			}
			if matched > 0 {
				bump(rel, overlapMaxScore*float64(matched)/float64(len(msgTokens)))
			}
		}
	}

	out := make([]Candidate, 0, len(scores))
	for _, c := range scores {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		di, dj := strings.Count(out[i].Path, "/"), strings.Count(out[j].Path, "/")
		if di != dj {
			return di < dj
		}
		return out[i].Path < out[j].Path
	})
	if len(out) > idx.opts.TopK {
		out = out[:idx.opts.TopK]
	}
	return out
}

// Excerpt reads a numbered window of file content around a 1-based line.
// The file is read from disk at call time so the excerpt reflects the
// current content, not the indexed snapshot.
func (idx *Index) Excerpt(rel string, line, contextLines int) (string, error) {
	if contextLines < 0 {
		contextLines = 0
	}
	f, err := os.Open(filepath.Join(idx.root, filepath.FromSlash(rel)))
	if err != nil {
		return "", fmt.Errorf("reading excerpt source: %w", err)
	}
	defer f.Close()

	from := line - contextLines
	if from < 1 {
		from = 1
	}
	to := line + contextLines

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	n := 0
	for scanner.Scan() {
		n++
		if n < from {
			continue
		}
		if n > to {
			break
		}
		marker := "  "
		if n == line {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%4d | %s\n", marker, n, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scanning excerpt source: %w", err)
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("line %d out of range for %s", line, rel)
	}
	return b.String(), nil
}

// pathRefMatches reports whether an indexed relative path matches a frame
// file reference, by exact suffix or by basename equality.
func pathRefMatches(rel, want, wantBase string) bool {
	if rel == want {
		return true
	}
	if strings.HasSuffix(want, "/"+rel) || strings.HasSuffix(rel, "/"+want) {
		return true
	}
	return strings.ToLower(pathBase(rel)) == wantBase
}

func pathBase(p string) string {
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return p
}

// pathTokens splits a relative path into lowercased identifier tokens so
// file names participate in overlap scoring.
func pathTokens(rel string) []string {
	raw := strings.FieldsFunc(rel, func(r rune) bool {
		return r == '/' || r == '.' || r == '-' || r == '_'
	})
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		t = strings.ToLower(t)
		if len(t) >= minTokenLen {
			out = append(out, t)
		}
	}
	return out
}

// frameSymbolNames expands a frame function reference into candidate
// symbol names: the full reference plus each dotted segment, so
// "UserService.find_user" matches both the class and the method.
func frameSymbolNames(fn string) []string {
	names := []string{fn}
	if strings.ContainsAny(fn, "./") {
		for _, part := range strings.FieldsFunc(fn, func(r rune) bool { return r == '.' || r == '/' }) {
			if part != "" && part != fn {
				names = append(names, part)
			}
		}
	}
	return names
}
