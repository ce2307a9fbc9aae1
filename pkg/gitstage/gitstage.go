// Package gitstage stages generated fixes on a local branch: branch
// creation with a bounded collision policy, guarded file writes, and a
// single enumerating commit.
//
// Staging is strictly local. Nothing in this package pushes, and the
// working tree is restored to its original HEAD after every run, so a
// repository only ever gains a fix branch.
package gitstage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/pkg/secrets"
)

var (
	// ErrNotRepository indicates the configured path is not a git
	// repository.
	ErrNotRepository = errors.New("not a git repository")

	// ErrNoCommits indicates the repository has no commits to branch
	// from.
	ErrNoCommits = errors.New("repository has no commits")

	// ErrBranchExhausted indicates every collision suffix was taken.
	ErrBranchExhausted = errors.New("branch name collision attempts exhausted")
)

// repoLocks serializes staging per repository path. Concurrent pipeline
// runs may share a checkout; branch/write/commit on it must not
// interleave.
var repoLocks sync.Map

func lockFor(repoPath string) *sync.Mutex {
	mu, _ := repoLocks.LoadOrStore(repoPath, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Change is one file's staged content pair.
type Change struct {
	// Original is the file content before the fix.
	Original string

	// Fixed is the proposed replacement content.
	Fixed string
}

// SkippedFile records a file excluded from the commit and why.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Result is the outcome of one staging run.
type Result struct {
	// BranchName is the created branch, empty for no-op runs.
	BranchName string `json:"branch_name"`

	// CommitMessage is the full message of the created commit.
	CommitMessage string `json:"commit_message"`

	// CommitHash is the created commit, empty for no-op runs.
	CommitHash string `json:"commit_hash"`

	// CommittedFiles lists every path in the commit, sorted.
	CommittedFiles []string `json:"committed_files"`

	// SkippedFiles lists paths excluded by safety checks.
	SkippedFiles []SkippedFile `json:"skipped_files,omitempty"`

	// NoOp is true when the run produced zero effective changes and
	// therefore no branch and no commit.
	NoOp bool `json:"no_op"`
}

// Request describes one staging run.
type Request struct {
	// ErrorType names the error being fixed; it drives the branch name.
	ErrorType string

	// Description is a one-line summary for the commit message.
	Description string

	// Changes maps repo-relative paths to content pairs.
	Changes map[string]Change

	// When is the branch timestamp. Zero means time.Now().
	When time.Time
}

// Config configures a Stager.
type Config struct {
	// RepoPath is the repository working tree root.
	RepoPath string

	// ExcludedDirs are directory names that must never be written to,
	// matched case-insensitively against every path segment.
	ExcludedDirs []string

	// AuthorName and AuthorEmail sign the staged commit.
	AuthorName  string
	AuthorEmail string

	// Scanner guards staged content against embedded credentials.
	// Optional; nil disables the check.
	Scanner *secrets.Scanner

	// Logger is optional.
	Logger *zap.Logger
}

// Stager stages fix branches on one repository.
type Stager struct {
	cfg      Config
	repo     *git.Repository
	excluded map[string]struct{}
	logger   *zap.Logger
}

// New opens the repository and returns a Stager for it.
func New(cfg Config) (*Stager, error) {
	abs, err := filepath.Abs(cfg.RepoPath)
	if err != nil {
		return nil, fmt.Errorf("resolving repo path: %w", err)
	}
	cfg.RepoPath = abs

	repo, err := git.PlainOpen(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotRepository, abs)
	}

	if cfg.AuthorName == "" {
		cfg.AuthorName = "remedyd"
	}
	if cfg.AuthorEmail == "" {
		cfg.AuthorEmail = "remedyd@localhost"
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	excluded := make(map[string]struct{}, len(cfg.ExcludedDirs))
	for _, d := range cfg.ExcludedDirs {
		excluded[strings.ToLower(d)] = struct{}{}
	}

	return &Stager{
		cfg:      cfg,
		repo:     repo,
		excluded: excluded,
		logger:   cfg.Logger,
	}, nil
}

// RepoPath returns the repository root this stager writes to.
func (s *Stager) RepoPath() string {
	return s.cfg.RepoPath
}

// Stage creates a fix branch, writes the guarded changes, and commits
// them. The working tree is returned to its original HEAD afterwards.
//
// When every change is either skipped by a safety check or identical to
// the on-disk content, no branch and no commit are created and the
// result reports NoOp.
func (s *Stager) Stage(ctx context.Context, req Request) (*Result, error) {
	mu := lockFor(s.cfg.RepoPath)
	mu.Lock()
	defer mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	head, err := s.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoCommits, s.cfg.RepoPath)
	}

	worktree, err := s.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("opening worktree: %w", err)
	}

	// Partition changes before touching the repository so a fully
	// skipped or fully unchanged request never creates a branch.
	writable, skipped := s.partition(req.Changes)
	if len(writable) == 0 {
		s.logger.Info("Staging is a no-op, nothing writable",
			zap.String("repo", s.cfg.RepoPath),
			zap.Int("skipped", len(skipped)))
		return &Result{NoOp: true, CommittedFiles: []string{}, SkippedFiles: skipped}, nil
	}

	when := req.When
	if when.IsZero() {
		when = time.Now()
	}

	branchName, branchRef, err := s.createBranch(req.ErrorType, when, worktree)
	if err != nil {
		return nil, err
	}

	restore := func() {
		_ = checkoutHead(worktree, head, true)
		_ = s.repo.Storer.RemoveReference(branchRef)
	}

	committed := make([]string, 0, len(writable))
	for _, path := range sortedPaths(writable) {
		if err := ctx.Err(); err != nil {
			restore()
			return nil, err
		}
		if err := s.writeFile(worktree, path, writable[path].Fixed); err != nil {
			restore()
			return nil, fmt.Errorf("writing %s: %w", path, err)
		}
		committed = append(committed, path)
	}

	status, err := worktree.Status()
	if err != nil {
		restore()
		return nil, fmt.Errorf("reading worktree status: %w", err)
	}
	if status.IsClean() {
		// Everything written already matched the tree. Remove the
		// branch again; a no-op must leave no trace.
		restore()
		s.logger.Info("Staging is a no-op, tree unchanged",
			zap.String("repo", s.cfg.RepoPath),
			zap.String("branch", branchName))
		return &Result{NoOp: true, CommittedFiles: []string{}, SkippedFiles: skipped}, nil
	}

	message := commitMessage(req.ErrorType, req.Description, committed)
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  s.cfg.AuthorName,
			Email: s.cfg.AuthorEmail,
			When:  when,
		},
	})
	if err != nil {
		restore()
		return nil, fmt.Errorf("committing staged fix: %w", err)
	}

	// Leave the checkout where we found it; the fix branch keeps the
	// commit.
	if err := checkoutHead(worktree, head, false); err != nil {
		return nil, fmt.Errorf("restoring original HEAD: %w", err)
	}

	s.logger.Info("Fix staged",
		zap.String("repo", s.cfg.RepoPath),
		zap.String("branch", branchName),
		zap.String("commit", hash.String()),
		zap.Int("files", len(committed)),
		zap.Int("skipped", len(skipped)))

	return &Result{
		BranchName:     branchName,
		CommitMessage:  message,
		CommitHash:     hash.String(),
		CommittedFiles: committed,
		SkippedFiles:   skipped,
	}, nil
}

// partition splits changes into writable content keyed by normalized
// path, and skip records. A change is skipped when its path is unsafe,
// crosses an excluded directory, or trips the secret scan; a change with
// no actual edit is dropped silently.
func (s *Stager) partition(changes map[string]Change) (map[string]Change, []SkippedFile) {
	writable := make(map[string]Change, len(changes))
	skipped := make([]SkippedFile, 0)

	for _, path := range sortedPaths(changes) {
		change := changes[path]
		if change.Fixed == change.Original {
			continue
		}
		clean, reason := s.safePath(path)
		if reason != "" {
			skipped = append(skipped, SkippedFile{Path: path, Reason: reason})
			continue
		}
		if s.cfg.Scanner != nil {
			if findings := s.cfg.Scanner.Scan(change.Fixed); len(findings) > 0 {
				skipped = append(skipped, SkippedFile{
					Path:   path,
					Reason: fmt.Sprintf("secret detected: %s", findings[0].RuleID),
				})
				continue
			}
		}
		writable[clean] = change
	}
	return writable, skipped
}

// safePath normalizes a repo-relative path and returns a non-empty
// reason when it must not be written.
func (s *Stager) safePath(path string) (string, string) {
	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(path)))
	if path == "" || filepath.IsAbs(path) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", "path escapes repository"
	}
	for _, segment := range strings.Split(clean, "/") {
		if _, bad := s.excluded[strings.ToLower(segment)]; bad {
			return "", fmt.Sprintf("path crosses excluded directory %q", segment)
		}
	}
	return clean, ""
}

// createBranch creates and checks out the staging branch, walking the
// bounded collision suffixes when the name is taken.
func (s *Stager) createBranch(errorType string, when time.Time, worktree *git.Worktree) (string, plumbing.ReferenceName, error) {
	base := BranchName(errorType, when)

	for attempt := 1; attempt <= maxBranchAttempts; attempt++ {
		name := attemptName(base, attempt)
		ref := plumbing.NewBranchReferenceName(name)

		_, err := s.repo.Reference(ref, true)
		if err == nil {
			s.logger.Debug("Branch name taken, trying suffix",
				zap.String("branch", name),
				zap.Int("attempt", attempt))
			continue
		}
		if !errors.Is(err, plumbing.ErrReferenceNotFound) {
			return "", "", fmt.Errorf("checking branch %s: %w", name, err)
		}

		if err := worktree.Checkout(&git.CheckoutOptions{
			Branch: ref,
			Create: true,
		}); err != nil {
			return "", "", fmt.Errorf("creating branch %s: %w", name, err)
		}
		return name, ref, nil
	}

	return "", "", fmt.Errorf("%w: %s", ErrBranchExhausted, base)
}

// checkoutHead returns the worktree to the original HEAD, by branch name
// when HEAD was on a branch, by hash when it was detached.
func checkoutHead(worktree *git.Worktree, head *plumbing.Reference, force bool) error {
	opts := &git.CheckoutOptions{Force: force}
	if head.Name().IsBranch() {
		opts.Branch = head.Name()
	} else {
		opts.Hash = head.Hash()
	}
	return worktree.Checkout(opts)
}

// writeFile writes content under the worktree root and stages it.
func (s *Stager) writeFile(worktree *git.Worktree, rel, content string) error {
	abs := filepath.Join(s.cfg.RepoPath, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return err
	}
	if _, err := worktree.Add(rel); err != nil {
		return err
	}
	return nil
}

// commitMessage builds the enumerating commit message. It is never empty
// and always lists every committed path.
func commitMessage(errorType, description string, files []string) string {
	var b strings.Builder

	subject := strings.TrimSpace(description)
	if subject == "" {
		subject = "automated remediation"
	}
	if errorType == "" {
		errorType = "error"
	}
	fmt.Fprintf(&b, "fix(%s): %s\n\n", errorType, subject)
	b.WriteString("Files changed:\n")
	for _, f := range files {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	return b.String()
}

func sortedPaths(changes map[string]Change) []string {
	paths := make([]string, 0, len(changes))
	for p := range changes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
