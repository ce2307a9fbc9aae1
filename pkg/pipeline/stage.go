package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/remedyd/pkg/gitstage"
	"github.com/fyrsmithlabs/remedyd/pkg/index"
	"github.com/fyrsmithlabs/remedyd/pkg/knowledge"
)

// Stage is one pipeline step. Run reads the sections earlier stages wrote
// and appends its own; it never rewrites prior sections.
type Stage interface {
	Name() string
	Run(ctx context.Context, ec *ErrorCase) error
}

// Completer answers a single prompt with a single completion. Provider
// clients in internal/llm satisfy it.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Searcher resolves stack frames and an error message to ranked codebase
// files. *index.Manager satisfies it.
type Searcher interface {
	Search(ctx context.Context, frames []index.FrameRef, errorMessage string) ([]index.Candidate, error)
	Excerpt(ctx context.Context, rel string, line, contextLines int) (string, error)
}

// Stager commits generated changes to a fix branch. *gitstage.Stager
// satisfies it.
type Stager interface {
	Stage(ctx context.Context, req gitstage.Request) (*gitstage.Result, error)
}

// Recaller retrieves similar past fixes for prompt grounding.
type Recaller interface {
	Recall(ctx context.Context, signature string, limit int) ([]knowledge.SearchResult, error)
}

// Recorder persists a successful remediation for future recall.
type Recorder interface {
	Record(ctx context.Context, fix *knowledge.Fix) error
}

// Memory is the remediation memory as the pipeline sees it.
// *knowledge.Memory satisfies it.
type Memory interface {
	Recaller
	Recorder
}

// DefaultRecallLimit is how many past fixes the architect folds into its
// prompt when memory is configured.
const DefaultRecallLimit = 3

// DefaultCompletionRetries bounds local retries after a failed or
// unparseable completion. Retries never cross a stage boundary.
const DefaultCompletionRetries = 1

// Config holds the orchestrator settings. The zero value plus a repository
// path is usable.
type Config struct {
	// RepoPath is the root of the repository being fixed.
	RepoPath string

	// MaxCompletionRetries is how many times a stage re-asks the model
	// after a transport or parse failure. Unset defaults to one retry;
	// retries never cross a stage boundary.
	MaxCompletionRetries int

	// RetryBackoff is the wait before a completion retry.
	RetryBackoff time.Duration

	// RecallLimit caps the past fixes retrieved for the architect prompt.
	RecallLimit int
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxCompletionRetries == 0 {
		c.MaxCompletionRetries = DefaultCompletionRetries
	}
	if c.RecallLimit == 0 {
		c.RecallLimit = DefaultRecallLimit
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.RepoPath == "" {
		return fmt.Errorf("repo path is required")
	}
	if c.MaxCompletionRetries < 0 {
		return fmt.Errorf("max completion retries cannot be negative, got %d", c.MaxCompletionRetries)
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative, got %s", c.RetryBackoff)
	}
	if c.RecallLimit < 0 {
		return fmt.Errorf("recall limit cannot be negative, got %d", c.RecallLimit)
	}
	return nil
}

// retryPolicy bounds one stage's completion attempts.
type retryPolicy struct {
	retries int
	backoff time.Duration
}

func (c Config) policy() retryPolicy {
	return retryPolicy{retries: c.MaxCompletionRetries, backoff: c.RetryBackoff}
}

// completeWithRetry asks the model and retries locally on transport
// failures or responses the accept func rejects. The accept func runs on
// every candidate response; a nil accept takes any response.
func completeWithRetry(ctx context.Context, c Completer, prompt string, policy retryPolicy, accept func(string) error, logger *zap.Logger) (string, error) {
	attempts := policy.retries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && policy.backoff > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("completion canceled: %w", ctx.Err())
			case <-time.After(policy.backoff):
			}
		}
		raw, err := c.Complete(ctx, prompt)
		if err == nil && accept != nil {
			err = accept(raw)
		}
		if err == nil {
			return raw, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", fmt.Errorf("completion canceled: %w", ctx.Err())
		}
		if attempt < attempts-1 {
			logger.Warn("completion attempt failed, retrying",
				zap.Int("attempt", attempt+1),
				zap.Int("max_attempts", attempts),
				zap.Error(err))
		}
	}
	return "", fmt.Errorf("completion failed after %d attempts: %w", attempts, lastErr)
}
