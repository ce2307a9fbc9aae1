package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/remedyd/internal/config"
	"github.com/fyrsmithlabs/remedyd/internal/logging"
	"github.com/fyrsmithlabs/remedyd/internal/services"
	"github.com/fyrsmithlabs/remedyd/pkg/logsource"
	"github.com/fyrsmithlabs/remedyd/pkg/pipeline"
)

var (
	runRepo    string
	runMock    bool
	runService string
	runWindow  time.Duration
	runLimit   int
	runVerbose bool
)

// progressOut receives stage progress lines. Case reports go to stdout so
// they can be piped; progress stays on stderr.
var progressOut io.Writer = os.Stderr

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch error entries once and run each through the pipeline",
	Long: `Fetch ERROR and FATAL entries from the configured log source and run each
one through the remediation pipeline. Fixes are staged on local branches of
the target repository; nothing is pushed.

A completion provider must be configured (REMEDYD_LLM_PROVIDER and its API
key), even with --mock: the mock replaces the log source, not the model.

Examples:
  # Run against the configured source and repository
  remedy run

  # Fix a specific repository from the mock source
  remedy run --mock --repo ~/src/payment-service

  # Only the last 5 minutes of one service, at most 3 cases
  remedy run --service payment-service --window 5m --limit 3`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runRepo, "repo", "", "repository to fix (default: configured repo_path)")
	runCmd.Flags().BoolVar(&runMock, "mock", false, "use the built-in mock log source")
	runCmd.Flags().StringVar(&runService, "service", "", "only fetch entries from this service")
	runCmd.Flags().DurationVar(&runWindow, "window", 0, "how far back to fetch (default: configured window)")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "maximum number of cases to run (0 = unlimited)")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "enable debug logging")
}

// runRun handles the run command.
func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyRunFlags(cfg)

	logger, err := cliLogger(runVerbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	svcs, err := services.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svcs.Close()

	orch, err := svcs.NewPipeline(pipeline.WithProgress(printProgress))
	if err != nil {
		return err
	}

	window := cfg.Source.Window.Duration()
	filter := logsource.Filter{}
	if cfg.Source.Service != "" {
		filter.Services = []string{cfg.Source.Service}
	}
	entries, err := svcs.Source.Fetch(ctx, logsource.LastWindow(window), filter)
	if err != nil {
		return fmt.Errorf("failed to fetch log entries: %w", err)
	}
	entries = logsource.FilterBySeverity(entries, logsource.SeverityError)

	if len(entries) == 0 {
		fmt.Printf("No ERROR or FATAL entries in the last %s.\n", window)
		return nil
	}
	if runLimit > 0 && len(entries) > runLimit {
		entries = entries[:runLimit]
	}

	fmt.Fprintf(progressOut, "Running %d case(s) against %s\n", len(entries), cfg.Pipeline.RepoPath)

	var failed int
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprintf(progressOut, "\n%s %s\n", entry.Severity, firstLine(entry.Message))
		ec := orch.Run(ctx, entry)
		printCase(os.Stdout, ec)
		if ec.Status != pipeline.StatusComplete {
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d case(s) did not complete", failed, len(entries))
	}
	return nil
}

// applyRunFlags folds command-line overrides into the loaded configuration
// before the service stack is built from it.
func applyRunFlags(cfg *config.Config) {
	if runRepo != "" {
		cfg.Pipeline.RepoPath = runRepo
	}
	if runMock {
		cfg.Source.Provider = "mock"
	}
	if runService != "" {
		cfg.Source.Service = runService
	}
	if runWindow > 0 {
		cfg.Source.Window = config.Duration(runWindow)
	}
}

// cliLogger builds a console logger that stays quiet unless --verbose is
// set. Pipeline internals log at Debug and Info; the CLI reports outcomes
// itself, so by default only warnings get through.
func cliLogger(verbose bool) (*zap.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	logCfg.Format = "console"
	logCfg.Level = zapcore.WarnLevel
	if verbose {
		logCfg.Level = zapcore.DebugLevel
	}
	return logging.New(logCfg, nil)
}

// printProgress writes one line per finished stage to stderr.
func printProgress(ev pipeline.ProgressEvent) {
	switch ev.Status {
	case pipeline.StageCompleted:
		fmt.Fprintf(progressOut, "  %-18s ok    %s\n", ev.Stage, ev.Duration.Round(time.Millisecond))
	case pipeline.StageFailed:
		fmt.Fprintf(progressOut, "  %-18s fail  %s\n", ev.Stage, ev.Err)
	}
}

// printCase writes a human-readable case report.
func printCase(w io.Writer, ec *pipeline.ErrorCase) {
	fmt.Fprintf(w, "case %s  %s\n", ec.ID, ec.Status)
	fmt.Fprintf(w, "  service:  %s\n", ec.SourceLog.Service)
	fmt.Fprintf(w, "  error:    %s\n", truncate(firstLine(ec.SourceLog.Message), 120))

	if ec.Analysis != nil {
		fmt.Fprintf(w, "  type:     %s\n", ec.Analysis.ErrorType)
	}
	if ec.Location != nil && len(ec.Location.Candidates) > 0 {
		top := ec.Location.Candidates[0]
		fmt.Fprintf(w, "  located:  %s (score %.2f)\n", top.Path, top.Score)
	}
	if ec.Solution != nil {
		fmt.Fprintf(w, "  plan:     %s\n", truncate(firstLine(ec.Solution.Description), 120))
	}
	if ec.GitResult != nil {
		if ec.GitResult.NoOp {
			fmt.Fprintf(w, "  branch:   none (no effective changes)\n")
		} else {
			fmt.Fprintf(w, "  branch:   %s (%d file(s), commit %s)\n",
				ec.GitResult.BranchName, len(ec.GitResult.CommittedFiles), shortHash(ec.GitResult.CommitHash))
		}
	}
	if ec.FailureStage != "" {
		fmt.Fprintf(w, "  failed:   %s: %s\n", ec.FailureStage, ec.FailureReason)
	}
}

// firstLine returns text up to the first newline, trimmed.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}

// shortHash abbreviates a commit hash for display.
func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
