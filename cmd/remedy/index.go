package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/remedyd/internal/config"
	"github.com/fyrsmithlabs/remedyd/internal/services"
	"github.com/fyrsmithlabs/remedyd/pkg/index"
)

var indexRepo string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build the repository index and print statistics",
	Long: `Build the codebase index the locator stage searches and print what it
covers. Useful for checking exclusions and size limits before a run. The
index is built in memory and discarded; no model configuration is needed.

Examples:
  # Index the configured repository
  remedy index

  # Index a specific repository
  remedy index --repo ~/src/payment-service`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexRepo, "repo", "", "repository to index (default: configured repo_path)")
}

// runIndex handles the index command.
func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if indexRepo != "" {
		cfg.Pipeline.RepoPath = indexRepo
	}

	start := time.Now()
	idx, err := index.Build(cmd.Context(), cfg.Pipeline.RepoPath, services.IndexOptions(cfg))
	if err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}
	printIndexReport(os.Stdout, idx, time.Since(start))
	return nil
}

// printIndexReport writes index statistics with a per-extension breakdown.
func printIndexReport(w io.Writer, idx *index.Index, elapsed time.Duration) {
	fmt.Fprintf(w, "Indexed %s\n", idx.Root())
	fmt.Fprintf(w, "  files:    %d\n", idx.Len())
	fmt.Fprintf(w, "  symbols:  %d\n", idx.SymbolCount())
	fmt.Fprintf(w, "  duration: %s\n", elapsed.Round(time.Millisecond))

	counts := extensionCounts(idx.Paths())
	if len(counts) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, c := range counts {
		fmt.Fprintf(w, "  %-8s %d\n", c.Ext, c.Count)
	}
}

// extCount is one extension's file count.
type extCount struct {
	Ext   string
	Count int
}

// extensionCounts groups paths by extension, most frequent first.
// Extensionless files are grouped under "(none)".
func extensionCounts(paths []string) []extCount {
	byExt := make(map[string]int)
	for _, p := range paths {
		ext := filepath.Ext(p)
		if ext == "" {
			ext = "(none)"
		}
		byExt[ext]++
	}

	counts := make([]extCount, 0, len(byExt))
	for ext, n := range byExt {
		counts = append(counts, extCount{Ext: ext, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Ext < counts[j].Ext
	})
	return counts
}
