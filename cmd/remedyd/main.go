// Remedyd is the error remediation daemon.
//
// The daemon polls a log source for ERROR and FATAL entries, runs each one
// through the five-stage remediation pipeline, and stages proposed fixes on
// branches of a local git repository. An HTTP server exposes health checks,
// case inspection, SSE progress streams, and Prometheus metrics.
//
// Configuration is loaded from ~/.config/remedyd/config.yaml and
// REMEDYD_-prefixed environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults (mock log source, embedded NATS)
//	remedyd serve
//
//	# Start against a real log store
//	REMEDYD_SOURCE_PROVIDER=elastic REMEDYD_SOURCE_URL=http://localhost:9200 remedyd serve
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// configPath is the --config flag value; empty means the default path.
var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "remedyd",
	Short: "Error remediation daemon",
	Long: `remedyd watches an error log source and turns errors into staged fix
branches. Every ERROR or FATAL entry runs through a five-stage pipeline
(analyze, locate, design, generate, stage); each stage's artifact is kept on
the case, including partial results when a later stage fails. Nothing is
ever pushed: fixes wait on local branches for human review.`,
	Version: version,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ~/.config/remedyd/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("remedyd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}
