// Package main implements the remedy CLI for one-shot pipeline operations.
//
// Where remedyd runs continuously, remedy does a single pass: fetch error
// entries, run each through the remediation pipeline, print the resulting
// cases, and exit. It builds the same service stack as the daemon from the
// same configuration, so a case produced by remedy is indistinguishable
// from one produced by remedyd.
//
// Usage:
//
//	# Fix whatever the log source reports right now
//	remedy run --repo ~/src/payment-service
//
//	# Dry-run the pipeline against the built-in mock source
//	remedy run --mock --repo ./testdata/repo
//
//	# Inspect what the locator would search
//	remedy index --repo ~/src/payment-service
//
//	# Ask a running daemon how it is doing
//	remedy health
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
	Use:   "remedy",
	Short: "One-shot error remediation runs",
	Long: `remedy runs the error remediation pipeline once from the command line.
It fetches ERROR and FATAL entries from the configured log source, runs each
through the five-stage pipeline, and leaves proposed fixes on local git
branches for review. Use remedyd for continuous operation.`,
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
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(casesCmd)
	rootCmd.AddCommand(versionCmd)
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("remedy by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}
