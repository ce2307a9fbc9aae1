package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/remedyd/pkg/events"
)

// serverURL is the daemon base URL for the remote commands.
var serverURL string

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check remedyd daemon health",
	Long: `Check the health of a running remedyd daemon, including every
registered component (knowledge store, repository index, git).

Examples:
  # Check the local daemon
  remedy health

  # Check a daemon on another host
  remedy health --server http://remedyd.internal:8080`,
	RunE: runHealth,
}

var casesCmd = &cobra.Command{
	Use:   "cases [id]",
	Short: "List or inspect the daemon's remediation cases",
	Long: `List the cases a running remedyd daemon has opened, or show one case
in full.

Examples:
  # List all cases
  remedy cases

  # Show one case
  remedy cases 3f8a2c71-...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCases,
}

func init() {
	healthCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "remedyd server URL")
	casesCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "remedyd server URL")
}

// healthResponse matches pkg/server HealthResponse.
type healthResponse struct {
	Status     string            `json:"status"`
	Service    string            `json:"service"`
	Components map[string]string `json:"components"`
}

// runHealth handles the health command.
func runHealth(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/health", serverURL)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect to %s: %v\n", url, err)
		return err
	}
	defer resp.Body.Close()

	// The daemon answers 200 when healthy and 503 when degraded, with
	// the same body shape either way.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Server Status: %s\n", health.Status)
	for name, state := range health.Components {
		fmt.Printf("  %-12s %s\n", name, state)
	}
	if health.Status != "ok" {
		return fmt.Errorf("daemon is %s", health.Status)
	}
	return nil
}

// runCases handles the cases command.
func runCases(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		return showCase(args[0])
	}
	return listCases()
}

// listCases prints one line per tracked case.
func listCases() error {
	url := fmt.Sprintf("%s/api/v1/cases", serverURL)

	var records []events.CaseRecord
	if err := getRemoteJSON(url, &records); err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No cases tracked.")
		return nil
	}

	for _, rec := range records {
		fmt.Printf("%s  %-16s %-20s %s\n", rec.ID, rec.Status, rec.Service, rec.UpdatedAt.Format(time.RFC3339))
	}
	return nil
}

// showCase prints one case in full.
func showCase(id string) error {
	url := fmt.Sprintf("%s/api/v1/cases/%s", serverURL, id)

	var rec events.CaseRecord
	if err := getRemoteJSON(url, &rec); err != nil {
		return err
	}
	if rec.Case != nil {
		printCase(os.Stdout, rec.Case)
		return nil
	}

	// The case is still running; only the registry record exists.
	fmt.Printf("case %s  %s\n", rec.ID, rec.Status)
	fmt.Printf("  service:  %s\n", rec.Service)
	fmt.Printf("  stage:    %s\n", rec.Stage)
	fmt.Printf("  updated:  %s\n", rec.UpdatedAt.Format(time.RFC3339))
	return nil
}

// getRemoteJSON fetches a daemon URL and decodes the JSON response.
func getRemoteJSON(url string, out any) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
