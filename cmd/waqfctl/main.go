// Package main implements the waqfctl CLI for manual operations against the
// waqfqa HTTP server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/waqfqa/internal/http"
	"github.com/fyrsmithlabs/waqfqa/internal/locale"
)

var (
	// serverURL is the base URL for the waqfqa HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "waqfctl",
	Short: "CLI for waqfqa HTTP server operations",
	Long: `waqfctl is a command-line interface for the waqfqa HTTP server.
It asks corpus questions, runs chat sessions, uploads documents and checks
server health.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "waqfqa server URL")
	rootCmd.AddCommand(healthCmd)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check waqfqa server health",
	Long: `Check the health of the waqfqa HTTP server and the status of each
language corpus.

Examples:
  # Check health
  waqfctl health

  # Check health on a different server
  waqfctl health --server http://localhost:9090`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func runHealth(cmd *cobra.Command, _ []string) error {
	var resp httpserver.HealthResponse
	if err := newClient(serverURL).getJSON(cmd.Context(), "/health", &resp); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Server Status: %s\n", resp.Status)
	fmt.Fprintf(out, "Server URL: %s\n", serverURL)

	for _, l := range locale.All {
		if status, ok := resp.Languages[l]; ok {
			fmt.Fprintf(out, "Corpus %-8s %s\n", l.String()+":", status)
		}
	}
	return nil
}
