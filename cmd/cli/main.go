package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	apiURL string = "http://localhost:8787"
	output string = "text" // "text" or "json"
)

var rootCmd = &cobra.Command{
	Use:   "pulsefeed",
	Short: "Pulsefeed CLI - Inspect and operate the trend engine",
	Long: `Pulsefeed CLI provides command-line access to the trend engine.
Fetch trending lists, trigger a recompute, and inspect the refresh job.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", apiURL, "API server URL")
	rootCmd.PersistentFlags().StringVar(&output, "output", output, "Output format: text or json")

	rootCmd.AddCommand(trendingCmd)
	rootCmd.AddCommand(recomputeCmd)
	rootCmd.AddCommand(jobStateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
