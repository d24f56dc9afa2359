// Healthqa is the evidence-graded health question answering service.
//
// Usage:
//
//	# Serve the HTTP API
//	healthqa serve
//
//	# Serve MCP over stdio
//	healthqa mcp
//
//	# Load pre-chunked passages into the knowledge base
//	healthqa kb import passages.json
//
// Configuration is read from ~/.config/healthqa/config.yaml (or --config)
// and HEALTHQA_* environment variables. See internal/config for details.
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

var configPath string

var rootCmd = &cobra.Command{
	Use:   "healthqa",
	Short: "Evidence-graded health question answering service",
	Long: `healthqa answers health questions from a graded knowledge base.

It asks one clarification question when a query is too vague, then retrieves
passages, grades them into four evidence levels and composes a cited answer.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "healthqa %s\n", version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", gitCommit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.config/healthqa/config.yaml)")
	rootCmd.AddCommand(serveCmd, mcpCmd, kbCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
