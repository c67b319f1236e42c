package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	clusterFile string
	verbose     bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "hutch",
		Short: "OpenHutch - Container Provisioning Orchestrator",
		Long: `OpenHutch provisions declared compute containers on an LXC host,
including GPU and accelerator device passthrough.

Features:
  - Idempotent stage pipeline tracked by durable markers
  - Deterministic device passthrough planning
  - Bounded retry with transient/permanent error classification
  - Per-container rollback on unrecoverable failure
  - Re-runnable: completed work is skipped, not repeated`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&clusterFile, "cluster", "c", "cluster.yaml", "cluster file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	// Add subcommands
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newProvisionCommand())
	rootCmd.AddCommand(newMarkersCommand())
	rootCmd.AddCommand(newTeardownCommand())

	return rootCmd
}
