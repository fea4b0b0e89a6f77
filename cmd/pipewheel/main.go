package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pipewheel/pipewheel/cmd/pipewheel/commands"
	"github.com/pipewheel/pipewheel/config"
	"github.com/pipewheel/pipewheel/logger"
)

var rootCmd = &cobra.Command{
	Use:   "pipewheel",
	Short: "pipewheel - scheduled pipeline execution control",
	Long: `pipewheel - scheduled pipeline execution control.

pipewheel keeps a registry of cron schedules for data pipelines, fires due
schedules into a persistent job queue, and orchestrates each pipeline run
against the workflow engine with entitlement gating and status tracking.

Available commands:
  serve     - Run the scheduler daemon (ticker + worker pool)
  schedule  - Manage schedule entries (add, ls, enable, disable, rm)
  pipeline  - Inspect and seed pipelines
  jobs      - Inspect the job queue
  config    - Show resolved configuration
  version   - Show version information

Examples:
  pipewheel serve                                   # Run the daemon
  pipewheel schedule add pipe-1 "0 3 * * *" ...     # Register a schedule
  pipewheel schedule ls                             # List schedule entries
  pipewheel pipeline status pipe-1                  # Show pipeline run status`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize the global logger before any command runs. Config may
		// be absent; defaults still decide the output format.
		cfg, err := config.Load()
		jsonOutput := false
		if err == nil {
			jsonOutput = cfg.Log.JSON
		}
		if err := logger.Initialize(jsonOutput); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.ScheduleCmd)
	rootCmd.AddCommand(commands.PipelineCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
