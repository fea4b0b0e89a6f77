package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/pipewheel/pipewheel/queue"
)

// JobsCmd inspects the job queue
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect the job queue",
	Long: `Inspect the persistent job queue.

Examples:
  pipewheel jobs ls                   # List recent jobs
  pipewheel jobs ls --status failed   # List failed jobs
  pipewheel jobs stats                # Show queue counters`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// JobsLsCmd lists queue jobs
var JobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List queue jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFilter, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		var status *queue.JobStatus
		if statusFilter != "" {
			if !queue.IsValidStatus(statusFilter) {
				return fmt.Errorf("invalid status %q (expected queued, running, completed, failed or cancelled)", statusFilter)
			}
			s := queue.JobStatus(statusFilter)
			status = &s
		}

		database, err := openDatabase("")
		if err != nil {
			return err
		}
		defer database.Close()

		jobs, err := queue.NewQueue(database).ListJobs(status, limit)
		if err != nil {
			return fmt.Errorf("failed to list jobs: %w", err)
		}

		if len(jobs) == 0 {
			fmt.Println("No jobs found")
			return nil
		}

		fmt.Printf("%-36s %-16s %-24s %-10s %s\n", "ID", "HANDLER", "SOURCE", "STATUS", "UPDATED")
		fmt.Printf("%-36s %-16s %-24s %-10s %s\n", "--", "-------", "------", "------", "-------")
		for _, job := range jobs {
			fmt.Printf("%-36s %-16s %-24s %-10s %s\n",
				job.ID,
				truncate(job.HandlerName, 16),
				truncate(job.Source, 24),
				job.Status,
				job.UpdatedAt.Format("2006-01-02 15:04:05"))
		}

		fmt.Printf("\nTotal: %d jobs\n", len(jobs))
		return nil
	},
}

// JobsStatsCmd shows queue counters
var JobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show queue counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase("")
		if err != nil {
			return err
		}
		defer database.Close()

		stats, err := queue.NewQueue(database).GetStats()
		if err != nil {
			return fmt.Errorf("failed to get queue stats: %w", err)
		}

		pterm.Info.Println("Job queue stats")
		fmt.Printf("  Queued:    %d\n", stats.Queued)
		fmt.Printf("  Running:   %d\n", stats.Running)
		fmt.Printf("  Completed: %d\n", stats.Completed)
		fmt.Printf("  Failed:    %d\n", stats.Failed)
		fmt.Printf("  Cancelled: %d\n", stats.Cancelled)
		fmt.Printf("  Total:     %d\n", stats.Total)
		return nil
	},
}

func init() {
	JobsLsCmd.Flags().String("status", "", "Filter by status (queued, running, completed, failed, cancelled)")
	JobsLsCmd.Flags().Int("limit", 50, "Maximum number of jobs to show")

	JobsCmd.AddCommand(JobsLsCmd)
	JobsCmd.AddCommand(JobsStatsCmd)
}
