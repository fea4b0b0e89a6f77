package commands

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/pipewheel/pipewheel/logger"
	"github.com/pipewheel/pipewheel/pipeline"
	"github.com/pipewheel/pipewheel/schedule"
)

// ScheduleCmd manages schedule entries
var ScheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage pipeline schedule entries",
	Long: `Manage the schedule registry.

Each entry binds a name (the pipeline ID for pipeline runs) to a five-field
cron expression. Entries with the same recurrence share one crontab row.

Examples:
  pipewheel schedule add pipe-1 "0 3 * * *" --args '["org-1","pipe-1","nightly"]'
  pipewheel schedule ls
  pipewheel schedule disable pipe-1
  pipewheel schedule enable pipe-1
  pipewheel schedule rm pipe-1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// ScheduleAddCmd registers or updates a schedule entry
var ScheduleAddCmd = &cobra.Command{
	Use:   "add <name> <cron>",
	Short: "Register or update a schedule entry",
	Long: `Register a schedule entry, or update it if the name already exists.

The cron expression must have exactly five fields:
minute hour day-of-month month day-of-week.

Examples:
  pipewheel schedule add pipe-1 "0 3 * * *" --args '["org-1","pipe-1","nightly"]'
  pipewheel schedule add pipe-2 "*/15 * * * *" --disabled`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, cronExpr := args[0], args[1]
		handlerName, _ := cmd.Flags().GetString("handler")
		argsJSON, _ := cmd.Flags().GetString("args")
		disabled, _ := cmd.Flags().GetBool("disabled")

		if argsJSON != "" && !json.Valid([]byte(argsJSON)) {
			return fmt.Errorf("--args must be valid JSON")
		}

		database, err := openDatabase("")
		if err != nil {
			return err
		}
		defer database.Close()

		registry := newScheduleRegistry(database)
		entry, err := registry.Upsert(context.Background(), name, cronExpr,
			handlerName, json.RawMessage(argsJSON), !disabled)
		if err != nil {
			return fmt.Errorf("failed to register schedule: %w", err)
		}

		pterm.Success.Printf("Schedule entry %s registered\n", entry.Name)
		pterm.Info.Printf("  Cron: %s\n", entry.Crontab.String())
		pterm.Info.Printf("  Handler: %s\n", entry.HandlerName)
		pterm.Info.Printf("  Enabled: %t\n", entry.Enabled)
		if entry.NextRunAt != nil {
			pterm.Info.Printf("  Next run: %s\n", entry.NextRunAt.Format("2006-01-02 15:04:05 MST"))
		}
		return nil
	},
}

// ScheduleLsCmd lists schedule entries
var ScheduleLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List schedule entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase("")
		if err != nil {
			return err
		}
		defer database.Close()

		registry := newScheduleRegistry(database)
		entries, err := registry.List(context.Background())
		if err != nil {
			return fmt.Errorf("failed to list schedules: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("No schedule entries")
			return nil
		}

		fmt.Printf("%-24s %-16s %-16s %-8s %s\n", "NAME", "CRON", "HANDLER", "ENABLED", "NEXT RUN")
		fmt.Printf("%-24s %-16s %-16s %-8s %s\n", "----", "----", "-------", "-------", "--------")
		for _, entry := range entries {
			nextRun := "-"
			if entry.NextRunAt != nil {
				nextRun = entry.NextRunAt.Format("2006-01-02 15:04")
			}
			fmt.Printf("%-24s %-16s %-16s %-8t %s\n",
				truncate(entry.Name, 24),
				entry.Crontab.String(),
				truncate(entry.HandlerName, 16),
				entry.Enabled,
				nextRun)
		}

		fmt.Printf("\nTotal: %d entries\n", len(entries))
		return nil
	},
}

// ScheduleEnableCmd enables a schedule entry
var ScheduleEnableCmd = &cobra.Command{
	Use:   "enable <name>",
	Short: "Enable a schedule entry (pipeline transitions to RESTARTING)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setScheduleEnabled(args[0], true)
	},
}

// ScheduleDisableCmd disables a schedule entry
var ScheduleDisableCmd = &cobra.Command{
	Use:   "disable <name>",
	Short: "Disable a schedule entry (pipeline transitions to PAUSED)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setScheduleEnabled(args[0], false)
	},
}

// ScheduleRmCmd removes a schedule entry
var ScheduleRmCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Remove a schedule entry",
	Long: `Remove a schedule entry. Removing a name that was never registered
is not an error. The shared crontab recurrence is kept for other entries.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, err := openDatabase("")
		if err != nil {
			return err
		}
		defer database.Close()

		registry := newScheduleRegistry(database)
		if err := registry.Delete(context.Background(), args[0]); err != nil {
			return fmt.Errorf("failed to remove schedule: %w", err)
		}

		pterm.Success.Printf("Schedule entry %s removed\n", args[0])
		return nil
	},
}

func setScheduleEnabled(name string, enabled bool) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	registry := newScheduleRegistry(database)
	if err := registry.SetEnabled(context.Background(), name, enabled); err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}

	if enabled {
		pterm.Success.Printf("Schedule entry %s enabled\n", name)
	} else {
		pterm.Success.Printf("Schedule entry %s disabled\n", name)
	}
	return nil
}

func newScheduleRegistry(database *sql.DB) *schedule.Registry {
	return schedule.NewRegistry(database, pipeline.NewStore(database), logger.Logger)
}

func init() {
	ScheduleAddCmd.Flags().String("handler", "pipeline.run", "Handler name for fired jobs")
	ScheduleAddCmd.Flags().String("args", "", "JSON array of handler arguments")
	ScheduleAddCmd.Flags().Bool("disabled", false, "Register the entry disabled")

	ScheduleCmd.AddCommand(ScheduleAddCmd)
	ScheduleCmd.AddCommand(ScheduleLsCmd)
	ScheduleCmd.AddCommand(ScheduleEnableCmd)
	ScheduleCmd.AddCommand(ScheduleDisableCmd)
	ScheduleCmd.AddCommand(ScheduleRmCmd)
}

// truncate shortens a string for table display
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
