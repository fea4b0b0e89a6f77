package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/pipewheel/pipewheel/pipeline"
	"github.com/pipewheel/pipewheel/run"
)

// PipelineCmd inspects and seeds pipelines
var PipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Inspect and seed pipelines",
	Long: `Inspect and seed pipelines.

Examples:
  pipewheel pipeline create "Nightly Sync" --org org-1
  pipewheel pipeline ls --org org-1
  pipewheel pipeline status <pipeline-id>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// PipelineCreateCmd creates a pipeline with a backing workflow
var PipelineCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a pipeline and its workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		org, _ := cmd.Flags().GetString("org")
		workflowName, _ := cmd.Flags().GetString("workflow-name")
		if org == "" {
			return fmt.Errorf("--org is required")
		}
		if workflowName == "" {
			workflowName = name + " workflow"
		}

		database, err := openDatabase("")
		if err != nil {
			return err
		}
		defer database.Close()

		ctx := context.Background()
		store := pipeline.NewStore(database)

		wf := &pipeline.Workflow{
			ID:   uuid.NewString(),
			Name: workflowName,
		}
		if err := store.CreateWorkflow(ctx, wf); err != nil {
			return fmt.Errorf("failed to create workflow: %w", err)
		}

		p := &pipeline.Pipeline{
			ID:             uuid.NewString(),
			Name:           name,
			WorkflowID:     wf.ID,
			OrganizationID: org,
			Active:         true,
			RunStatus:      pipeline.StatusCreated,
		}
		if err := store.CreatePipeline(ctx, p); err != nil {
			return fmt.Errorf("failed to create pipeline: %w", err)
		}

		pterm.Success.Printf("Pipeline %s created\n", p.Name)
		pterm.Info.Printf("  ID: %s\n", p.ID)
		pterm.Info.Printf("  Workflow: %s (%s)\n", wf.Name, wf.ID)
		pterm.Info.Printf("  Organization: %s\n", p.OrganizationID)
		return nil
	},
}

// PipelineLsCmd lists pipelines for an organization
var PipelineLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List pipelines for an organization",
	RunE: func(cmd *cobra.Command, args []string) error {
		org, _ := cmd.Flags().GetString("org")
		if org == "" {
			return fmt.Errorf("--org is required")
		}

		database, err := openDatabase("")
		if err != nil {
			return err
		}
		defer database.Close()

		store := pipeline.NewStore(database)
		pipelines, err := store.ListPipelines(context.Background(), org)
		if err != nil {
			return fmt.Errorf("failed to list pipelines: %w", err)
		}

		if len(pipelines) == 0 {
			fmt.Printf("No pipelines for organization %s\n", org)
			return nil
		}

		fmt.Printf("%-36s %-24s %-12s %-8s %s\n", "ID", "NAME", "STATUS", "ACTIVE", "LAST RUN")
		fmt.Printf("%-36s %-24s %-12s %-8s %s\n", "--", "----", "------", "------", "--------")
		for _, p := range pipelines {
			lastRun := "-"
			if p.LastRunAt != nil {
				lastRun = p.LastRunAt.Format("2006-01-02 15:04")
			}
			fmt.Printf("%-36s %-24s %-12s %-8t %s\n",
				p.ID, truncate(p.Name, 24), p.RunStatus, p.Active, lastRun)
		}

		fmt.Printf("\nTotal: %d pipelines\n", len(pipelines))
		return nil
	},
}

// PipelineStatusCmd shows a pipeline's run status and recent executions
var PipelineStatusCmd = &cobra.Command{
	Use:   "status <pipeline-id>",
	Short: "Show pipeline run status and recent executions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		database, err := openDatabase("")
		if err != nil {
			return err
		}
		defer database.Close()

		ctx := context.Background()
		store := pipeline.NewStore(database)
		p, err := store.GetPipeline(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to get pipeline: %w", err)
		}

		pterm.Info.Printf("Pipeline: %s (%s)\n", p.Name, p.ID)
		pterm.Info.Printf("  Organization: %s\n", p.OrganizationID)
		pterm.Info.Printf("  Active: %t\n", p.Active)
		pterm.Info.Printf("  Run status: %s\n", p.RunStatus)
		if p.LastRunAt != nil {
			pterm.Info.Printf("  Last run: %s\n", p.LastRunAt.Format(time.RFC3339))
		} else {
			pterm.Info.Println("  Last run: never")
		}

		executions, err := run.NewExecutionStore(database).ListExecutions(ctx, p.ID, limit)
		if err != nil {
			return fmt.Errorf("failed to list executions: %w", err)
		}
		if len(executions) == 0 {
			fmt.Println("\nNo executions recorded")
			return nil
		}

		fmt.Printf("\n%-36s %-10s %-20s %s\n", "EXECUTION", "STATUS", "STARTED", "DETAIL")
		fmt.Printf("%-36s %-10s %-20s %s\n", "---------", "------", "-------", "------")
		for _, e := range executions {
			detail := "-"
			if e.ErrorMessage != nil {
				detail = truncate(*e.ErrorMessage, 40)
			} else if e.ResultSummary != nil {
				detail = truncate(*e.ResultSummary, 40)
			}
			fmt.Printf("%-36s %-10s %-20s %s\n", e.ID, e.Status, e.StartedAt, detail)
		}
		return nil
	},
}

func init() {
	PipelineCreateCmd.Flags().String("org", "", "Organization ID (required)")
	PipelineCreateCmd.Flags().String("workflow-name", "", "Workflow name (defaults to pipeline name)")
	PipelineLsCmd.Flags().String("org", "", "Organization ID (required)")
	PipelineStatusCmd.Flags().Int("limit", 10, "Maximum number of executions to show")

	PipelineCmd.AddCommand(PipelineCreateCmd)
	PipelineCmd.AddCommand(PipelineLsCmd)
	PipelineCmd.AddCommand(PipelineStatusCmd)
}
