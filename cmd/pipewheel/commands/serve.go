package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/pipewheel/pipewheel/config"
	"github.com/pipewheel/pipewheel/gate"
	"github.com/pipewheel/pipewheel/logger"
	"github.com/pipewheel/pipewheel/pipeline"
	"github.com/pipewheel/pipewheel/queue"
	"github.com/pipewheel/pipewheel/run"
	"github.com/pipewheel/pipewheel/schedule"
)

// ServeCmd runs the pipewheel daemon
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pipewheel scheduler daemon",
	Long: `Run the pipewheel daemon in foreground mode.

The daemon will:
- Start the worker pool that executes queued pipeline runs
- Start the schedule ticker that fires due schedule entries
- Watch the configuration file for changes
- Run until interrupted (Ctrl+C) with graceful shutdown

Example:
  pipewheel serve               # Run with configured worker count
  pipewheel serve --workers 3   # Run with 3 concurrent workers`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		workers, _ := cmd.Flags().GetInt("workers")
		if workers <= 0 {
			workers = cfg.Queue.Workers
		}

		database, err := openDatabase("")
		if err != nil {
			return err
		}
		defer database.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		pipelines := pipeline.NewStore(database)
		executions := run.NewExecutionStore(database)
		registry := schedule.NewRegistry(database, pipelines, logger.Logger)

		g := gate.New(gate.FromConfig(cfg), cfg.Entitlement.MaxChecksPerMinute, logger.Logger)
		runner := run.RunnerFromConfig(cfg)
		orchestrator := run.NewOrchestrator(
			pipelines, executions, g, runner, registry,
			cfg.Engine.UseFileHistory, logger.Logger,
		)

		pool := queue.NewWorkerPool(ctx, database, queue.WorkerPoolConfig{
			Workers:      workers,
			PollInterval: time.Duration(cfg.Queue.PollIntervalSeconds) * time.Second,
			MaxRetries:   cfg.Queue.MaxRetries,
		}, logger.Logger)
		pool.Registry().Register(run.NewHandler(orchestrator))
		pool.Start()

		ticker := schedule.NewTicker(ctx, registry, pool.GetQueue(), schedule.TickerConfig{
			Interval: time.Duration(cfg.Scheduler.TickerIntervalSeconds) * time.Second,
		}, logger.Logger)
		ticker.Start()

		if configPath := config.FindConfigFile(); configPath != "" {
			watcher, err := config.NewConfigWatcher(configPath)
			if err != nil {
				logger.Warnw("Config watcher unavailable, hot reload disabled", "error", err)
			} else {
				watcher.OnReload(func(updated *config.Config) error {
					logger.Infow("Configuration reloaded", "config", updated.String())
					return nil
				})
				watcher.Start()
				defer watcher.Stop()
			}
		}

		pterm.Success.Println("pipewheel daemon started")
		pterm.Info.Printf("  Workers: %d\n", pool.Workers())
		pterm.Info.Printf("  Ticker interval: %ds\n", cfg.Scheduler.TickerIntervalSeconds)
		pterm.Info.Printf("  Engine endpoint: %s\n", cfg.Engine.Endpoint)
		if cfg.Entitlement.Enabled {
			pterm.Info.Printf("  Entitlement oracle: %s\n", cfg.Entitlement.Endpoint)
		} else {
			pterm.Info.Println("  Entitlement oracle: disabled (gate open)")
		}
		pterm.Println()
		pterm.Info.Println("Press Ctrl+C for graceful shutdown")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		pterm.Info.Println("Shutting down...")

		// Stop components in reverse order of startup
		ticker.Stop()
		pool.Stop()
		cancel()

		pterm.Success.Println("pipewheel daemon stopped")
		return nil
	},
}

func init() {
	ServeCmd.Flags().Int("workers", 0, "Number of concurrent workers (overrides config)")
}
