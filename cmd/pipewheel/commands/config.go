package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/pipewheel/pipewheel/config"
)

// ConfigCmd shows the resolved configuration
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show resolved configuration",
	Long: `Show the resolved configuration.

Configuration is merged from (lowest to highest precedence):
  /etc/pipewheel/pipewheel.toml
  ~/.pipewheel/pipewheel.toml
  ./pipewheel.toml (searched upward from the working directory)
  PIPEWHEEL_* environment variables`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if path := config.FindConfigFile(); path != "" {
			pterm.Info.Printf("Config file: %s\n", path)
		} else {
			pterm.Info.Println("Config file: none (defaults only)")
		}

		fmt.Printf("Database path:        %s\n", cfg.GetDatabasePath())
		fmt.Printf("Log JSON:             %t\n", cfg.Log.JSON)
		fmt.Printf("Queue workers:        %d\n", cfg.Queue.Workers)
		fmt.Printf("Queue poll interval:  %ds\n", cfg.Queue.PollIntervalSeconds)
		fmt.Printf("Queue max retries:    %d\n", cfg.Queue.MaxRetries)
		fmt.Printf("Ticker interval:      %ds\n", cfg.Scheduler.TickerIntervalSeconds)
		fmt.Printf("Engine endpoint:      %s\n", cfg.Engine.Endpoint)
		fmt.Printf("Engine file history:  %t\n", cfg.Engine.UseFileHistory)
		fmt.Printf("Entitlement enabled:  %t\n", cfg.Entitlement.Enabled)
		if cfg.Entitlement.Enabled {
			fmt.Printf("Entitlement endpoint: %s\n", cfg.Entitlement.Endpoint)
			fmt.Printf("Entitlement rate:     %d checks/min\n", cfg.Entitlement.MaxChecksPerMinute)
		}
		return nil
	},
}
