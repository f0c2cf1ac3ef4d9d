// Package cli wires the lake's commands onto a cobra command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/candlelake/internal/app/config"
)

// globalConfig holds the loaded configuration for all commands
var globalConfig config.AppConfig

// NewRoot builds the candlelake command tree.
func NewRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "candlelake",
		Short: "Cryptocurrency market data lake",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load configuration before any command runs
			// Priority: setting.json > defaults
			baseDir := ".candlelake"
			if home := os.Getenv("CANDLELAKE_HOME"); home != "" {
				baseDir = home
			}

			cfg, err := config.LoadSettings(baseDir)
			if err != nil {
				// Continue with defaults if loading fails
				cfg = config.Default(baseDir)
			}
			globalConfig = cfg
			InitGlobalLogger(cfg.StderrLevel)
			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newDownloadCmd())
	cmd.AddCommand(newDownloadPlanCmd())
	cmd.AddCommand(newReadCmd())
	cmd.AddCommand(newSymbolsCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newFeatureCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newAggregateCmd())
	cmd.AddCommand(newAuditCmd())
	cmd.AddCommand(newOffloadCmd())
	return cmd
}
