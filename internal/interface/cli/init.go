package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/candlelake/internal/infrastructure/persistence/sqlite"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the lake home directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, dir := range []string{globalConfig.Home, globalConfig.DataRoot, globalConfig.ExportDir} {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create %s: %w", dir, err)
				}
			}

			settingPath := filepath.Join(globalConfig.Home, "setting.json")
			if _, err := os.Stat(settingPath); os.IsNotExist(err) {
				if err := os.WriteFile(settingPath, []byte("{}\n"), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", settingPath, err)
				}
				GetLogger().Info("created %s", settingPath)
			}

			db, err := sqlite.Open(globalConfig.ManifestPath)
			if err != nil {
				return err
			}
			defer db.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "initialized lake at %s\n", globalConfig.Home)
			return nil
		},
	}
}
