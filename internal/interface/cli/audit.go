package cli

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/candlelake/internal/audit"
)

func newAuditCmd() *cobra.Command {
	var prune bool
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Reconcile the manifest against the files on disk",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLake()
			if err != nil {
				return err
			}
			defer l.Close()

			auditor := audit.New(afero.NewOsFs(), globalConfig.DataRoot, l.manifest)
			report, err := auditor.Run(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, p := range report.Orphans {
				fmt.Fprintf(out, "orphan: %s\n", p)
			}
			for _, e := range report.Ghosts {
				fmt.Fprintf(out, "ghost: %s (manifest id %d)\n", e.Path, e.ID)
			}
			if report.Clean() {
				fmt.Fprintln(out, "catalog and filesystem agree")
			} else {
				fmt.Fprintf(out, "%d orphans, %d ghosts\n", len(report.Orphans), len(report.Ghosts))
			}

			if prune {
				if err := auditor.PruneEmptyDirs(); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&prune, "prune", false, "remove empty directories under the data root")
	return cmd
}
