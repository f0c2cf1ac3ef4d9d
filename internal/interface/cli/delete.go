package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/candlelake/internal/domain/repository"
	"github.com/YoshitsuguKoike/candlelake/internal/infrastructure/storage/partition"
)

func newDeleteCmd() *cobra.Command {
	var (
		exchange  string
		market    string
		dataType  string
		keepFiles bool
	)
	cmd := &cobra.Command{
		Use:   "delete <symbol>",
		Short: "Remove a symbol's entries from the manifest and its files from disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLake()
			if err != nil {
				return err
			}
			defer l.Close()

			paths, err := l.manifest.DeleteEntries(cmd.Context(), args[0], repository.Filter{
				Exchange: exchange,
				Market:   market,
				DataType: dataType,
			})
			if err != nil {
				return err
			}

			removed := 0
			if !keepFiles {
				for _, p := range paths {
					resolved := partition.ResolvePath(globalConfig.DataRoot, p)
					if err := os.Remove(resolved); err != nil {
						if !os.IsNotExist(err) {
							GetLogger().Warn("remove %s failed: %v", resolved, err)
						}
						continue
					}
					removed++
					pruneEmptyParents(filepath.Dir(resolved), globalConfig.DataRoot)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d manifest entries, %d files\n", len(paths), removed)
			return nil
		},
	}
	cmd.Flags().StringVar(&exchange, "exchange", "", "restrict to one exchange")
	cmd.Flags().StringVar(&market, "market", "", "restrict to one market category")
	cmd.Flags().StringVar(&dataType, "type", "", "restrict to one data type")
	cmd.Flags().BoolVar(&keepFiles, "keep-files", false, "remove manifest entries only")
	return cmd
}

// pruneEmptyParents removes now-empty directories up to (not including) stop.
func pruneEmptyParents(dir, stop string) {
	stop = filepath.Clean(stop)
	for {
		dir = filepath.Clean(dir)
		if dir == stop || dir == "." || dir == string(filepath.Separator) || !strings.HasPrefix(dir, stop) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}
