package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/candlelake/internal/adapter/gateway/storage"
	"github.com/YoshitsuguKoike/candlelake/internal/infrastructure/storage/partition"
)

func newOffloadCmd() *cobra.Command {
	var (
		before string
		run    bool
	)
	cmd := &cobra.Command{
		Use:   "offload",
		Short: "Copy cold partitions to S3",
		Long: `Copy partition files whose content ended before a cutoff date to the
configured S3 bucket. Local files are kept; pass --run to actually upload,
otherwise the candidate list is printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if globalConfig.Offload.Bucket == "" {
				return fmt.Errorf("no offload bucket configured; set offload_bucket in setting.json")
			}
			cutoffMS, err := partition.ParseISOMillis(before)
			if err != nil {
				return fmt.Errorf("parse --before: %w", err)
			}

			l, err := openLake()
			if err != nil {
				return err
			}
			defer l.Close()

			gw, err := storage.NewOffloadGateway(cmd.Context(),
				globalConfig.Offload.Bucket, globalConfig.Offload.Prefix, globalConfig.Offload.Region)
			if err != nil {
				return err
			}

			results, err := gw.OffloadBefore(cmd.Context(), l.manifest, globalConfig.DataRoot,
				time.UnixMilli(cutoffMS).UTC(), !run)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			uploaded := 0
			for _, r := range results {
				if r.Uploaded {
					uploaded++
					fmt.Fprintf(out, "uploaded %s -> s3://%s/%s\n", r.Path, globalConfig.Offload.Bucket, r.Key)
				} else {
					fmt.Fprintf(out, "skipped %s (%s)\n", r.Path, r.Skipped)
				}
			}
			fmt.Fprintf(out, "%d candidates, %d uploaded\n", len(results), uploaded)
			return nil
		},
	}
	cmd.Flags().StringVar(&before, "before", "", "offload partitions ending before this ISO-8601 date (required)")
	cmd.Flags().BoolVar(&run, "run", false, "perform the uploads instead of a dry run")
	cmd.MarkFlagRequired("before")
	return cmd
}
