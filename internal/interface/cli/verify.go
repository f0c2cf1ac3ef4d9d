package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/candlelake/internal/ingest"
)

func newVerifyCmd() *cobra.Command {
	var (
		exchange  string
		market    string
		symbol    string
		timeframe string
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify continuity of a stored candle series",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLake()
			if err != nil {
				return err
			}
			defer l.Close()

			report := l.pipeline.VerifyIntegrity(cmd.Context(), exchange, symbol, market, timeframe)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "status: %s\n", report.Status)
			fmt.Fprintf(out, "message: %s\n", report.Message)
			fmt.Fprintf(out, "rows: %d gaps: %d overlaps: %d interval_ms: %d\n",
				report.RowCount, report.GapCount, report.OverlapCount, report.IntervalMS)
			if report.Status == ingest.StatusError {
				return fmt.Errorf("verification failed: %s", report.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&exchange, "exchange", "", "exchange name (required)")
	cmd.Flags().StringVar(&market, "market", "spot", "market category")
	cmd.Flags().StringVar(&symbol, "symbol", "", "unified symbol (required)")
	cmd.Flags().StringVar(&timeframe, "timeframe", "1m", "candle timeframe")
	cmd.MarkFlagRequired("exchange")
	cmd.MarkFlagRequired("symbol")
	return cmd
}
