package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/candlelake/internal/aggregate"
)

func newAggregateCmd() *cobra.Command {
	var (
		exchange  string
		symbol    string
		timeframe string
		start     string
		end       string
	)
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Resample raw 1m candles into a coarser timeframe",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLake()
			if err != nil {
				return err
			}
			defer l.Close()

			agg := aggregate.New(l.reader, l.writer, l.manifest)
			n, err := agg.AggregateOHLC(cmd.Context(), exchange, symbol, timeframe, start, end)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d %s candles\n", n, timeframe)
			return nil
		},
	}
	cmd.Flags().StringVar(&exchange, "exchange", "", "exchange name (required)")
	cmd.Flags().StringVar(&symbol, "symbol", "", "unified symbol (required)")
	cmd.Flags().StringVar(&timeframe, "timeframe", "1h", "target timeframe")
	cmd.Flags().StringVar(&start, "start", "", "ISO-8601 range start (required)")
	cmd.Flags().StringVar(&end, "end", "", "ISO-8601 range end (required)")
	cmd.MarkFlagRequired("exchange")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}
