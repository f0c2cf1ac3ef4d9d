package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/candlelake/internal/domain/repository"
)

func newReadCmd() *cobra.Command {
	var (
		exchange string
		symbol   string
		dataType string
		start    string
		end      string
	)
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Print candles for a symbol and time range",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLake()
			if err != nil {
				return err
			}
			defer l.Close()

			candles, err := l.reader.ReadCandleRange(exchange, symbol, dataType, start, end)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "ts,open,high,low,close,volume")
			for _, c := range candles {
				fmt.Fprintf(out, "%s,%g,%g,%g,%g,%g\n",
					time.UnixMilli(c.Ts).UTC().Format(time.RFC3339), c.Open, c.High, c.Low, c.Close, c.Volume)
			}
			GetLogger().Info("read %d candles", len(candles))
			return nil
		},
	}
	cmd.Flags().StringVar(&exchange, "exchange", "", "exchange name (required)")
	cmd.Flags().StringVar(&symbol, "symbol", "", "unified symbol (required)")
	cmd.Flags().StringVar(&dataType, "type", repository.DataTypeRaw, "data type: raw, agg or ticks")
	cmd.Flags().StringVar(&start, "start", "", "ISO-8601 range start (required)")
	cmd.Flags().StringVar(&end, "end", "", "ISO-8601 range end (required)")
	cmd.MarkFlagRequired("exchange")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}

func newSymbolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "symbols",
		Short: "List symbols present in the lake",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLake()
			if err != nil {
				return err
			}
			defer l.Close()

			symbols, err := l.reader.ListSymbols()
			if err != nil {
				return err
			}
			for _, s := range symbols {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
}
