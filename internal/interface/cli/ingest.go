package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	var (
		exchange string
		market   string
		symbol   string
		ticks    bool
	)
	cmd := &cobra.Command{
		Use:   "ingest <csv-file>",
		Short: "Ingest a local CSV file into the lake",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLake()
			if err != nil {
				return err
			}
			defer l.Close()

			if ticks {
				if err := l.pipeline.IngestTicksCSV(cmd.Context(), args[0], exchange, market, symbol); err != nil {
					return err
				}
			} else {
				if err := l.pipeline.IngestCSV(cmd.Context(), args[0], exchange, market, symbol); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ingested %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&exchange, "exchange", "", "exchange name (required)")
	cmd.Flags().StringVar(&market, "market", "spot", "market category")
	cmd.Flags().StringVar(&symbol, "symbol", "", "unified symbol (required)")
	cmd.Flags().BoolVar(&ticks, "ticks", false, "treat the file as tick data (ts,price,amount)")
	cmd.MarkFlagRequired("exchange")
	cmd.MarkFlagRequired("symbol")
	return cmd
}
