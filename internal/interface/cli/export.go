package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/candlelake/internal/domain/repository"
	"github.com/YoshitsuguKoike/candlelake/internal/export"
)

func newExportCmd() *cobra.Command {
	var (
		exchange string
		market   string
		symbol   string
		dataType string
		period   string
		start    string
		end      string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export candles as charting-tool CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLake()
			if err != nil {
				return err
			}
			defer l.Close()

			exporter := export.NewExporter(l.reader, globalConfig.ExportDir)
			path, n, err := exporter.ExportCSV(exchange, market, symbol, dataType, period, start, end)
			if err != nil {
				return err
			}
			if n == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no candles in range, nothing exported")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d rows to %s\n", n, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&exchange, "exchange", "", "exchange name (required)")
	cmd.Flags().StringVar(&market, "market", "spot", "market category")
	cmd.Flags().StringVar(&symbol, "symbol", "", "unified symbol (required)")
	cmd.Flags().StringVar(&dataType, "type", repository.DataTypeRaw, "data type: raw or agg")
	cmd.Flags().StringVar(&period, "period", "1m", "timeframe of the stored series")
	cmd.Flags().StringVar(&start, "start", "", "ISO-8601 range start (required)")
	cmd.Flags().StringVar(&end, "end", "", "ISO-8601 range end (required)")
	cmd.MarkFlagRequired("exchange")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}
