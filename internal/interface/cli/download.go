package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/YoshitsuguKoike/candlelake/internal/infrastructure/exchange"
	"github.com/YoshitsuguKoike/candlelake/internal/ingest"
	"github.com/YoshitsuguKoike/candlelake/internal/orchestration"
)

func newOrchestrator(l *lake) *orchestration.Orchestrator {
	return orchestration.New(orchestration.Deps{
		Factory: func(ex, market string) (ingest.MarketClient, error) {
			return exchange.New(ex, market)
		},
		Pipeline:   l.pipeline,
		Log:        GetLogger(),
		MaxWorkers: globalConfig.MaxWorkers,
		SlotsPer:   globalConfig.ExchangeSlots,
	})
}

func newDownloadCmd() *cobra.Command {
	var req orchestration.Request
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download market history from an exchange",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLake()
			if err != nil {
				return err
			}
			defer l.Close()

			orch := newOrchestrator(l)
			task, err := orch.Submit(cmd.Context(), req)
			if err != nil {
				return err
			}
			orch.Wait()

			final, _ := orch.Get(task.ID)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%d rows)\n", final.Key, final.Message, final.Saved)
			if final.Status == orchestration.StatusFailed {
				return fmt.Errorf("download failed: %s", final.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Exchange, "exchange", "", "exchange name (required)")
	cmd.Flags().StringVar(&req.Market, "market", "spot", "market category")
	cmd.Flags().StringVar(&req.Symbol, "symbol", "", "unified symbol (required)")
	cmd.Flags().StringVar(&req.DataType, "data", "ohlcv", "data to download: ohlcv, funding or both")
	cmd.Flags().StringVar(&req.Timeframe, "timeframe", "1m", "candle timeframe")
	cmd.Flags().StringVar(&req.StartDate, "start", "", "ISO-8601 start date for first-time downloads")
	cmd.Flags().BoolVar(&req.FullHistory, "full-history", false, "probe the venue for the listing date")
	cmd.MarkFlagRequired("exchange")
	cmd.MarkFlagRequired("symbol")
	return cmd
}

// downloadPlan mirrors the YAML bulk download file.
type downloadPlan struct {
	Tasks []planTask `yaml:"tasks"`
}

type planTask struct {
	Exchange    string   `yaml:"exchange"`
	Market      string   `yaml:"market"`
	Symbols     []string `yaml:"symbols"`
	DataType    string   `yaml:"data_type"`
	Timeframe   string   `yaml:"timeframe"`
	StartDate   string   `yaml:"start_date"`
	FullHistory bool     `yaml:"full_history"`
}

func newDownloadPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download-plan <plan.yaml>",
		Short: "Run a YAML bulk download plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read plan %s: %w", args[0], err)
			}
			var plan downloadPlan
			if err := yaml.Unmarshal(data, &plan); err != nil {
				return fmt.Errorf("parse plan %s: %w", args[0], err)
			}
			if len(plan.Tasks) == 0 {
				return fmt.Errorf("plan %s contains no tasks", args[0])
			}

			l, err := openLake()
			if err != nil {
				return err
			}
			defer l.Close()

			orch := newOrchestrator(l)
			for _, t := range plan.Tasks {
				for _, symbol := range t.Symbols {
					_, err := orch.Submit(cmd.Context(), orchestration.Request{
						Exchange:    t.Exchange,
						Market:      t.Market,
						Symbol:      symbol,
						DataType:    t.DataType,
						Timeframe:   t.Timeframe,
						StartDate:   t.StartDate,
						FullHistory: t.FullHistory,
					})
					if err != nil {
						GetLogger().Error("submit %s %s failed: %v", t.Exchange, symbol, err)
					}
				}
			}
			orch.Wait()

			failed := 0
			for _, task := range orch.Tasks() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%d rows)\n", task.Key, task.Message, task.Saved)
				if task.Status == orchestration.StatusFailed {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d tasks failed", failed, len(orch.Tasks()))
			}
			return nil
		},
	}
}
