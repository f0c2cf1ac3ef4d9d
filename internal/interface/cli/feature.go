package cli

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/YoshitsuguKoike/candlelake/internal/features"
)

func newFeatureCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feature",
		Short: "Manage versioned feature-set artifacts",
	}
	cmd.AddCommand(newFeatureUploadCmd())
	cmd.AddCommand(newFeatureLatestCmd())
	cmd.AddCommand(newFeatureListCmd())
	return cmd
}

func featureStore(l *lake) *features.Store {
	return features.NewStore(afero.NewOsFs(), globalConfig.DataRoot, l.manifest)
}

func newFeatureUploadCmd() *cobra.Command {
	var (
		exchange   string
		symbol     string
		featureSet string
	)
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a feature artifact as the next version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLake()
			if err != nil {
				return err
			}
			defer l.Close()

			version, err := featureStore(l).Upload(cmd.Context(), args[0], exchange, symbol, featureSet)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s as %s v%d\n", args[0], featureSet, version)
			return nil
		},
	}
	cmd.Flags().StringVar(&exchange, "exchange", "", "exchange name (required)")
	cmd.Flags().StringVar(&symbol, "symbol", "", "unified symbol (required)")
	cmd.Flags().StringVar(&featureSet, "set", "", "feature-set name (required)")
	cmd.MarkFlagRequired("exchange")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("set")
	return cmd
}

func newFeatureLatestCmd() *cobra.Command {
	var (
		exchange   string
		symbol     string
		featureSet string
	)
	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Print the latest version of a feature set",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLake()
			if err != nil {
				return err
			}
			defer l.Close()

			version, err := featureStore(l).LatestVersion(cmd.Context(), exchange, symbol, featureSet)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d\n", version)
			return nil
		},
	}
	cmd.Flags().StringVar(&exchange, "exchange", "", "exchange name (required)")
	cmd.Flags().StringVar(&symbol, "symbol", "", "unified symbol (required)")
	cmd.Flags().StringVar(&featureSet, "set", "", "feature-set name (required)")
	cmd.MarkFlagRequired("exchange")
	cmd.MarkFlagRequired("symbol")
	cmd.MarkFlagRequired("set")
	return cmd
}

func newFeatureListCmd() *cobra.Command {
	var symbol string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List feature entries for a symbol",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLake()
			if err != nil {
				return err
			}
			defer l.Close()

			entries, err := featureStore(l).List(cmd.Context(), symbol)
			if err != nil {
				return err
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tv%s\t%s\n", e.Type, e.Version, e.Path)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&symbol, "symbol", "", "unified symbol (required)")
	cmd.MarkFlagRequired("symbol")
	return cmd
}
