package cmd

import (
	"fmt"

	"github.com/mabhi256/refwatch/internal/analysis"
	"github.com/mabhi256/refwatch/internal/report"
	"github.com/spf13/cobra"
)

var (
	reportOutput string
	reportLimit  int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate an HTML report from stored leak results",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Analysis.InMemory {
			return fmt.Errorf("the result store is in-memory, nothing to report")
		}

		store, err := analysis.OpenStore(analysis.StoreConfig{Path: cfg.Analysis.StorePath})
		if err != nil {
			return err
		}
		defer store.Close()

		results, err := store.List(reportLimit)
		if err != nil {
			return err
		}
		if results == nil {
			results = []analysis.Result{}
		}

		path, err := report.GenerateHTMLReport(results, reportOutput)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "📊 Report with %d leaks written to %s\n", len(results), path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Output HTML file")
	reportCmd.Flags().IntVar(&reportLimit, "limit", 0, "Only include the most recent N results (0 for all)")
}
