package main

import (
	"github.com/spf13/cobra"

	"github.com/growthsignal/attribution-cli/internal/pipeline"
)

var (
	exportOutput string
	exportFormat string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the channel report from the current aggregate state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		reportCfg := cfg.Report
		if exportOutput != "" {
			reportCfg.OutputPath = exportOutput
		}
		if exportFormat != "" {
			reportCfg.Format = exportFormat
		}

		return pipeline.Export(ctx, st, reportCfg)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOutput, "output", "", "report output path (default from config)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "report format: csv or xlsx (default from config)")
	rootCmd.AddCommand(exportCmd)
}
