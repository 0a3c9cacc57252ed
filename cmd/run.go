package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/growthsignal/attribution-cli/internal/journey"
	"github.com/growthsignal/attribution-cli/internal/pipeline"
)

var (
	runStartDate string
	runEndDate   string
	runNoExport  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full attribution pipeline",
	Long: `Builds customer journeys for the optional conversion date range, scores
them in batches via the IHC API, persists attribution results, recomputes the
channel aggregate after each batch, and exports the channel report.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Reject bad date input before any stage executes.
		if err := journey.ValidateDateRange(runStartDate, runEndDate); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		client, err := initClient()
		if err != nil {
			return err
		}

		runner := pipeline.NewRunner(cfg, st, client)
		summary, err := runner.Run(ctx, runStartDate, runEndDate)
		if err != nil {
			return err
		}

		if !runNoExport {
			if err := pipeline.Export(ctx, st, cfg.Report); err != nil {
				return err
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(summary), "encode run summary")
	},
}

func init() {
	runCmd.Flags().StringVar(&runStartDate, "start-date", "", "conversion start date (YYYY-MM-DD, inclusive)")
	runCmd.Flags().StringVar(&runEndDate, "end-date", "", "conversion end date (YYYY-MM-DD, inclusive)")
	runCmd.Flags().BoolVar(&runNoExport, "no-export", false, "skip the report export step")
	rootCmd.AddCommand(runCmd)
}
