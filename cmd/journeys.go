package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/growthsignal/attribution-cli/internal/journey"
)

var (
	journeysStartDate string
	journeysEndDate   string
)

var journeysCmd = &cobra.Command{
	Use:   "journeys",
	Short: "Build customer journeys and print statistics",
	Long:  "Builds journeys for the optional conversion date range without calling the scoring API, then prints journey statistics and any data-quality warnings.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := journey.ValidateDateRange(journeysStartDate, journeysEndDate); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "database setup failed")
		}

		builder := journey.NewBuilder(st)
		rows, err := builder.Build(ctx, journeysStartDate, journeysEndDate)
		if err != nil {
			return err
		}

		out := struct {
			Stats    any `json:"stats"`
			Warnings any `json:"warnings"`
		}{
			Stats:    journey.Stats(rows),
			Warnings: journey.Validate(rows),
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(out), "encode journey stats")
	},
}

func init() {
	journeysCmd.Flags().StringVar(&journeysStartDate, "start-date", "", "conversion start date (YYYY-MM-DD, inclusive)")
	journeysCmd.Flags().StringVar(&journeysEndDate, "end-date", "", "conversion end date (YYYY-MM-DD, inclusive)")
	rootCmd.AddCommand(journeysCmd)
}
