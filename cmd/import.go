package main

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/growthsignal/attribution-cli/internal/model"
	"github.com/growthsignal/attribution-cli/internal/store"
)

var (
	importSessions    string
	importConversions string
	importCosts       string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load session, conversion and cost CSV files into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if importSessions == "" && importConversions == "" && importCosts == "" {
			return eris.New("nothing to import: pass --sessions, --conversions and/or --costs")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "database setup failed")
		}

		if importSessions != "" {
			sessions, err := readSessionsCSV(importSessions)
			if err != nil {
				return err
			}
			n, err := st.InsertSessions(ctx, sessions)
			if err != nil {
				return err
			}
			zap.L().Info("imported sessions", zap.Int("rows", n))
		}

		if importConversions != "" {
			conversions, err := readConversionsCSV(importConversions)
			if err != nil {
				return err
			}
			n, err := st.InsertConversions(ctx, conversions)
			if err != nil {
				return err
			}
			zap.L().Info("imported conversions", zap.Int("rows", n))
		}

		if importCosts != "" {
			costs, err := readCostsCSV(importCosts)
			if err != nil {
				return err
			}
			n, err := st.InsertSessionCosts(ctx, costs)
			if err != nil {
				return err
			}
			zap.L().Info("imported session costs", zap.Int("rows", n))
		}

		return nil
	},
}

// readCSV reads a headered CSV and returns a column-name index plus records.
func readCSV(path string, required []string) (map[string]int, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "open csv %s", path)
	}
	defer f.Close() //nolint:errcheck

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, eris.Wrapf(err, "read csv %s", path)
	}
	if len(records) == 0 {
		return nil, nil, eris.Errorf("csv %s is empty", path)
	}

	cols := map[string]int{}
	for i, name := range records[0] {
		cols[name] = i
	}
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			return nil, nil, eris.Errorf("csv %s missing column %q", path, name)
		}
	}
	return cols, records[1:], nil
}

func readSessionsCSV(path string) ([]model.Session, error) {
	cols, records, err := readCSV(path, []string{
		"session_id", "user_id", "event_date", "event_time", "channel_name",
		"holder_engagement", "closer_engagement", "impression_interaction",
	})
	if err != nil {
		return nil, err
	}

	sessions := make([]model.Session, 0, len(records))
	for i, rec := range records {
		holder, err := strconv.Atoi(rec[cols["holder_engagement"]])
		if err != nil {
			return nil, eris.Wrapf(err, "row %d: holder_engagement", i+2)
		}
		closer, err := strconv.Atoi(rec[cols["closer_engagement"]])
		if err != nil {
			return nil, eris.Wrapf(err, "row %d: closer_engagement", i+2)
		}
		impression, err := strconv.Atoi(rec[cols["impression_interaction"]])
		if err != nil {
			return nil, eris.Wrapf(err, "row %d: impression_interaction", i+2)
		}
		sessions = append(sessions, model.Session{
			SessionID:             rec[cols["session_id"]],
			UserID:                rec[cols["user_id"]],
			EventDate:             rec[cols["event_date"]],
			EventTime:             rec[cols["event_time"]],
			ChannelName:           rec[cols["channel_name"]],
			HolderEngagement:      holder,
			CloserEngagement:      closer,
			ImpressionInteraction: impression,
		})
	}
	return sessions, nil
}

func readConversionsCSV(path string) ([]model.Conversion, error) {
	cols, records, err := readCSV(path, []string{"conv_id", "user_id", "conv_date", "conv_time", "revenue"})
	if err != nil {
		return nil, err
	}

	conversions := make([]model.Conversion, 0, len(records))
	for i, rec := range records {
		revenue, err := strconv.ParseFloat(rec[cols["revenue"]], 64)
		if err != nil {
			return nil, eris.Wrapf(err, "row %d: revenue", i+2)
		}
		conversions = append(conversions, model.Conversion{
			ConvID:   rec[cols["conv_id"]],
			UserID:   rec[cols["user_id"]],
			ConvDate: rec[cols["conv_date"]],
			ConvTime: rec[cols["conv_time"]],
			Revenue:  revenue,
		})
	}
	return conversions, nil
}

func readCostsCSV(path string) ([]store.SessionCost, error) {
	cols, records, err := readCSV(path, []string{"session_id", "cost"})
	if err != nil {
		return nil, err
	}

	costs := make([]store.SessionCost, 0, len(records))
	for i, rec := range records {
		cost := 0.0
		if raw := rec[cols["cost"]]; raw != "" {
			cost, err = strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, eris.Wrapf(err, "row %d: cost", i+2)
			}
		}
		costs = append(costs, store.SessionCost{
			SessionID: rec[cols["session_id"]],
			Cost:      cost,
		})
	}
	return costs, nil
}

func init() {
	importCmd.Flags().StringVar(&importSessions, "sessions", "", "session_sources CSV path")
	importCmd.Flags().StringVar(&importConversions, "conversions", "", "conversions CSV path")
	importCmd.Flags().StringVar(&importCosts, "costs", "", "session_costs CSV path")
	rootCmd.AddCommand(importCmd)
}
