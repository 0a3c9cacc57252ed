package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Provision the database schema and verify tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "database setup failed")
		}

		statuses, err := st.VerifyTables(ctx)
		if err != nil {
			return err
		}

		for _, ts := range statuses {
			if ts.Exists {
				zap.L().Info("table ready", zap.String("table", ts.Name), zap.Int64("rows", ts.Rows))
			} else {
				zap.L().Warn("table missing", zap.String("table", ts.Name))
			}
		}
		zap.L().Info("database setup completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
