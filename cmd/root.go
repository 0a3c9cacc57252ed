package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/growthsignal/attribution-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "attribution-cli",
	Short: "Multi-touch marketing attribution pipeline",
	Long:  "Builds customer journeys from session and conversion data, scores them in batches via the IHC attribution API, and aggregates per-channel daily reporting with CPO and ROAS.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
