package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/growthsignal/attribution-cli/internal/journey"
	"github.com/growthsignal/attribution-cli/internal/pipeline"
	"github.com/growthsignal/attribution-cli/internal/store"
)

var servePort int

// buildMux wires the HTTP routes over the given store and runner.
func buildMux(st store.Store, runner *pipeline.Runner) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"}) //nolint:errcheck
	})

	mux.HandleFunc("GET /report", func(w http.ResponseWriter, r *http.Request) {
		rows, err := pipeline.BuildReport(r.Context(), st)
		if err != nil {
			zap.L().Error("report request failed", zap.Error(err))
			http.Error(w, `{"error":"report unavailable"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rows) //nolint:errcheck
	})

	mux.HandleFunc("POST /runs", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			StartDate string `json:"start_date"`
			EndDate   string `json:"end_date"`
		}
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
				return
			}
		}
		if err := journey.ValidateDateRange(req.StartDate, req.EndDate); err != nil {
			http.Error(w, `{"error":"invalid date range"}`, http.StatusBadRequest)
			return
		}

		// Each request blocks until its run completes.
		summary, err := runner.Run(r.Context(), req.StartDate, req.EndDate)
		if err != nil {
			zap.L().Error("triggered run failed", zap.Error(err))
			http.Error(w, `{"error":"run failed"}`, http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(summary) //nolint:errcheck
	})

	return mux
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server exposing report data and run triggering",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate(); err != nil {
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

		client, err := initClient()
		if err != nil {
			return err
		}
		runner := pipeline.NewRunner(cfg, st, client)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: buildMux(st, runner),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
