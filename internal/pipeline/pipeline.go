// Package pipeline orchestrates the attribution run: build journeys, submit
// them in batches to the scoring API, persist the results and maintain the
// channel aggregate.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/growthsignal/attribution-cli/internal/config"
	"github.com/growthsignal/attribution-cli/internal/journey"
	"github.com/growthsignal/attribution-cli/internal/model"
	"github.com/growthsignal/attribution-cli/internal/store"
	"github.com/growthsignal/attribution-cli/pkg/ihc"
)

// Runner executes the full attribution pipeline.
type Runner struct {
	cfg     *config.Config
	store   store.Store
	client  ihc.Client
	builder *journey.Builder
}

// NewRunner creates a Runner with its dependencies.
func NewRunner(cfg *config.Config, st store.Store, client ihc.Client) *Runner {
	return &Runner{
		cfg:     cfg,
		store:   st,
		client:  client,
		builder: journey.NewBuilder(st),
	}
}

// Run executes one pipeline run over the optional conversion date range.
// Batches are processed strictly in order; a batch whose submission exhausts
// all retries is dropped and the run continues. Persistence errors abort the
// run. The channel aggregate is recomputed after every ingested batch so it
// always reflects a consistent snapshot of the data persisted so far.
func (r *Runner) Run(ctx context.Context, startDate, endDate string) (*model.RunSummary, error) {
	runID := uuid.New().String()
	log := zap.L().With(zap.String("run_id", runID))
	start := time.Now()

	// Schema provisioning is a precondition for everything below; a failure
	// here is fatal before any data is touched.
	if err := r.store.Migrate(ctx); err != nil {
		return nil, eris.Wrap(err, "pipeline: database setup failed")
	}

	rows, err := r.builder.Build(ctx, startDate, endDate)
	if err != nil {
		return nil, err
	}
	warnings := journey.Validate(rows)

	records := journey.Format(rows)
	log.Info("pipeline: formatted journeys",
		zap.Int("journey_rows", len(rows)),
		zap.Int("records", len(records)),
	)

	summary := &model.RunSummary{
		RunID:       runID,
		JourneyRows: len(rows),
		Conversions: journey.Stats(rows).TotalConversions,
		Warnings:    len(warnings),
	}

	batchSize := r.cfg.IHC.BatchSize
	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[i:end]
		batchNum := i/batchSize + 1
		summary.Batches++

		resp, err := r.client.Score(ctx, batch)
		if err != nil {
			// Fault isolation at batch granularity: the batch is lost, the
			// run goes on.
			summary.BatchesFailed++
			log.Error("pipeline: batch failed, continuing",
				zap.Int("batch", batchNum),
				zap.Int("records", len(batch)),
				zap.Error(err),
			)
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			continue
		}

		persisted, err := r.Ingest(ctx, runID, resp)
		if err != nil {
			return summary, err
		}
		summary.RowsPersisted += persisted
		summary.BatchesSucceeded++

		if err := r.store.RecomputeChannelDaily(ctx); err != nil {
			return summary, err
		}
		log.Info("pipeline: batch processed",
			zap.Int("batch", batchNum),
			zap.Int("persisted", persisted),
		)
	}

	summary.Duration = time.Since(start)
	if summary.BatchesFailed > 0 {
		log.Warn("pipeline: run completed with dropped batches",
			zap.Int("succeeded", summary.BatchesSucceeded),
			zap.Int("failed", summary.BatchesFailed),
		)
	} else {
		log.Info("pipeline: run completed",
			zap.Int("batches", summary.Batches),
			zap.Int("rows_persisted", summary.RowsPersisted),
			zap.Duration("duration", summary.Duration),
		)
	}
	return summary, nil
}

// Ingest persists one batch response. Responses whose body statusCode is not
// 200 are skipped with a log entry and persist nothing.
func (r *Runner) Ingest(ctx context.Context, runID string, resp *ihc.ScoreResponse) (int, error) {
	if resp == nil || resp.StatusCode != 200 {
		zap.L().Warn("pipeline: skipping batch with non-200 api status",
			zap.Int("status_code", statusCodeOf(resp)),
		)
		return 0, nil
	}
	if len(resp.Value) == 0 {
		return 0, nil
	}

	attributions := make([]model.Attribution, 0, len(resp.Value))
	for _, a := range resp.Value {
		attributions = append(attributions, model.Attribution{
			ConvID:    a.ConversionID,
			SessionID: a.SessionID,
			IHC:       a.IHC,
			RunID:     runID,
		})
	}
	n, err := r.store.InsertAttributions(ctx, attributions)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func statusCodeOf(resp *ihc.ScoreResponse) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}
