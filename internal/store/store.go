package store

import (
	"context"

	"github.com/growthsignal/attribution-cli/internal/model"
)

// SessionCost is one row of the session-level cost table. Not every session
// carries a cost; unmatched sessions aggregate as zero.
type SessionCost struct {
	SessionID string  `json:"session_id"`
	Cost      float64 `json:"cost"`
}

// TableStatus reports whether an expected table exists and how many rows it
// holds, for post-migration verification.
type TableStatus struct {
	Name   string `json:"name"`
	Exists bool   `json:"exists"`
	Rows   int64  `json:"rows"`
}

// Store defines the persistence interface for the attribution pipeline.
type Store interface {
	// Input data (sessions and conversions are read-only to the pipeline
	// itself; these loaders exist for the import command and tests).
	InsertSessions(ctx context.Context, sessions []model.Session) (int, error)
	InsertConversions(ctx context.Context, conversions []model.Conversion) (int, error)
	InsertSessionCosts(ctx context.Context, costs []SessionCost) (int, error)

	// Journeys: conversions joined to their causally-preceding sessions,
	// ordered by (conv_id, event_date, event_time). startDate/endDate, when
	// both non-empty, bound conv_date inclusively.
	QueryJourneys(ctx context.Context, startDate, endDate string) ([]model.JourneyRow, error)

	// Attribution log: append-only, one row per scored (conv_id, session_id).
	InsertAttributions(ctx context.Context, rows []model.Attribution) (int, error)

	// Channel aggregate: full replace keyed by (channel_name, date).
	RecomputeChannelDaily(ctx context.Context) error
	ListChannelDaily(ctx context.Context) ([]model.ChannelDaily, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	VerifyTables(ctx context.Context) ([]TableStatus, error)
	Close() error
}
