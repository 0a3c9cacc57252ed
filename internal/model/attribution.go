package model

import (
	"encoding/json"
	"math"
	"time"

	"github.com/rotisserie/eris"
)

// DateLayout is the ISO date format used across the store tables.
const DateLayout = "2006-01-02"

// TimestampLayout is the space-joined date+time format the scoring API expects.
const TimestampLayout = "2006-01-02 15:04:05"

// Session is a single touchpoint event. Sessions are supplied upstream and
// read-only to the pipeline.
type Session struct {
	SessionID             string `json:"session_id"`
	UserID                string `json:"user_id"`
	ChannelName           string `json:"channel_name"`
	EventDate             string `json:"event_date"`
	EventTime             string `json:"event_time"`
	HolderEngagement      int    `json:"holder_engagement"`
	CloserEngagement      int    `json:"closer_engagement"`
	ImpressionInteraction int    `json:"impression_interaction"`
}

// Conversion is a completed outcome event. Read-only to the pipeline.
type Conversion struct {
	ConvID   string  `json:"conv_id"`
	UserID   string  `json:"user_id"`
	ConvDate string  `json:"conv_date"`
	ConvTime string  `json:"conv_time"`
	Revenue  float64 `json:"revenue"`
}

// JourneyRow is one session joined to the conversion it may receive credit
// for. Rows are ordered by (conv_id, event_date, event_time); the causality
// filter guarantees the session never follows its conversion.
type JourneyRow struct {
	ConvID                string  `json:"conv_id"`
	UserID                string  `json:"user_id"`
	ConvDate              string  `json:"conv_date"`
	ConvTime              string  `json:"conv_time"`
	Revenue               float64 `json:"revenue"`
	SessionID             string  `json:"session_id"`
	ChannelName           string  `json:"channel_name"`
	EventDate             string  `json:"event_date"`
	EventTime             string  `json:"event_time"`
	HolderEngagement      int     `json:"holder_engagement"`
	CloserEngagement      int     `json:"closer_engagement"`
	ImpressionInteraction int     `json:"impression_interaction"`
	Cost                  float64 `json:"cost"`
	TimeToConv            float64 `json:"time_to_conv"` // hours, >= 0
}

// SessionTimestamp parses the row's event date and time.
func (r JourneyRow) SessionTimestamp() (time.Time, error) {
	t, err := time.Parse(TimestampLayout, r.EventDate+" "+r.EventTime)
	return t, eris.Wrapf(err, "model: parse session timestamp for %s", r.SessionID)
}

// ConvTimestamp parses the row's conversion date and time.
func (r JourneyRow) ConvTimestamp() (time.Time, error) {
	t, err := time.Parse(TimestampLayout, r.ConvDate+" "+r.ConvTime)
	return t, eris.Wrapf(err, "model: parse conversion timestamp for %s", r.ConvID)
}

// Attribution is one scored (conversion, session) credit fraction returned by
// the IHC API. The attribution log is append-only; RunID records which
// pipeline run persisted the row.
type Attribution struct {
	ConvID    string  `json:"conv_id"`
	SessionID string  `json:"session_id"`
	IHC       float64 `json:"ihc"`
	RunID     string  `json:"run_id,omitempty"`
}

// ChannelDaily is one aggregate row per (channel_name, date): summed cost,
// summed attributed credit, and credit-weighted revenue.
type ChannelDaily struct {
	ChannelName string  `json:"channel_name"`
	Date        string  `json:"date"`
	Cost        float64 `json:"cost"`
	IHC         float64 `json:"ihc"`
	IHCRevenue  float64 `json:"ihc_revenue"`
}

// ReportRow is a ChannelDaily row with the two derived efficiency ratios.
// Never persisted; computed at export time.
type ReportRow struct {
	ChannelDaily
	CPO  float64 `json:"cpo"`
	ROAS float64 `json:"roas"`
}

// MarshalJSON renders a +Inf CPO as the "inf" sentinel, which encoding/json
// cannot represent as a number. Matches the CSV and XLSX report artifacts.
func (r ReportRow) MarshalJSON() ([]byte, error) {
	out := struct {
		ChannelDaily
		CPO  any     `json:"cpo"`
		ROAS float64 `json:"roas"`
	}{
		ChannelDaily: r.ChannelDaily,
		CPO:          r.CPO,
		ROAS:         r.ROAS,
	}
	if math.IsInf(r.CPO, 1) {
		out.CPO = "inf"
	}
	return json.Marshal(out)
}

// Report derives CPO and ROAS for this aggregate row. CPO is +Inf when no
// credit was attributed; ROAS is 0 when the channel had no cost.
func (d ChannelDaily) Report() ReportRow {
	row := ReportRow{ChannelDaily: d}
	if d.IHC > 0 {
		row.CPO = d.Cost / d.IHC
	} else {
		row.CPO = math.Inf(1)
	}
	if d.Cost > 0 {
		row.ROAS = d.IHCRevenue / d.Cost
	}
	return row
}

// JourneyStats summarizes a built journey set.
type JourneyStats struct {
	TotalConversions      int      `json:"total_conversions"`
	TotalSessions         int      `json:"total_sessions"`
	UniqueUsers           int      `json:"unique_users"`
	AvgSessionsPerJourney float64  `json:"avg_sessions_per_journey"`
	Channels              []string `json:"channels"`
	DateRange             string   `json:"date_range"`
	TotalRevenue          float64  `json:"total_revenue"`
	AvgRevenue            float64  `json:"avg_revenue_per_conversion"`
}

// RunSummary is the outcome of one pipeline run.
type RunSummary struct {
	RunID            string        `json:"run_id"`
	JourneyRows      int           `json:"journey_rows"`
	Conversions      int           `json:"conversions"`
	Batches          int           `json:"batches"`
	BatchesSucceeded int           `json:"batches_succeeded"`
	BatchesFailed    int           `json:"batches_failed"`
	RowsPersisted    int           `json:"rows_persisted"`
	Warnings         int           `json:"warnings"`
	Duration         time.Duration `json:"duration"`
}
