// Package journey builds, validates and formats customer journeys: the
// ordered session sequences leading to each conversion.
package journey

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/growthsignal/attribution-cli/internal/model"
	"github.com/growthsignal/attribution-cli/internal/store"
)

// Warning is a non-fatal data-quality finding. Warnings are collected and
// reported; they never block a build.
type Warning struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s (%d rows)", w.Field, w.Message, w.Count)
}

// Builder constructs journeys from the store.
type Builder struct {
	store store.Store
}

// NewBuilder creates a Builder backed by the given store.
func NewBuilder(st store.Store) *Builder {
	return &Builder{store: st}
}

// ValidateDateRange checks the optional conversion date filter. Both dates
// must be ISO YYYY-MM-DD and start must not exceed end. Supplying only one
// endpoint is an error; the filter is all-or-nothing.
func ValidateDateRange(startDate, endDate string) error {
	if startDate == "" && endDate == "" {
		return nil
	}
	if startDate == "" || endDate == "" {
		return eris.New("journey: start and end date must be supplied together")
	}
	for _, d := range []string{startDate, endDate} {
		if _, err := time.Parse(model.DateLayout, d); err != nil {
			return eris.Wrapf(err, "journey: invalid date %q", d)
		}
	}
	if startDate > endDate {
		return eris.Errorf("journey: start date %s is after end date %s", startDate, endDate)
	}
	return nil
}

// Build joins conversions to their causally-preceding sessions, computes
// time_to_conv per row, and returns rows ordered by (conv_id, event_date,
// event_time). Query errors propagate unmodified; they indicate a data or
// schema problem upstream of attribution.
func (b *Builder) Build(ctx context.Context, startDate, endDate string) ([]model.JourneyRow, error) {
	if err := ValidateDateRange(startDate, endDate); err != nil {
		return nil, err
	}

	rows, err := b.store.QueryJourneys(ctx, startDate, endDate)
	if err != nil {
		return nil, err
	}

	for i := range rows {
		sessionTS, err := rows[i].SessionTimestamp()
		if err != nil {
			return nil, err
		}
		convTS, err := rows[i].ConvTimestamp()
		if err != nil {
			return nil, err
		}
		rows[i].TimeToConv = convTS.Sub(sessionTS).Hours()
	}

	zap.L().Info("journey: built journeys",
		zap.Int("rows", len(rows)),
		zap.Int("conversions", countConversions(rows)),
	)
	return rows, nil
}

// Validate inspects built rows for data-quality problems: empty required
// fields, engagement flags outside {0,1}, and negative time_to_conv. Findings
// are returned as warnings, never errors.
func Validate(rows []model.JourneyRow) []Warning {
	counts := map[[2]string]int{}
	bump := func(field, msg string) {
		counts[[2]string{field, msg}]++
	}

	for _, r := range rows {
		for field, val := range map[string]string{
			"conv_id":      r.ConvID,
			"user_id":      r.UserID,
			"session_id":   r.SessionID,
			"channel_name": r.ChannelName,
		} {
			if val == "" {
				bump(field, "empty required value")
			}
		}
		for field, val := range map[string]int{
			"holder_engagement":      r.HolderEngagement,
			"closer_engagement":      r.CloserEngagement,
			"impression_interaction": r.ImpressionInteraction,
		} {
			if val != 0 && val != 1 {
				bump(field, "value outside {0,1}")
			}
		}
		if r.TimeToConv < 0 {
			bump("time_to_conv", "negative value")
		}
	}

	warnings := make([]Warning, 0, len(counts))
	for key, n := range counts {
		warnings = append(warnings, Warning{Field: key[0], Message: key[1], Count: n})
	}
	for _, w := range warnings {
		zap.L().Warn("journey: validation warning",
			zap.String("field", w.Field),
			zap.String("message", w.Message),
			zap.Int("rows", w.Count),
		)
	}
	return warnings
}

// Stats summarizes a built journey set.
func Stats(rows []model.JourneyRow) model.JourneyStats {
	if len(rows) == 0 {
		return model.JourneyStats{}
	}

	users := map[string]struct{}{}
	channelSeen := map[string]struct{}{}
	var channels []string
	revenueByConv := map[string]float64{}
	minDate, maxDate := rows[0].EventDate, rows[0].EventDate

	for _, r := range rows {
		users[r.UserID] = struct{}{}
		if _, ok := channelSeen[r.ChannelName]; !ok {
			channelSeen[r.ChannelName] = struct{}{}
			channels = append(channels, r.ChannelName)
		}
		if _, ok := revenueByConv[r.ConvID]; !ok {
			revenueByConv[r.ConvID] = r.Revenue
		}
		if r.EventDate < minDate {
			minDate = r.EventDate
		}
		if r.EventDate > maxDate {
			maxDate = r.EventDate
		}
	}

	var totalRevenue float64
	for _, rev := range revenueByConv {
		totalRevenue += rev
	}

	conversions := len(revenueByConv)
	return model.JourneyStats{
		TotalConversions:      conversions,
		TotalSessions:         len(rows),
		UniqueUsers:           len(users),
		AvgSessionsPerJourney: float64(len(rows)) / float64(conversions),
		Channels:              channels,
		DateRange:             minDate + " to " + maxDate,
		TotalRevenue:          totalRevenue,
		AvgRevenue:            totalRevenue / float64(conversions),
	}
}

func countConversions(rows []model.JourneyRow) int {
	seen := map[string]struct{}{}
	for _, r := range rows {
		seen[r.ConvID] = struct{}{}
	}
	return len(seen)
}
