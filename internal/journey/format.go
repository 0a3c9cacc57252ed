package journey

import (
	"github.com/growthsignal/attribution-cli/internal/model"
	"github.com/growthsignal/attribution-cli/pkg/ihc"
)

// Format reshapes built journey rows into the scoring API's flat per-session
// record list. Input order is preserved; rows are assumed sorted by
// (conv_id, event_date, event_time) as produced by Build. Within each
// conversion group every record carries conversion=0 except the last, which
// marks the converting touchpoint with conversion=1.
func Format(rows []model.JourneyRow) []ihc.JourneySession {
	out := make([]ihc.JourneySession, 0, len(rows))
	for i, r := range rows {
		out = append(out, ihc.JourneySession{
			ConversionID:          r.ConvID,
			SessionID:             r.SessionID,
			Timestamp:             r.EventDate + " " + r.EventTime,
			ChannelLabel:          r.ChannelName,
			HolderEngagement:      r.HolderEngagement,
			CloserEngagement:      r.CloserEngagement,
			Conversion:            0,
			ImpressionInteraction: r.ImpressionInteraction,
		})

		last := i+1 == len(rows) || rows[i+1].ConvID != r.ConvID
		if last {
			out[len(out)-1].Conversion = 1
		}
	}
	return out
}
