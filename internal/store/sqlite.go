package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/growthsignal/attribution-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db         *sql.DB
	schemaPath string
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode. schemaPath optionally overrides the embedded migration DDL.
func NewSQLite(dsn string, schemaPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, schemaPath: schemaPath}, nil
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema, err := resolveSchema(s.schemaPath)
	if err != nil {
		return err
	}
	for _, stmt := range SplitStatements(schema) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return eris.Wrapf(err, "sqlite: migrate: %.60s", stmt)
		}
	}
	return nil
}

func (s *SQLiteStore) VerifyTables(ctx context.Context) ([]TableStatus, error) {
	statuses := make([]TableStatus, 0, len(expectedTables))
	for _, table := range expectedTables {
		var n int
		err := s.db.QueryRowContext(ctx,
			`SELECT count(*) FROM sqlite_master WHERE type='table' AND name = ?`, table,
		).Scan(&n)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: check table %s", table)
		}

		st := TableStatus{Name: table, Exists: n == 1}
		if st.Exists {
			if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&st.Rows); err != nil {
				return nil, eris.Wrapf(err, "sqlite: count rows in %s", table)
			}
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertSessions(ctx context.Context, sessions []model.Session) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert sessions")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, sess := range sessions {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO session_sources
			 (session_id, user_id, event_date, event_time, channel_name,
			  holder_engagement, closer_engagement, impression_interaction)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sess.SessionID, sess.UserID, sess.EventDate, sess.EventTime, sess.ChannelName,
			sess.HolderEngagement, sess.CloserEngagement, sess.ImpressionInteraction,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert session %s", sess.SessionID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit sessions")
	}
	return len(sessions), nil
}

func (s *SQLiteStore) InsertConversions(ctx context.Context, conversions []model.Conversion) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert conversions")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, conv := range conversions {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO conversions (conv_id, user_id, conv_date, conv_time, revenue)
			 VALUES (?, ?, ?, ?, ?)`,
			conv.ConvID, conv.UserID, conv.ConvDate, conv.ConvTime, conv.Revenue,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert conversion %s", conv.ConvID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit conversions")
	}
	return len(conversions), nil
}

func (s *SQLiteStore) InsertSessionCosts(ctx context.Context, costs []SessionCost) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert costs")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, c := range costs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO session_costs (session_id, cost) VALUES (?, ?)`,
			c.SessionID, c.Cost,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert cost for session %s", c.SessionID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit costs")
	}
	return len(costs), nil
}

// journeyQuery joins conversions to the sessions that precede them. The
// causality filter lives in SQL; the conv_date range is bound, never
// interpolated.
const sqliteJourneyQuery = `
WITH journey_data AS (
	SELECT
		c.conv_id, c.user_id, c.conv_date, c.conv_time, c.revenue,
		s.session_id, s.channel_name, s.event_date, s.event_time,
		s.holder_engagement, s.closer_engagement, s.impression_interaction,
		COALESCE(sc.cost, 0) AS cost
	FROM conversions c
	JOIN session_sources s ON c.user_id = s.user_id
	LEFT JOIN session_costs sc ON s.session_id = sc.session_id
	WHERE datetime(s.event_date || ' ' || s.event_time) <= datetime(c.conv_date || ' ' || c.conv_time)
	%s
)
SELECT conv_id, user_id, conv_date, conv_time, revenue,
       session_id, channel_name, event_date, event_time,
       holder_engagement, closer_engagement, impression_interaction, cost
FROM journey_data
ORDER BY conv_id, event_date, event_time`

func (s *SQLiteStore) QueryJourneys(ctx context.Context, startDate, endDate string) ([]model.JourneyRow, error) {
	query, args := buildJourneyQuery(sqliteJourneyQuery, "AND c.conv_date BETWEEN ? AND ?", startDate, endDate)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query journeys")
	}
	defer rows.Close()

	var journeys []model.JourneyRow
	for rows.Next() {
		var r model.JourneyRow
		err := rows.Scan(
			&r.ConvID, &r.UserID, &r.ConvDate, &r.ConvTime, &r.Revenue,
			&r.SessionID, &r.ChannelName, &r.EventDate, &r.EventTime,
			&r.HolderEngagement, &r.CloserEngagement, &r.ImpressionInteraction, &r.Cost,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan journey row")
		}
		journeys = append(journeys, r)
	}
	return journeys, eris.Wrap(rows.Err(), "sqlite: iterate journeys")
}

func (s *SQLiteStore) InsertAttributions(ctx context.Context, attributions []model.Attribution) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert attributions")
	}
	defer tx.Rollback() //nolint:errcheck

	for _, a := range attributions {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO attribution_customer_journey (conv_id, session_id, ihc, run_id)
			 VALUES (?, ?, ?, ?)`,
			a.ConvID, a.SessionID, a.IHC, a.RunID,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert attribution %s/%s", a.ConvID, a.SessionID)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit attributions")
	}
	return len(attributions), nil
}

// channelDailySelect is the three-way left join behind the channel aggregate.
// Shared verbatim between drivers.
const channelDailySelect = `
SELECT
	ss.channel_name,
	ss.event_date AS date,
	SUM(COALESCE(sc.cost, 0)) AS cost,
	SUM(COALESCE(acj.ihc, 0)) AS ihc,
	SUM(COALESCE(acj.ihc * c.revenue, 0)) AS ihc_revenue
FROM session_sources ss
LEFT JOIN session_costs sc ON ss.session_id = sc.session_id
LEFT JOIN attribution_customer_journey acj ON ss.session_id = acj.session_id
LEFT JOIN conversions c ON acj.conv_id = c.conv_id
GROUP BY ss.channel_name, ss.event_date`

func (s *SQLiteStore) RecomputeChannelDaily(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin recompute")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM channel_reporting`); err != nil {
		return eris.Wrap(err, "sqlite: clear channel_reporting")
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO channel_reporting (channel_name, date, cost, ihc, ihc_revenue) `+channelDailySelect,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: recompute channel_reporting")
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit recompute")
}

func (s *SQLiteStore) ListChannelDaily(ctx context.Context) ([]model.ChannelDaily, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel_name, date, cost, ihc, ihc_revenue
		 FROM channel_reporting
		 ORDER BY date, channel_name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list channel_reporting")
	}
	defer rows.Close()

	var daily []model.ChannelDaily
	for rows.Next() {
		var d model.ChannelDaily
		if err := rows.Scan(&d.ChannelName, &d.Date, &d.Cost, &d.IHC, &d.IHCRevenue); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan channel_reporting row")
		}
		daily = append(daily, d)
	}
	return daily, eris.Wrap(rows.Err(), "sqlite: iterate channel_reporting")
}

// buildJourneyQuery injects the bound date-range clause when both endpoints
// are present.
func buildJourneyQuery(tmpl, rangeClause, startDate, endDate string) (string, []any) {
	if startDate != "" && endDate != "" {
		return fmt.Sprintf(tmpl, rangeClause), []any{startDate, endDate}
	}
	return fmt.Sprintf(tmpl, ""), nil
}
