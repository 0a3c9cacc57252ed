package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/growthsignal/attribution-cli/internal/model"
)

// Pool abstracts pgxpool.Pool so the Postgres store can be unit-tested with
// pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool       Pool
	schemaPath string
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, schemaPath string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{pool: pool, schemaPath: schemaPath}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema, err := resolveSchema(s.schemaPath)
	if err != nil {
		return err
	}
	for _, stmt := range SplitStatements(schema) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return eris.Wrapf(err, "postgres: migrate: %.60s", stmt)
		}
	}
	return nil
}

func (s *PostgresStore) VerifyTables(ctx context.Context) ([]TableStatus, error) {
	statuses := make([]TableStatus, 0, len(expectedTables))
	for _, table := range expectedTables {
		var exists bool
		err := s.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table,
		).Scan(&exists)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: check table %s", table)
		}

		st := TableStatus{Name: table, Exists: exists}
		if exists {
			if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+table).Scan(&st.Rows); err != nil {
				return nil, eris.Wrapf(err, "postgres: count rows in %s", table)
			}
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) InsertSessions(ctx context.Context, sessions []model.Session) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin insert sessions")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, sess := range sessions {
		_, err := tx.Exec(ctx,
			`INSERT INTO session_sources
			 (session_id, user_id, event_date, event_time, channel_name,
			  holder_engagement, closer_engagement, impression_interaction)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			sess.SessionID, sess.UserID, sess.EventDate, sess.EventTime, sess.ChannelName,
			sess.HolderEngagement, sess.CloserEngagement, sess.ImpressionInteraction,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: insert session %s", sess.SessionID)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit sessions")
	}
	return len(sessions), nil
}

func (s *PostgresStore) InsertConversions(ctx context.Context, conversions []model.Conversion) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin insert conversions")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, conv := range conversions {
		_, err := tx.Exec(ctx,
			`INSERT INTO conversions (conv_id, user_id, conv_date, conv_time, revenue)
			 VALUES ($1, $2, $3, $4, $5)`,
			conv.ConvID, conv.UserID, conv.ConvDate, conv.ConvTime, conv.Revenue,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: insert conversion %s", conv.ConvID)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit conversions")
	}
	return len(conversions), nil
}

func (s *PostgresStore) InsertSessionCosts(ctx context.Context, costs []SessionCost) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin insert costs")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, c := range costs {
		_, err := tx.Exec(ctx,
			`INSERT INTO session_costs (session_id, cost) VALUES ($1, $2)`,
			c.SessionID, c.Cost,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: insert cost for session %s", c.SessionID)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit costs")
	}
	return len(costs), nil
}

const postgresJourneyQuery = `
WITH journey_data AS (
	SELECT
		c.conv_id, c.user_id, c.conv_date, c.conv_time, c.revenue,
		s.session_id, s.channel_name, s.event_date, s.event_time,
		s.holder_engagement, s.closer_engagement, s.impression_interaction,
		COALESCE(sc.cost, 0) AS cost
	FROM conversions c
	JOIN session_sources s ON c.user_id = s.user_id
	LEFT JOIN session_costs sc ON s.session_id = sc.session_id
	WHERE (s.event_date || ' ' || s.event_time)::timestamp <= (c.conv_date || ' ' || c.conv_time)::timestamp
	%s
)
SELECT conv_id, user_id, conv_date, conv_time, revenue,
       session_id, channel_name, event_date, event_time,
       holder_engagement, closer_engagement, impression_interaction, cost
FROM journey_data
ORDER BY conv_id, event_date, event_time`

func (s *PostgresStore) QueryJourneys(ctx context.Context, startDate, endDate string) ([]model.JourneyRow, error) {
	query, args := buildJourneyQuery(postgresJourneyQuery, "AND c.conv_date BETWEEN $1 AND $2", startDate, endDate)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query journeys")
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
			return nil, eris.Wrap(err, "postgres: scan journey row")
		}
		journeys = append(journeys, r)
	}
	return journeys, eris.Wrap(rows.Err(), "postgres: iterate journeys")
}

func (s *PostgresStore) InsertAttributions(ctx context.Context, attributions []model.Attribution) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: begin insert attributions")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, a := range attributions {
		_, err := tx.Exec(ctx,
			`INSERT INTO attribution_customer_journey (conv_id, session_id, ihc, run_id)
			 VALUES ($1, $2, $3, $4)`,
			a.ConvID, a.SessionID, a.IHC, a.RunID,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: insert attribution %s/%s", a.ConvID, a.SessionID)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "postgres: commit attributions")
	}
	return len(attributions), nil
}

func (s *PostgresStore) RecomputeChannelDaily(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin recompute")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM channel_reporting`); err != nil {
		return eris.Wrap(err, "postgres: clear channel_reporting")
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO channel_reporting (channel_name, date, cost, ihc, ihc_revenue) `+channelDailySelect,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: recompute channel_reporting")
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit recompute")
}

func (s *PostgresStore) ListChannelDaily(ctx context.Context) ([]model.ChannelDaily, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT channel_name, date, cost, ihc, ihc_revenue
		 FROM channel_reporting
		 ORDER BY date, channel_name`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list channel_reporting")
	}
	defer rows.Close()

	var daily []model.ChannelDaily
	for rows.Next() {
		var d model.ChannelDaily
		if err := rows.Scan(&d.ChannelName, &d.Date, &d.Cost, &d.IHC, &d.IHCRevenue); err != nil {
			return nil, eris.Wrap(err, "postgres: scan channel_reporting row")
		}
		daily = append(daily, d)
	}
	return daily, eris.Wrap(rows.Err(), "postgres: iterate channel_reporting")
}
