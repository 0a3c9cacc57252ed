package store

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growthsignal/attribution-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

func journeyColumns() []string {
	return []string{
		"conv_id", "user_id", "conv_date", "conv_time", "revenue",
		"session_id", "channel_name", "event_date", "event_time",
		"holder_engagement", "closer_engagement", "impression_interaction", "cost",
	}
}

func TestPostgresStore_QueryJourneys(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows(journeyColumns()).
		AddRow("c1", "u1", "2024-01-01", "12:00:00", 1000.0,
			"s1", "Organic", "2024-01-01", "10:00:00", 1, 0, 0, 10.0).
		AddRow("c1", "u1", "2024-01-01", "12:00:00", 1000.0,
			"s2", "Paid", "2024-01-01", "11:00:00", 0, 1, 0, 20.0)

	mock.ExpectQuery(`ORDER BY conv_id, event_date, event_time`).
		WillReturnRows(rows)

	journeys, err := s.QueryJourneys(context.Background(), "", "")
	require.NoError(t, err)
	require.Len(t, journeys, 2)
	assert.Equal(t, "s1", journeys[0].SessionID)
	assert.Equal(t, "Paid", journeys[1].ChannelName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_QueryJourneys_DateRangeBound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`AND c.conv_date BETWEEN \$1 AND \$2`).
		WithArgs("2024-01-01", "2024-01-31").
		WillReturnRows(pgxmock.NewRows(journeyColumns()))

	journeys, err := s.QueryJourneys(context.Background(), "2024-01-01", "2024-01-31")
	require.NoError(t, err)
	assert.Empty(t, journeys)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertAttributions(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO attribution_customer_journey`).
		WithArgs("c1", "s1", 0.6, "run-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO attribution_customer_journey`).
		WithArgs("c1", "s2", 0.4, "run-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.InsertAttributions(context.Background(), []model.Attribution{
		{ConvID: "c1", SessionID: "s1", IHC: 0.6, RunID: "run-1"},
		{ConvID: "c1", SessionID: "s2", IHC: 0.4, RunID: "run-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertAttributions_RollbackOnError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO attribution_customer_journey`).
		WithArgs("c1", "s1", 0.6, "run-1").
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	_, err := s.InsertAttributions(context.Background(), []model.Attribution{
		{ConvID: "c1", SessionID: "s1", IHC: 0.6, RunID: "run-1"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert attribution c1/s1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecomputeChannelDaily(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM channel_reporting`).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectExec(`INSERT INTO channel_reporting`).
		WillReturnResult(pgxmock.NewResult("INSERT", 3))
	mock.ExpectCommit()

	require.NoError(t, s.RecomputeChannelDaily(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecomputeChannelDaily_ClearFails(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM channel_reporting`).
		WillReturnError(errors.New("table locked"))
	mock.ExpectRollback()

	err := s.RecomputeChannelDaily(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clear channel_reporting")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListChannelDaily(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := pgxmock.NewRows([]string{"channel_name", "date", "cost", "ihc", "ihc_revenue"}).
		AddRow("Organic", "2024-01-01", 10.0, 0.5, 500.0).
		AddRow("Paid", "2024-01-01", 20.0, 0.5, 500.0)

	mock.ExpectQuery(`FROM channel_reporting`).
		WillReturnRows(rows)

	daily, err := s.ListChannelDaily(context.Background())
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, "Organic", daily[0].ChannelName)
	assert.InDelta(t, 500.0, daily[1].IHCRevenue, 0.0001)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_VerifyTables(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	for _, table := range expectedTables {
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(table).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(`SELECT COUNT`).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(0)))
	}

	statuses, err := s.VerifyTables(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, len(expectedTables))
	for _, st := range statuses {
		assert.True(t, st.Exists, "table %s", st.Name)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_VerifyTables_Missing(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	for _, table := range expectedTables {
		mock.ExpectQuery(`SELECT EXISTS`).
			WithArgs(table).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	}

	statuses, err := s.VerifyTables(context.Background())
	require.NoError(t, err)
	for _, st := range statuses {
		assert.False(t, st.Exists)
		assert.Zero(t, st.Rows)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}
