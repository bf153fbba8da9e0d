package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pantau/internal/models"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func TestBuildQueriesQuotesColumns(t *testing.T) {
	q := buildQueries(models.MetricPower)
	assert.Contains(t, q.insert, `"var"`)
	assert.Contains(t, q.insert, "$9")
	assert.Equal(t,
		`SELECT AVG("power"), MIN("power"), MAX("power"), COUNT(*) FROM "pzem" WHERE created_at >= $1 AND created_at < $2;`,
		q.rangeAggregate)
}

func TestPostgresInsert(t *testing.T) {
	store, mock := newMockStore(t)
	ts := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(buildQueries(models.MetricTemperature).insert)).
		WithArgs(21.5, ts).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), ts))

	out, err := store.Insert(context.Background(), models.Sample{
		Metric:    models.MetricTemperature,
		Values:    map[string]float64{"temperature": 21.5, "humidity": 3},
		CreatedAt: ts,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), out.ID)
	assert.Equal(t, map[string]float64{"temperature": 21.5}, out.Values)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsertRejectsMissingField(t *testing.T) {
	store, mock := newMockStore(t)
	_, err := store.Insert(context.Background(), models.Sample{Metric: models.MetricRPM, Values: map[string]float64{}})
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLatestEmpty(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(buildQueries(models.MetricRPM).latest)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "rpm", "created_at"}))

	got, err := store.Latest(context.Background(), models.MetricRPM)
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLatestInWindow(t *testing.T) {
	store, mock := newMockStore(t)
	since := time.Date(2025, 1, 1, 11, 59, 50, 0, time.UTC)
	ts := since.Add(5 * time.Second)

	mock.ExpectQuery(regexp.QuoteMeta(buildQueries(models.MetricRPM).latestInWindow)).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"id", "rpm", "created_at"}).AddRow(int64(3), 1450.0, ts))

	got, err := store.LatestInWindow(context.Background(), models.MetricRPM, since)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1450.0, got.Value())
	assert.Equal(t, ts, got.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRangeAggregateNoRows(t *testing.T) {
	store, mock := newMockStore(t)
	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(buildQueries(models.MetricTemperature).rangeAggregate)).
		WithArgs(since, until).
		WillReturnRows(sqlmock.NewRows([]string{"avg", "min", "max", "count"}).AddRow(nil, nil, nil, int64(0)))

	summary, err := store.RangeAggregate(context.Background(), models.MetricTemperature, since, until)
	require.NoError(t, err)
	assert.Nil(t, summary.Average)
	assert.Nil(t, summary.Min)
	assert.Nil(t, summary.Max)
	assert.Zero(t, summary.Count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecentScansAllFields(t *testing.T) {
	store, mock := newMockStore(t)
	ts := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cols := []string{"id", "voltage", "current", "frequency", "power", "power_factor", "energy", "va", "var", "created_at"}

	mock.ExpectQuery(regexp.QuoteMeta(buildQueries(models.MetricPower).recent)).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(int64(2), 220.0, 1.0, 50.0, 200.0, 0.9, 1.2, 220.0, 10.0, ts.Add(time.Second)).
			AddRow(int64(1), 219.0, 0.5, 50.0, 100.0, 0.9, 1.1, 110.0, 5.0, ts))

	got, err := store.Recent(context.Background(), models.MetricPower, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, 200.0, got[0].Value())
	assert.Equal(t, 10.0, got[0].Values["var"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInRangeQueryError(t *testing.T) {
	store, mock := newMockStore(t)
	since := time.Date(2025, 1, 1, 11, 0, 0, 0, time.UTC)
	until := since.Add(time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta(buildQueries(models.MetricTemperature).inRange)).
		WithArgs(since, until).
		WillReturnError(errors.New("connection reset"))

	_, err := store.InRange(context.Background(), models.MetricTemperature, since, until)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreNotConfigured(t *testing.T) {
	store := NewPostgresStore(nil)
	_, err := store.Latest(context.Background(), models.MetricRPM)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestPostgresUnknownMetric(t *testing.T) {
	store, _ := newMockStore(t)
	_, err := store.Latest(context.Background(), models.Metric("humidity"))
	assert.ErrorIs(t, err, ErrUnknownMetric)
}

func TestInitializeTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for _, stmt := range SchemaStatements() {
		mock.ExpectExec(regexp.QuoteMeta(stmt)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, InitializeTables(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}
