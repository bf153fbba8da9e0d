package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pantau/internal/models"
)

// metricQueries holds the statements for one metric table. Columns are the
// metric fields in models.Metric.Fields order, bracketed by id and created_at.
type metricQueries struct {
	insert         string
	latest         string
	latestInWindow string
	rangeAggregate string
	recent         string
	inRange        string
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func buildQueries(m models.Metric) metricQueries {
	table := quoteIdent(m.Table())
	fields := m.Fields()

	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = quoteIdent(f)
	}
	placeholders := make([]string, len(fields)+1)
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	selectCols := "id, " + strings.Join(quoted, ", ") + ", created_at"
	value := quoteIdent(m.ValueField())

	return metricQueries{
		insert: fmt.Sprintf(`INSERT INTO %s (%s, created_at) VALUES (%s) RETURNING id, created_at;`,
			table, strings.Join(quoted, ", "), strings.Join(placeholders, ", ")),
		latest: fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at DESC, id DESC LIMIT 1;`,
			selectCols, table),
		latestInWindow: fmt.Sprintf(`SELECT %s FROM %s WHERE created_at >= $1 ORDER BY created_at DESC, id DESC LIMIT 1;`,
			selectCols, table),
		rangeAggregate: fmt.Sprintf(`SELECT AVG(%[1]s), MIN(%[1]s), MAX(%[1]s), COUNT(*) FROM %[2]s WHERE created_at >= $1 AND created_at < $2;`,
			value, table),
		recent: fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at DESC, id DESC LIMIT $1;`,
			selectCols, table),
		inRange: fmt.Sprintf(`SELECT %s FROM %s WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at ASC, id ASC;`,
			selectCols, table),
	}
}

// PostgresStore implements SampleStore on one table per metric.
type PostgresStore struct {
	db      *sql.DB
	queries map[models.Metric]metricQueries
	now     func() time.Time
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	queries := make(map[models.Metric]metricQueries, len(models.Metrics))
	for _, m := range models.Metrics {
		queries[m] = buildQueries(m)
	}
	return &PostgresStore{db: db, queries: queries, now: time.Now}
}

func (s *PostgresStore) prepare(m models.Metric) (*sql.DB, metricQueries, error) {
	if s == nil || s.db == nil {
		return nil, metricQueries{}, ErrNotConfigured
	}
	q, ok := s.queries[m]
	if !ok {
		return nil, metricQueries{}, fmt.Errorf("%w: %q", ErrUnknownMetric, m)
	}
	return s.db, q, nil
}

// Insert stores the sample and returns it with the assigned id.
func (s *PostgresStore) Insert(ctx context.Context, sample models.Sample) (models.Sample, error) {
	db, q, err := s.prepare(sample.Metric)
	if err != nil {
		return models.Sample{}, err
	}
	values, err := models.ValidateValues(sample.Metric, sample.Values)
	if err != nil {
		return models.Sample{}, err
	}
	if sample.CreatedAt.IsZero() {
		sample.CreatedAt = s.now()
	}

	fields := sample.Metric.Fields()
	args := make([]any, 0, len(fields)+1)
	for _, f := range fields {
		args = append(args, values[f])
	}
	args = append(args, sample.CreatedAt)

	if err := db.QueryRowContext(ctx, q.insert, args...).Scan(&sample.ID, &sample.CreatedAt); err != nil {
		return models.Sample{}, fmt.Errorf("insert %s sample: %w", sample.Metric, err)
	}
	sample.Values = values
	return sample, nil
}

func (s *PostgresStore) Latest(ctx context.Context, metric models.Metric) (*models.Sample, error) {
	db, q, err := s.prepare(metric)
	if err != nil {
		return nil, err
	}
	return s.queryOne(ctx, db, metric, q.latest)
}

func (s *PostgresStore) LatestInWindow(ctx context.Context, metric models.Metric, since time.Time) (*models.Sample, error) {
	db, q, err := s.prepare(metric)
	if err != nil {
		return nil, err
	}
	return s.queryOne(ctx, db, metric, q.latestInWindow, since)
}

func (s *PostgresStore) RangeAggregate(ctx context.Context, metric models.Metric, since, until time.Time) (models.RangeSummary, error) {
	db, q, err := s.prepare(metric)
	if err != nil {
		return models.RangeSummary{}, err
	}

	var avg, minV, maxV sql.NullFloat64
	var summary models.RangeSummary
	if err := db.QueryRowContext(ctx, q.rangeAggregate, since, until).Scan(&avg, &minV, &maxV, &summary.Count); err != nil {
		return models.RangeSummary{}, fmt.Errorf("aggregate %s: %w", metric, err)
	}
	summary.Average = nullFloat(avg)
	summary.Min = nullFloat(minV)
	summary.Max = nullFloat(maxV)
	return summary, nil
}

func (s *PostgresStore) Recent(ctx context.Context, metric models.Metric, limit int) ([]models.Sample, error) {
	db, q, err := s.prepare(metric)
	if err != nil {
		return nil, err
	}
	return s.queryMany(ctx, db, metric, q.recent, limit)
}

func (s *PostgresStore) InRange(ctx context.Context, metric models.Metric, since, until time.Time) ([]models.Sample, error) {
	db, q, err := s.prepare(metric)
	if err != nil {
		return nil, err
	}
	return s.queryMany(ctx, db, metric, q.inRange, since, until)
}

func (s *PostgresStore) queryOne(ctx context.Context, db *sql.DB, metric models.Metric, query string, args ...any) (*models.Sample, error) {
	row := db.QueryRowContext(ctx, query, args...)
	sample, err := scanSample(row, metric)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest %s: %w", metric, err)
	}
	return &sample, nil
}

func (s *PostgresStore) queryMany(ctx context.Context, db *sql.DB, metric models.Metric, query string, args ...any) ([]models.Sample, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s samples: %w", metric, err)
	}
	defer rows.Close()

	samples := make([]models.Sample, 0)
	for rows.Next() {
		sample, scanErr := scanSample(rows, metric)
		if scanErr != nil {
			return nil, fmt.Errorf("scan %s sample: %w", metric, scanErr)
		}
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s samples: %w", metric, err)
	}
	return samples, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSample(row rowScanner, metric models.Metric) (models.Sample, error) {
	fields := metric.Fields()
	values := make([]float64, len(fields))

	sample := models.Sample{Metric: metric}
	dest := make([]any, 0, len(fields)+2)
	dest = append(dest, &sample.ID)
	for i := range values {
		dest = append(dest, &values[i])
	}
	dest = append(dest, &sample.CreatedAt)

	if err := row.Scan(dest...); err != nil {
		return models.Sample{}, err
	}

	sample.Values = make(map[string]float64, len(fields))
	for i, f := range fields {
		sample.Values[f] = values[i]
	}
	return sample, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

var _ SampleStore = (*PostgresStore)(nil)
