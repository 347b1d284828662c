package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"hydromet-cloud/internal/analytics/domain/rollup"
	telemetry "hydromet-cloud/internal/telemetry/domain"
)

const (
	defaultHourlyTable = "hourly_aggregates"
	defaultDailyTable  = "daily_aggregates"
)

// AggregateRepository is a Postgres implementation for hourly and daily
// aggregates. Buckets are stored one row per channel and reassembled on read.
type AggregateRepository struct {
	db          *sql.DB
	hourlyTable string
	dailyTable  string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*AggregateRepository)

// WithHourlyTable overrides the hourly table name.
func WithHourlyTable(table string) RepositoryOption {
	return func(repo *AggregateRepository) {
		if table != "" {
			repo.hourlyTable = table
		}
	}
}

// WithDailyTable overrides the daily table name.
func WithDailyTable(table string) RepositoryOption {
	return func(repo *AggregateRepository) {
		if table != "" {
			repo.dailyTable = table
		}
	}
}

// NewAggregateRepository constructs a repository with default table names.
func NewAggregateRepository(db *sql.DB, opts ...RepositoryOption) *AggregateRepository {
	repo := &AggregateRepository{
		db:          db,
		hourlyTable: defaultHourlyTable,
		dailyTable:  defaultDailyTable,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Upsert writes one hourly bucket, one row per channel, in a single
// transaction. Conflicting rows are overwritten so reruns converge.
func (r *AggregateRepository) Upsert(ctx context.Context, agg rollup.HourlyAggregate) error {
	if r == nil || r.db == nil {
		return errors.New("aggregate repo: nil db")
	}
	if !agg.Key().Valid() {
		return rollup.ErrInvalidBucket
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	station_id,
	csq,
	obs_date,
	obs_hour,
	channel,
	channel_sum,
	channel_avg,
	sample_count
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8
)
ON CONFLICT (station_id, csq, obs_date, obs_hour, channel)
DO UPDATE SET
	channel_sum = EXCLUDED.channel_sum,
	channel_avg = EXCLUDED.channel_avg,
	sample_count = EXCLUDED.sample_count,
	updated_at = NOW()`, r.hourlyTable)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, channel := range telemetry.Channels() {
		stat := agg.Stats[channel]
		if _, err := stmt.ExecContext(
			ctx,
			agg.StationID,
			agg.CSQ,
			agg.Date,
			agg.Hour,
			channel.String(),
			stat.Sum,
			stat.Avg,
			stat.SampleCount,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListByDate returns all hourly buckets for one observation date.
func (r *AggregateRepository) ListByDate(ctx context.Context, date time.Time) ([]rollup.HourlyAggregate, error) {
	return r.ListByDateRange(ctx, date, date.AddDate(0, 0, 1))
}

// ListByDateRange returns hourly buckets with obs_date in [from, to).
func (r *AggregateRepository) ListByDateRange(ctx context.Context, from, to time.Time) ([]rollup.HourlyAggregate, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("aggregate repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT station_id, csq, obs_date, obs_hour, channel, channel_sum, channel_avg, sample_count
FROM %s
WHERE obs_date >= $1 AND obs_date < $2
ORDER BY station_id, csq, obs_date, obs_hour`, r.hourlyTable)

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byKey := make(map[rollup.HourKey]*rollup.HourlyAggregate)
	for rows.Next() {
		var (
			stationID, csq, channelName string
			obsDate                     time.Time
			obsHour                     int
			stat                        rollup.ChannelStat
		)
		if err := rows.Scan(&stationID, &csq, &obsDate, &obsHour, &channelName, &stat.Sum, &stat.Avg, &stat.SampleCount); err != nil {
			return nil, err
		}
		channel, err := telemetry.ParseChannel(channelName)
		if err != nil {
			return nil, err
		}
		key := rollup.HourKey{StationID: stationID, CSQ: csq, Date: obsDate.UTC(), Hour: obsHour}
		agg := byKey[key]
		if agg == nil {
			agg = &rollup.HourlyAggregate{StationID: stationID, CSQ: csq, Date: key.Date, Hour: obsHour}
			byKey[key] = agg
		}
		agg.Stats[channel] = stat
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sortedHourly(byKey), nil
}

// UpsertDaily writes one daily bucket, one row per channel, transactionally.
func (r *AggregateRepository) UpsertDaily(ctx context.Context, agg rollup.DailyAggregate) error {
	if r == nil || r.db == nil {
		return errors.New("aggregate repo: nil db")
	}
	if agg.StationID == "" || agg.Date.IsZero() {
		return rollup.ErrInvalidBucket
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	station_id,
	csq,
	obs_date,
	channel,
	channel_sum,
	channel_avg,
	sample_count
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)
ON CONFLICT (station_id, csq, obs_date, channel)
DO UPDATE SET
	channel_sum = EXCLUDED.channel_sum,
	channel_avg = EXCLUDED.channel_avg,
	sample_count = EXCLUDED.sample_count,
	updated_at = NOW()`, r.dailyTable)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, channel := range telemetry.Channels() {
		stat := agg.Stats[channel]
		if _, err := stmt.ExecContext(
			ctx,
			agg.StationID,
			agg.CSQ,
			agg.Date,
			channel.String(),
			stat.Sum,
			stat.Avg,
			stat.SampleCount,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListDailyByDateRange returns daily buckets with obs_date in [from, to).
func (r *AggregateRepository) ListDailyByDateRange(ctx context.Context, from, to time.Time) ([]rollup.DailyAggregate, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("aggregate repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT station_id, csq, obs_date, channel, channel_sum, channel_avg, sample_count
FROM %s
WHERE obs_date >= $1 AND obs_date < $2
ORDER BY station_id, csq, obs_date`, r.dailyTable)

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byKey := make(map[rollup.DayKey]*rollup.DailyAggregate)
	for rows.Next() {
		var (
			stationID, csq, channelName string
			obsDate                     time.Time
			stat                        rollup.ChannelStat
		)
		if err := rows.Scan(&stationID, &csq, &obsDate, &channelName, &stat.Sum, &stat.Avg, &stat.SampleCount); err != nil {
			return nil, err
		}
		channel, err := telemetry.ParseChannel(channelName)
		if err != nil {
			return nil, err
		}
		key := rollup.DayKey{StationID: stationID, CSQ: csq, Date: obsDate.UTC()}
		agg := byKey[key]
		if agg == nil {
			agg = &rollup.DailyAggregate{StationID: stationID, CSQ: csq, Date: key.Date}
			byKey[key] = agg
		}
		agg.Stats[channel] = stat
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]rollup.DailyAggregate, 0, len(byKey))
	for _, agg := range byKey {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StationID != out[j].StationID {
			return out[i].StationID < out[j].StationID
		}
		if out[i].CSQ != out[j].CSQ {
			return out[i].CSQ < out[j].CSQ
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

func sortedHourly(byKey map[rollup.HourKey]*rollup.HourlyAggregate) []rollup.HourlyAggregate {
	out := make([]rollup.HourlyAggregate, 0, len(byKey))
	for _, agg := range byKey {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.StationID != b.StationID {
			return a.StationID < b.StationID
		}
		if a.CSQ != b.CSQ {
			return a.CSQ < b.CSQ
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.Hour < b.Hour
	})
	return out
}
