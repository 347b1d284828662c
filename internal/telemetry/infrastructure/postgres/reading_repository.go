package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	telemetry "hydromet-cloud/internal/telemetry/domain"
)

const (
	defaultReadingTable = "readings"
	defaultPendingTable = "pending_readings"
)

// channelColumns maps each channel to its column name, in canonical order.
var channelColumns = [telemetry.ChannelCount]string{
	"v1", "v2", "v3", "v4", "v5", "v6", "v7",
	"rh", "tx", "echo", "rain_d", "speed",
}

const readingColumns = "station_id, csq, observed_at, time_category, v1, v2, v3, v4, v5, v6, v7, rh, tx, echo, rain_d, speed"

// ReadingRepository is a Postgres implementation for readings and their
// pending-buffer copies.
type ReadingRepository struct {
	db           *sql.DB
	readingTable string
	pendingTable string
}

// ReadingOption configures the repository.
type ReadingOption func(*ReadingRepository)

// WithReadingTable overrides the reading table name.
func WithReadingTable(table string) ReadingOption {
	return func(repo *ReadingRepository) {
		if table != "" {
			repo.readingTable = table
		}
	}
}

// WithPendingTable overrides the pending buffer table name.
func WithPendingTable(table string) ReadingOption {
	return func(repo *ReadingRepository) {
		if table != "" {
			repo.pendingTable = table
		}
	}
}

// NewReadingRepository constructs a repository with default table names.
func NewReadingRepository(db *sql.DB, opts ...ReadingOption) *ReadingRepository {
	repo := &ReadingRepository{
		db:           db,
		readingTable: defaultReadingTable,
		pendingTable: defaultPendingTable,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// InsertWithPending persists a reading and its pending-buffer copy in one
// transaction. The unique constraint on (station_id, csq, observed_at) is
// the authoritative dedup guard: a conflicting insert writes nothing and
// reports false.
func (r *ReadingRepository) InsertWithPending(ctx context.Context, reading telemetry.Reading) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("reading repo: nil db")
	}
	if reading.StationID == "" || reading.ObservedAt.IsZero() {
		return false, errors.New("reading repo: invalid reading")
	}

	insertQuery := fmt.Sprintf(`
INSERT INTO %%s (
	%s
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
)
ON CONFLICT (station_id, csq, observed_at)
DO NOTHING`, readingColumns)

	args := readingArgs(reading)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}

	result, err := tx.ExecContext(ctx, fmt.Sprintf(insertQuery, r.readingTable), args...)
	if err != nil {
		_ = tx.Rollback()
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return false, err
	}
	if affected == 0 {
		_ = tx.Rollback()
		return false, nil
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(insertQuery, r.pendingTable), args...); err != nil {
		_ = tx.Rollback()
		return false, err
	}
	return true, tx.Commit()
}

// ListByTimeRange returns readings observed in [from, to), ordered by time.
func (r *ReadingRepository) ListByTimeRange(ctx context.Context, from, to time.Time) ([]telemetry.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE observed_at >= $1 AND observed_at < $2
ORDER BY observed_at ASC, station_id ASC, csq ASC`, readingColumns, r.readingTable)

	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReadings(rows)
}

func readingArgs(reading telemetry.Reading) []any {
	args := make([]any, 0, 4+telemetry.ChannelCount)
	args = append(args,
		reading.StationID,
		reading.CSQ,
		reading.ObservedAt.UTC(),
		string(reading.TimeCategory()),
	)
	for _, channel := range telemetry.Channels() {
		value := sql.NullFloat64{}
		if v, ok := reading.Values.Get(channel); ok {
			value = sql.NullFloat64{Float64: v, Valid: true}
		}
		args = append(args, value)
	}
	return args
}

func scanReadings(rows *sql.Rows) ([]telemetry.Reading, error) {
	var out []telemetry.Reading
	for rows.Next() {
		var reading telemetry.Reading
		var category string
		values := make([]sql.NullFloat64, telemetry.ChannelCount)

		dest := make([]any, 0, 4+telemetry.ChannelCount)
		dest = append(dest, &reading.StationID, &reading.CSQ, &reading.ObservedAt, &category)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		reading.ObservedAt = reading.ObservedAt.UTC()
		// Classification is derived, never trusted from storage.
		reading.Category = telemetry.Classify(reading.ObservedAt)
		for i, value := range values {
			if value.Valid {
				reading.Values.Set(telemetry.Channel(i), value.Float64)
			}
		}
		out = append(out, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
