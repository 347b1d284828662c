package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	alarms "hydromet-cloud/internal/alarms/domain"
	telemetry "hydromet-cloud/internal/telemetry/domain"
)

const defaultThresholdTable = "channel_thresholds"

// ThresholdRepository is a Postgres implementation for thresholds.
type ThresholdRepository struct {
	db    *sql.DB
	table string
}

// ThresholdOption configures the repository.
type ThresholdOption func(*ThresholdRepository)

// WithThresholdTable overrides the table name.
func WithThresholdTable(table string) ThresholdOption {
	return func(repo *ThresholdRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewThresholdRepository constructs a repository with the default table name.
func NewThresholdRepository(db *sql.DB, opts ...ThresholdOption) *ThresholdRepository {
	repo := &ThresholdRepository{db: db, table: defaultThresholdTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Get fetches the threshold for a (station, csq, channel) key.
func (r *ThresholdRepository) Get(ctx context.Context, key alarms.ThresholdKey) (*alarms.Threshold, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("threshold repo: nil db")
	}
	if key.StationID == "" {
		return nil, errors.New("threshold repo: station id required")
	}

	query := fmt.Sprintf(`
SELECT station_id, csq, parameter, threshold_value, updated_at
FROM %s
WHERE station_id = $1 AND csq = $2 AND parameter = $3
LIMIT 1`, r.table)

	row := r.db.QueryRowContext(ctx, query, key.StationID, key.CSQ, key.Channel.String())
	threshold, err := scanThreshold(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, alarms.ErrThresholdNotFound
	}
	if err != nil {
		return nil, err
	}
	return threshold, nil
}

// Upsert creates or replaces a threshold.
func (r *ThresholdRepository) Upsert(ctx context.Context, threshold alarms.Threshold) error {
	if r == nil || r.db == nil {
		return errors.New("threshold repo: nil db")
	}
	if threshold.StationID == "" {
		return errors.New("threshold repo: station id required")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	station_id,
	csq,
	parameter,
	threshold_value,
	updated_at
) VALUES (
	$1, $2, $3, $4, $5
)
ON CONFLICT (station_id, csq, parameter)
DO UPDATE SET
	threshold_value = EXCLUDED.threshold_value,
	updated_at = EXCLUDED.updated_at`, r.table)

	_, err := r.db.ExecContext(ctx, query,
		threshold.StationID,
		threshold.CSQ,
		threshold.Channel.String(),
		threshold.Value,
		threshold.UpdatedAt,
	)
	return err
}

// ListByStation returns all thresholds configured for a station.
func (r *ThresholdRepository) ListByStation(ctx context.Context, stationID string) ([]alarms.Threshold, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("threshold repo: nil db")
	}
	if stationID == "" {
		return nil, errors.New("threshold repo: station id required")
	}

	query := fmt.Sprintf(`
SELECT station_id, csq, parameter, threshold_value, updated_at
FROM %s
WHERE station_id = $1
ORDER BY csq, parameter`, r.table)

	rows, err := r.db.QueryContext(ctx, query, stationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alarms.Threshold
	for rows.Next() {
		threshold, err := scanThreshold(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *threshold)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThreshold(row rowScanner) (*alarms.Threshold, error) {
	var threshold alarms.Threshold
	var parameter string
	if err := row.Scan(&threshold.StationID, &threshold.CSQ, &parameter, &threshold.Value, &threshold.UpdatedAt); err != nil {
		return nil, err
	}
	channel, err := telemetry.ParseChannel(parameter)
	if err != nil {
		return nil, err
	}
	threshold.Channel = channel
	return &threshold, nil
}
