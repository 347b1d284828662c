package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	alarms "hydromet-cloud/internal/alarms/domain"
	telemetry "hydromet-cloud/internal/telemetry/domain"
)

const defaultAlarmTable = "alarm_events"

// AlarmRepository is a Postgres implementation for alarm events.
type AlarmRepository struct {
	db    *sql.DB
	table string
}

// AlarmOption configures the repository.
type AlarmOption func(*AlarmRepository)

// WithAlarmTable overrides the table name.
func WithAlarmTable(table string) AlarmOption {
	return func(repo *AlarmRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewAlarmRepository constructs a repository with the default table name.
func NewAlarmRepository(db *sql.DB, opts ...AlarmOption) *AlarmRepository {
	repo := &AlarmRepository{db: db, table: defaultAlarmTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Insert persists an alarm event unless its id already exists.
func (r *AlarmRepository) Insert(ctx context.Context, event alarms.AlarmEvent) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("alarm repo: nil db")
	}
	if event.ID == "" || event.StationID == "" {
		return false, errors.New("alarm repo: invalid event")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	station_id,
	csq,
	parameter,
	sensor_value,
	threshold_value,
	observed_at,
	message,
	created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9
)
ON CONFLICT (id)
DO NOTHING`, r.table)

	result, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.StationID,
		event.CSQ,
		event.Channel.String(),
		event.SensorValue,
		event.ThresholdValue,
		event.ObservedAt,
		event.Message,
		event.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListByStationAndTime returns alarm events observed in [from, to).
func (r *AlarmRepository) ListByStationAndTime(ctx context.Context, stationID string, from, to time.Time) ([]alarms.AlarmEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alarm repo: nil db")
	}
	if stationID == "" {
		return nil, errors.New("alarm repo: station id required")
	}

	query := fmt.Sprintf(`
SELECT id, station_id, csq, parameter, sensor_value, threshold_value, observed_at, message, created_at
FROM %s
WHERE station_id = $1 AND observed_at >= $2 AND observed_at < $3
ORDER BY observed_at ASC, parameter ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, stationID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alarms.AlarmEvent
	for rows.Next() {
		var event alarms.AlarmEvent
		var parameter string
		if err := rows.Scan(
			&event.ID,
			&event.StationID,
			&event.CSQ,
			&parameter,
			&event.SensorValue,
			&event.ThresholdValue,
			&event.ObservedAt,
			&event.Message,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		channel, err := telemetry.ParseChannel(parameter)
		if err != nil {
			return nil, err
		}
		event.Channel = channel
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
