package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	stations "hydromet-cloud/internal/stations/domain"
)

const defaultStationsTable = "stations"

// StationRepository is a Postgres implementation for stations.
type StationRepository struct {
	db    *sql.DB
	table string
}

// StationOption configures the repository.
type StationOption func(*StationRepository)

// WithStationTable overrides the default table name.
func WithStationTable(table string) StationOption {
	return func(repo *StationRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewStationRepository constructs a repository.
func NewStationRepository(db *sql.DB, opts ...StationOption) *StationRepository {
	repo := &StationRepository{db: db, table: defaultStationsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Get loads a station by id. A missing station yields (nil, nil).
func (r *StationRepository) Get(ctx context.Context, id string) (*stations.Station, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station repo: nil db")
	}
	if id == "" {
		return nil, errors.New("station repo: empty id")
	}

	query := fmt.Sprintf(`
SELECT id, name, river, basin, latitude, longitude, active, created_at, updated_at
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	station, err := scanStation(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return station, nil
}

// Save upserts a station.
func (r *StationRepository) Save(ctx context.Context, station *stations.Station) error {
	if r == nil || r.db == nil {
		return errors.New("station repo: nil db")
	}
	if station == nil {
		return errors.New("station repo: nil station")
	}
	if err := station.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, name, river, basin, latitude, longitude, active, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $8
)
ON CONFLICT (id)
DO UPDATE SET
	name = EXCLUDED.name,
	river = EXCLUDED.river,
	basin = EXCLUDED.basin,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	active = EXCLUDED.active,
	updated_at = EXCLUDED.updated_at`, r.table)

	_, err := r.db.ExecContext(ctx, query,
		station.ID,
		station.Name,
		station.River,
		station.Basin,
		station.Latitude,
		station.Longitude,
		station.Active,
		now,
	)
	return err
}

// List returns every registered station ordered by id.
func (r *StationRepository) List(ctx context.Context) ([]stations.Station, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT id, name, river, basin, latitude, longitude, active, created_at, updated_at
FROM %s
ORDER BY id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []stations.Station
	for rows.Next() {
		station, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *station)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStation(row rowScanner) (*stations.Station, error) {
	var station stations.Station
	if err := row.Scan(
		&station.ID,
		&station.Name,
		&station.River,
		&station.Basin,
		&station.Latitude,
		&station.Longitude,
		&station.Active,
		&station.CreatedAt,
		&station.UpdatedAt,
	); err != nil {
		return nil, err
	}
	station.CreatedAt = station.CreatedAt.UTC()
	station.UpdatedAt = station.UpdatedAt.UTC()
	return &station, nil
}

var _ stations.Repository = (*StationRepository)(nil)
