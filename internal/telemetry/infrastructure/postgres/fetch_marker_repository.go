package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const defaultMarkerTable = "fetch_markers"

// FetchMarkerRepository records which source URLs have already been fetched.
type FetchMarkerRepository struct {
	db    *sql.DB
	table string
}

// NewFetchMarkerRepository constructs a repository over the marker table.
func NewFetchMarkerRepository(db *sql.DB, opts ...func(*FetchMarkerRepository)) *FetchMarkerRepository {
	repo := &FetchMarkerRepository{db: db, table: defaultMarkerTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Exists reports whether the URL has a recorded fetch.
func (r *FetchMarkerRepository) Exists(ctx context.Context, url string) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("fetch marker repo: nil db")
	}

	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE url = $1`, r.table)

	var one int
	err := r.db.QueryRowContext(ctx, query, url).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Record marks the URL as fetched. Re-recording keeps the first timestamp.
func (r *FetchMarkerRepository) Record(ctx context.Context, url string, fetchedAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("fetch marker repo: nil db")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (url, fetched_at)
VALUES ($1, $2)
ON CONFLICT (url) DO NOTHING`, r.table)

	_, err := r.db.ExecContext(ctx, query, url, fetchedAt.UTC())
	return err
}
