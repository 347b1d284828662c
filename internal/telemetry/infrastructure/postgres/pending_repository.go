package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	telemetry "hydromet-cloud/internal/telemetry/domain"
)

// PendingRepository reads and drains the pending rollup buffer.
type PendingRepository struct {
	db    *sql.DB
	table string
}

// NewPendingRepository constructs a repository over the pending buffer table.
func NewPendingRepository(db *sql.DB, opts ...func(*PendingRepository)) *PendingRepository {
	repo := &PendingRepository{db: db, table: defaultPendingTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// ListAll returns every buffered reading, ordered by observation time.
func (r *PendingRepository) ListAll(ctx context.Context) ([]telemetry.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("pending repo: nil db")
	}

	query := fmt.Sprintf(`
SELECT %s
FROM %s
ORDER BY observed_at ASC, station_id ASC, csq ASC`, readingColumns, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReadings(rows)
}

// DeleteKeys removes the given readings from the buffer. Keys without a
// matching row are ignored, so a retried drain stays safe.
func (r *PendingRepository) DeleteKeys(ctx context.Context, keys []telemetry.ReadingKey) error {
	if r == nil || r.db == nil {
		return errors.New("pending repo: nil db")
	}
	if len(keys) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
DELETE FROM %s
WHERE station_id = $1 AND csq = $2 AND observed_at = $3`, r.table)

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

	for _, key := range keys {
		if _, err := stmt.ExecContext(ctx, key.StationID, key.CSQ, key.ObservedAt.UTC()); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

var _ telemetry.PendingStore = (*PendingRepository)(nil)
