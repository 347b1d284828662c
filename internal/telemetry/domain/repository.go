package telemetry

import (
	"context"
	"time"
)

// ReadingStore persists normalized readings.
type ReadingStore interface {
	// InsertWithPending persists a reading together with its pending-buffer
	// copy in one unit of work, unless a reading with the same identity key
	// already exists. It reports whether a row was written.
	InsertWithPending(ctx context.Context, reading Reading) (bool, error)
	ListByTimeRange(ctx context.Context, from, to time.Time) ([]Reading, error)
}

// PendingStore is the transient buffer of readings awaiting rollup. Entries
// are written by ingestion and drained by the aggregation engine after a
// successful rollup cycle.
type PendingStore interface {
	ListAll(ctx context.Context) ([]Reading, error)
	DeleteKeys(ctx context.Context, keys []ReadingKey) error
}

// FetchMarkerStore records source URLs that were already fetched.
type FetchMarkerStore interface {
	Exists(ctx context.Context, url string) (bool, error)
	Record(ctx context.Context, url string, fetchedAt time.Time) error
}
