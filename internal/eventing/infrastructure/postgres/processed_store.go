package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const defaultProcessedTable = "processed_events"

// ProcessedStore tracks (event id, consumer) pairs that have already been
// handled, backing the idempotent subscribe path.
type ProcessedStore struct {
	db          *sql.DB
	existsQuery string
	insertQuery string
}

// ProcessedOption configures the processed store.
type ProcessedOption func(*processedConfig)

type processedConfig struct {
	table string
}

// WithProcessedTable overrides the table name.
func WithProcessedTable(table string) ProcessedOption {
	return func(cfg *processedConfig) {
		if table != "" {
			cfg.table = table
		}
	}
}

// NewProcessedStore constructs a processed store over db.
func NewProcessedStore(db *sql.DB, opts ...ProcessedOption) *ProcessedStore {
	cfg := processedConfig{table: defaultProcessedTable}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &ProcessedStore{
		db: db,
		existsQuery: fmt.Sprintf(
			`SELECT EXISTS (SELECT 1 FROM %s WHERE event_id = $1 AND consumer_name = $2)`, cfg.table),
		insertQuery: fmt.Sprintf(
			`INSERT INTO %s (event_id, consumer_name, processed_at) VALUES ($1, $2, $3)
ON CONFLICT (event_id, consumer_name) DO NOTHING`, cfg.table),
	}
}

// HasProcessed reports whether the consumer already handled the event.
func (s *ProcessedStore) HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error) {
	if err := s.check(eventID, consumerName); err != nil {
		return false, err
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, s.existsQuery, eventID, consumerName).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// MarkProcessed records the event as handled by the consumer.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, eventID, consumerName string) error {
	if err := s.check(eventID, consumerName); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.insertQuery, eventID, consumerName, time.Now().UTC())
	return err
}

func (s *ProcessedStore) check(eventID, consumerName string) error {
	if s == nil || s.db == nil {
		return errors.New("processed store: nil db")
	}
	if eventID == "" || consumerName == "" {
		return errors.New("processed store: invalid arguments")
	}
	return nil
}
