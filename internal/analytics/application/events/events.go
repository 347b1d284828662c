package events

import "time"

// RollupCompleted is emitted after a rollup phase upserts its buckets.
type RollupCompleted struct {
	Phase      string    `json:"phase"` // "hour" or "day"
	Date       time.Time `json:"date"`
	Buckets    int       `json:"buckets"`
	OccurredAt time.Time `json:"occurred_at"`
}
