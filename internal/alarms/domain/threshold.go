package alarms

import (
	"context"
	"errors"
	"time"

	telemetry "hydromet-cloud/internal/telemetry/domain"
)

// ErrThresholdNotFound is returned when no threshold is configured for a key.
// Most station/channel pairs are unmonitored; callers skip silently.
var ErrThresholdNotFound = errors.New("alarms: threshold not found")

// ThresholdKey identifies a threshold.
type ThresholdKey struct {
	StationID string
	CSQ       string
	Channel   telemetry.Channel
}

// Threshold is the configured upper bound for one station/csq/channel.
// A reading strictly greater than Value breaches the threshold.
type Threshold struct {
	StationID string
	CSQ       string
	Channel   telemetry.Channel
	Value     float64
	UpdatedAt time.Time
}

// Key returns the lookup identity.
func (t Threshold) Key() ThresholdKey {
	return ThresholdKey{StationID: t.StationID, CSQ: t.CSQ, Channel: t.Channel}
}

// ThresholdStore persists thresholds keyed by (station, csq, channel).
type ThresholdStore interface {
	Get(ctx context.Context, key ThresholdKey) (*Threshold, error)
	Upsert(ctx context.Context, threshold Threshold) error
	ListByStation(ctx context.Context, stationID string) ([]Threshold, error)
}
