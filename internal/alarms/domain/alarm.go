package alarms

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"time"

	telemetry "hydromet-cloud/internal/telemetry/domain"
)

// AlarmEvent is the immutable record of one threshold breach: a single
// reading channel whose value exceeded its configured threshold.
type AlarmEvent struct {
	ID             string
	StationID      string
	CSQ            string
	Channel        telemetry.Channel
	SensorValue    float64
	ThresholdValue float64
	ObservedAt     time.Time
	Message        string
	CreatedAt      time.Time
}

// BuildAlarmID derives a deterministic id from the breach identity, so
// re-evaluating the same reading cannot persist the event twice.
func BuildAlarmID(stationID, csq string, channel telemetry.Channel, observedAt time.Time) string {
	sum := sha1.Sum([]byte(stationID + "|" + csq + "|" + channel.String() + "|" + observedAt.UTC().Format(time.RFC3339)))
	return "alarm-" + hex.EncodeToString(sum[:8])
}

// AlarmStore persists alarm events.
type AlarmStore interface {
	// Insert persists the event unless one with the same id exists. It
	// reports whether a row was written.
	Insert(ctx context.Context, event AlarmEvent) (bool, error)
	ListByStationAndTime(ctx context.Context, stationID string, from, to time.Time) ([]AlarmEvent, error)
}
