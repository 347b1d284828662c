package rollup

import (
	"context"
	"math"
	"time"

	telemetry "hydromet-cloud/internal/telemetry/domain"
)

// ChannelStat is the per-channel statistical result of one bucket.
// SampleCount zero means the bucket carried no data for the channel; Sum and
// Avg are zero in that case.
type ChannelStat struct {
	Sum         float64
	Avg         float64
	SampleCount int
}

// HourKey identifies an hourly aggregate bucket.
type HourKey struct {
	StationID string
	CSQ       string
	Date      time.Time // midnight UTC of the observation date
	Hour      int       // 0..23
}

// Valid reports whether the key has all parts.
func (k HourKey) Valid() bool {
	return k.StationID != "" && !k.Date.IsZero() && k.Hour >= 0 && k.Hour <= 23
}

// Start returns the inclusive start instant of the bucket.
func (k HourKey) Start() time.Time {
	return k.Date.Add(time.Duration(k.Hour) * time.Hour)
}

// DayKey identifies a daily aggregate bucket.
type DayKey struct {
	StationID string
	CSQ       string
	Date      time.Time
}

// HourlyAggregate holds per-channel sum/avg for one station, csq and hour.
// Rows converge under upsert-by-key: recomputing and writing the same bucket
// twice leaves identical state.
type HourlyAggregate struct {
	StationID string
	CSQ       string
	Date      time.Time
	Hour      int
	Stats     [telemetry.ChannelCount]ChannelStat
}

// Key returns the bucket identity.
func (a HourlyAggregate) Key() HourKey {
	return HourKey{StationID: a.StationID, CSQ: a.CSQ, Date: a.Date, Hour: a.Hour}
}

// DailyAggregate holds per-channel sum/avg for one station, csq and date,
// built from that day's hourly rows.
type DailyAggregate struct {
	StationID string
	CSQ       string
	Date      time.Time
	Stats     [telemetry.ChannelCount]ChannelStat
}

// Key returns the bucket identity.
func (a DailyAggregate) Key() DayKey {
	return DayKey{StationID: a.StationID, CSQ: a.CSQ, Date: a.Date}
}

// HourlyStore persists hourly aggregates keyed by (station, csq, date, hour).
type HourlyStore interface {
	Upsert(ctx context.Context, agg HourlyAggregate) error
	ListByDate(ctx context.Context, date time.Time) ([]HourlyAggregate, error)
	ListByDateRange(ctx context.Context, from, to time.Time) ([]HourlyAggregate, error)
}

// DailyStore persists daily aggregates keyed by (station, csq, date).
type DailyStore interface {
	UpsertDaily(ctx context.Context, agg DailyAggregate) error
	ListDailyByDateRange(ctx context.Context, from, to time.Time) ([]DailyAggregate, error)
}

// BucketOf returns the hourly bucket an observation instant falls into.
func BucketOf(stationID, csq string, observedAt time.Time) HourKey {
	at := observedAt.UTC()
	return HourKey{
		StationID: stationID,
		CSQ:       csq,
		Date:      time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC),
		Hour:      at.Hour(),
	}
}

// RoundAvg rounds an average to two decimals, half up.
func RoundAvg(value float64) float64 {
	return math.Floor(value*100+0.5) / 100
}
