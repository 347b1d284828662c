package application

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"hydromet-cloud/internal/analytics/domain/rollup"
	telemetry "hydromet-cloud/internal/telemetry/domain"
)

type memoryPendingStore struct {
	readings  []telemetry.Reading
	deleteErr error
}

func (s *memoryPendingStore) ListAll(_ context.Context) ([]telemetry.Reading, error) {
	out := make([]telemetry.Reading, len(s.readings))
	copy(out, s.readings)
	return out, nil
}

func (s *memoryPendingStore) DeleteKeys(_ context.Context, keys []telemetry.ReadingKey) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	drop := make(map[telemetry.ReadingKey]struct{}, len(keys))
	for _, key := range keys {
		drop[key] = struct{}{}
	}
	var kept []telemetry.Reading
	for _, reading := range s.readings {
		if _, ok := drop[reading.Key()]; !ok {
			kept = append(kept, reading)
		}
	}
	s.readings = kept
	return nil
}

type memoryReadingStore struct {
	readings []telemetry.Reading
}

func (s *memoryReadingStore) InsertWithPending(_ context.Context, reading telemetry.Reading) (bool, error) {
	s.readings = append(s.readings, reading)
	return true, nil
}

func (s *memoryReadingStore) ListByTimeRange(_ context.Context, from, to time.Time) ([]telemetry.Reading, error) {
	var out []telemetry.Reading
	for _, reading := range s.readings {
		if !reading.ObservedAt.Before(from) && reading.ObservedAt.Before(to) {
			out = append(out, reading)
		}
	}
	return out, nil
}

type memoryAggregateStore struct {
	hourly    map[rollup.HourKey]rollup.HourlyAggregate
	daily     map[rollup.DayKey]rollup.DailyAggregate
	upsertErr error
}

func newMemoryAggregateStore() *memoryAggregateStore {
	return &memoryAggregateStore{
		hourly: map[rollup.HourKey]rollup.HourlyAggregate{},
		daily:  map[rollup.DayKey]rollup.DailyAggregate{},
	}
}

func (s *memoryAggregateStore) Upsert(_ context.Context, agg rollup.HourlyAggregate) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.hourly[agg.Key()] = agg
	return nil
}

func (s *memoryAggregateStore) ListByDate(_ context.Context, date time.Time) ([]rollup.HourlyAggregate, error) {
	var out []rollup.HourlyAggregate
	for _, agg := range s.hourly {
		if agg.Date.Equal(date) {
			out = append(out, agg)
		}
	}
	return out, nil
}

func (s *memoryAggregateStore) ListByDateRange(_ context.Context, from, to time.Time) ([]rollup.HourlyAggregate, error) {
	var out []rollup.HourlyAggregate
	for _, agg := range s.hourly {
		if !agg.Date.Before(from) && agg.Date.Before(to) {
			out = append(out, agg)
		}
	}
	return out, nil
}

func (s *memoryAggregateStore) UpsertDaily(_ context.Context, agg rollup.DailyAggregate) error {
	s.daily[agg.Key()] = agg
	return nil
}

func (s *memoryAggregateStore) ListDailyByDateRange(_ context.Context, from, to time.Time) ([]rollup.DailyAggregate, error) {
	var out []rollup.DailyAggregate
	for _, agg := range s.daily {
		if !agg.Date.Before(from) && agg.Date.Before(to) {
			out = append(out, agg)
		}
	}
	return out, nil
}

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func testLogger() *log.Logger {
	return log.New(os.Stdout, "test ", log.LstdFlags)
}

func pendingReading(station, csq string, at time.Time, value float64) telemetry.Reading {
	r := telemetry.Reading{StationID: station, CSQ: csq, ObservedAt: at}
	r.Values.Set(telemetry.ChannelV1, value)
	return r
}

func newTestService(t *testing.T, pending *memoryPendingStore, readings *memoryReadingStore, aggs *memoryAggregateStore, lock RunLock, now time.Time) *RollupService {
	t.Helper()
	service, err := NewRollupService(pending, readings, aggs, aggs, lock, testLogger(), WithClock(fixedClock{at: now}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func TestRunRollsUpAndDrainsPending(t *testing.T) {
	hour := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	batch := []telemetry.Reading{
		pendingReading("st-01", "21", hour.Add(10*time.Minute), 10),
		pendingReading("st-01", "21", hour.Add(20*time.Minute), 14),
	}
	pending := &memoryPendingStore{readings: batch}
	readings := &memoryReadingStore{readings: batch}
	aggs := newMemoryAggregateStore()

	service := newTestService(t, pending, readings, aggs, NewLocalRunLock(), hour.Add(2*time.Hour))
	if err := service.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	key := rollup.HourKey{StationID: "st-01", CSQ: "21", Date: hour.Truncate(24 * time.Hour), Hour: 8}
	agg, ok := aggs.hourly[key]
	if !ok {
		t.Fatalf("expected hourly bucket %+v", key)
	}
	stat := agg.Stats[telemetry.ChannelV1]
	if stat.Sum != 24 || stat.Avg != 12 || stat.SampleCount != 2 {
		t.Fatalf("unexpected stat %+v", stat)
	}
	if len(pending.readings) != 0 {
		t.Fatalf("expected drained pending buffer, got %d", len(pending.readings))
	}
}

func TestRunIsIdempotentForReplayedBuckets(t *testing.T) {
	hour := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	first := pendingReading("st-01", "21", hour.Add(10*time.Minute), 10)
	late := pendingReading("st-01", "21", hour.Add(40*time.Minute), 20)

	pending := &memoryPendingStore{readings: []telemetry.Reading{first}}
	readings := &memoryReadingStore{readings: []telemetry.Reading{first}}
	aggs := newMemoryAggregateStore()

	service := newTestService(t, pending, readings, aggs, NewLocalRunLock(), hour.Add(2*time.Hour))
	if err := service.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	// A late sample for the already rolled-up bucket arrives afterwards.
	pending.readings = []telemetry.Reading{late}
	readings.readings = append(readings.readings, late)
	if err := service.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}

	key := rollup.HourKey{StationID: "st-01", CSQ: "21", Date: hour.Truncate(24 * time.Hour), Hour: 8}
	stat := aggs.hourly[key].Stats[telemetry.ChannelV1]
	if stat.Sum != 30 || stat.SampleCount != 2 || stat.Avg != 15 {
		t.Fatalf("expected recomputed bucket over both samples, got %+v", stat)
	}
}

func TestRunKeepsPendingOnUpsertFailure(t *testing.T) {
	hour := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	batch := []telemetry.Reading{pendingReading("st-01", "21", hour, 10)}
	pending := &memoryPendingStore{readings: batch}
	readings := &memoryReadingStore{readings: batch}
	aggs := newMemoryAggregateStore()
	aggs.upsertErr = errors.New("db down")

	service := newTestService(t, pending, readings, aggs, NewLocalRunLock(), hour.Add(2*time.Hour))
	if err := service.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(pending.readings) != 1 {
		t.Fatalf("expected pending buffer untouched, got %d entries", len(pending.readings))
	}
}

func TestRunRejectsConcurrentPass(t *testing.T) {
	hour := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	pending := &memoryPendingStore{}
	readings := &memoryReadingStore{}
	aggs := newMemoryAggregateStore()
	lock := NewLocalRunLock()

	service := newTestService(t, pending, readings, aggs, lock, hour)

	release, err := lock.TryAcquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	if err := service.Run(context.Background()); !errors.Is(err, rollup.ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld, got %v", err)
	}
}

func TestRollupDayBuildsDailyRows(t *testing.T) {
	date := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	aggs := newMemoryAggregateStore()
	for hour, stat := range map[int]rollup.ChannelStat{
		8: {Sum: 20, Avg: 10, SampleCount: 2},
		9: {Sum: 16, Avg: 16, SampleCount: 1},
	} {
		agg := rollup.HourlyAggregate{StationID: "st-01", CSQ: "21", Date: date, Hour: hour}
		agg.Stats[telemetry.ChannelV1] = stat
		aggs.hourly[agg.Key()] = agg
	}

	service := newTestService(t, &memoryPendingStore{}, &memoryReadingStore{}, aggs, NewLocalRunLock(), date.AddDate(0, 0, 1))
	if err := service.RollupDay(context.Background(), date); err != nil {
		t.Fatalf("rollup day: %v", err)
	}

	day, ok := aggs.daily[rollup.DayKey{StationID: "st-01", CSQ: "21", Date: date}]
	if !ok {
		t.Fatal("expected daily row")
	}
	stat := day.Stats[telemetry.ChannelV1]
	if stat.Sum != 36 || stat.SampleCount != 3 || stat.Avg != 12 {
		t.Fatalf("unexpected daily stat %+v", stat)
	}
}
