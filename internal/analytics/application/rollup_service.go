package application

import (
	"context"
	"errors"
	"log"
	"time"

	"hydromet-cloud/internal/analytics/application/events"
	"hydromet-cloud/internal/analytics/domain/rollup"
	"hydromet-cloud/internal/eventing/eventbus"
	"hydromet-cloud/internal/observability/metrics"
	telemetry "hydromet-cloud/internal/telemetry/domain"
)

// RunLock serializes rollup runs. TryAcquire returns a release function, or
// rollup.ErrLockHeld when another run is in flight.
type RunLock interface {
	TryAcquire(ctx context.Context) (func(), error)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// RollupService rolls pending readings into hourly aggregates, hourly rows
// into daily rows, and drains the pending buffer once both phases succeed.
type RollupService struct {
	pending  telemetry.PendingStore
	readings telemetry.ReadingStore
	hours    rollup.HourlyStore
	days     rollup.DailyStore
	lock     RunLock
	bus      eventbus.EventBus
	clock    Clock
	logger   *log.Logger
}

// RollupOption customizes the rollup service.
type RollupOption func(*RollupService)

// WithBus assigns an event bus for rollup notifications.
func WithBus(bus eventbus.EventBus) RollupOption {
	return func(s *RollupService) { s.bus = bus }
}

// WithClock assigns a clock.
func WithClock(clock Clock) RollupOption {
	return func(s *RollupService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewRollupService constructs a rollup service.
func NewRollupService(pending telemetry.PendingStore, readings telemetry.ReadingStore, hours rollup.HourlyStore, days rollup.DailyStore, lock RunLock, logger *log.Logger, opts ...RollupOption) (*RollupService, error) {
	if pending == nil || readings == nil {
		return nil, errors.New("rollup: nil reading stores")
	}
	if hours == nil || days == nil {
		return nil, errors.New("rollup: nil aggregate stores")
	}
	if lock == nil {
		return nil, errors.New("rollup: nil run lock")
	}
	service := &RollupService{
		pending:  pending,
		readings: readings,
		hours:    hours,
		days:     days,
		lock:     lock,
		clock:    systemClock{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Run executes the hourly phase, the daily phase for the previous calendar
// day, and then clears the pending entries that were rolled up. The pending
// buffer is only drained after both phases succeed, so a mid-run failure
// leaves everything for the next cycle. At most one run is in flight.
func (s *RollupService) Run(ctx context.Context) error {
	if s == nil {
		return errors.New("rollup: nil service")
	}
	release, err := s.lock.TryAcquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	snapshot, err := s.pending.ListAll(ctx)
	if err != nil {
		return err
	}

	if err := s.rollupHour(ctx, snapshot); err != nil {
		return err
	}

	yesterday := s.clock.Now().UTC().AddDate(0, 0, -1)
	if err := s.RollupDay(ctx, yesterday); err != nil {
		return err
	}

	if len(snapshot) == 0 {
		return nil
	}
	keys := make([]telemetry.ReadingKey, 0, len(snapshot))
	for _, reading := range snapshot {
		keys = append(keys, reading.Key())
	}
	return s.pending.DeleteKeys(ctx, keys)
}

// RollupHour runs only the hourly phase over the current pending buffer.
// The buffer is not cleared; Run owns the cleanup.
func (s *RollupService) RollupHour(ctx context.Context) error {
	if s == nil {
		return errors.New("rollup: nil service")
	}
	snapshot, err := s.pending.ListAll(ctx)
	if err != nil {
		return err
	}
	return s.rollupHour(ctx, snapshot)
}

func (s *RollupService) rollupHour(ctx context.Context, snapshot []telemetry.Reading) error {
	started := s.clock.Now()
	if len(snapshot) == 0 {
		return nil
	}

	dirty := rollup.DirtyBuckets(snapshot)
	dirtySet := make(map[rollup.HourKey]struct{}, len(dirty))
	from, to := dirty[0].Start(), dirty[0].Start()
	for _, key := range dirty {
		dirtySet[key] = struct{}{}
		if key.Start().Before(from) {
			from = key.Start()
		}
		if key.Start().After(to) {
			to = key.Start()
		}
	}
	to = to.Add(time.Hour)

	// Recompute each touched bucket from the authoritative reading store so
	// the upsert converges even when the bucket was rolled up before.
	window, err := s.readings.ListByTimeRange(ctx, from, to)
	if err != nil {
		metrics.ObserveRollup("hour", "error", s.clock.Now().Sub(started))
		return err
	}

	upserted := 0
	for _, agg := range rollup.BuildHourly(window) {
		if _, ok := dirtySet[agg.Key()]; !ok {
			continue
		}
		if err := s.hours.Upsert(ctx, agg); err != nil {
			metrics.ObserveRollup("hour", "error", s.clock.Now().Sub(started))
			return err
		}
		upserted++
	}

	metrics.ObserveRollup("hour", "success", s.clock.Now().Sub(started))
	if s.logger != nil {
		s.logger.Printf("rollup: hour phase pending=%d buckets=%d", len(snapshot), upserted)
	}
	s.publish(ctx, events.RollupCompleted{Phase: "hour", Date: from, Buckets: upserted, OccurredAt: s.clock.Now().UTC()})
	return nil
}

// RollupDay rolls the hourly aggregates of one date into daily rows.
func (s *RollupService) RollupDay(ctx context.Context, date time.Time) error {
	if s == nil {
		return errors.New("rollup: nil service")
	}
	started := s.clock.Now()
	date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	hours, err := s.hours.ListByDate(ctx, date)
	if err != nil {
		metrics.ObserveRollup("day", "error", s.clock.Now().Sub(started))
		return err
	}
	if len(hours) == 0 {
		return nil
	}

	days := rollup.BuildDaily(date, hours)
	for _, agg := range days {
		if err := s.days.UpsertDaily(ctx, agg); err != nil {
			metrics.ObserveRollup("day", "error", s.clock.Now().Sub(started))
			return err
		}
	}

	metrics.ObserveRollup("day", "success", s.clock.Now().Sub(started))
	if s.logger != nil {
		s.logger.Printf("rollup: day phase date=%s rows=%d", date.Format("2006-01-02"), len(days))
	}
	s.publish(ctx, events.RollupCompleted{Phase: "day", Date: date, Buckets: len(days), OccurredAt: s.clock.Now().UTC()})
	return nil
}

func (s *RollupService) publish(ctx context.Context, event events.RollupCompleted) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, event); err != nil && s.logger != nil {
		s.logger.Printf("rollup: publish %s event: %v", event.Phase, err)
	}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
