package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"hydromet-cloud/internal/alarms/application/events"
	alarms "hydromet-cloud/internal/alarms/domain"
	"hydromet-cloud/internal/observability/metrics"
	telemetry "hydromet-cloud/internal/telemetry/domain"
)

// EventPublisher publishes alarm events to the outbound channel.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// AlarmDetail describes one detected breach.
type AlarmDetail struct {
	StationID      string
	CSQ            string
	Parameter      string
	SensorValue    float64
	ThresholdValue float64
	ObservedAt     time.Time
	Message        string
}

// CheckResult is the synchronous outcome of one evaluation pass.
type CheckResult struct {
	AlarmCount int
	Details    []AlarmDetail
	Message    string
}

// Service evaluates readings against configured thresholds, persists alarm
// events and publishes them on the alarm channel. It also carries the
// administrative threshold surface.
type Service struct {
	thresholds alarms.ThresholdStore
	alarmStore alarms.AlarmStore
	readings   telemetry.ReadingStore
	publisher  EventPublisher
	clock      Clock
	logger     *log.Logger
}

// ServiceOption customizes the service.
type ServiceOption func(*Service)

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithPublisher assigns the alarm event publisher.
func WithPublisher(publisher EventPublisher) ServiceOption {
	return func(s *Service) { s.publisher = publisher }
}

// NewService constructs an alarm service.
func NewService(thresholds alarms.ThresholdStore, alarmStore alarms.AlarmStore, readings telemetry.ReadingStore, logger *log.Logger, opts ...ServiceOption) (*Service, error) {
	if thresholds == nil {
		return nil, errors.New("alarms: nil threshold store")
	}
	if alarmStore == nil {
		return nil, errors.New("alarms: nil alarm store")
	}
	if readings == nil {
		return nil, errors.New("alarms: nil reading store")
	}
	service := &Service{
		thresholds: thresholds,
		alarmStore: alarmStore,
		readings:   readings,
		clock:      systemClock{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Evaluate checks every reading against the configured thresholds. Readings
// are visited in input order and channels in canonical order, so the detail
// list is deterministic. A channel without a threshold is skipped silently;
// a value strictly greater than its threshold produces one AlarmDetail,
// persists one AlarmEvent and publishes one event on the alarm channel.
func (s *Service) Evaluate(ctx context.Context, readings []telemetry.Reading) (CheckResult, error) {
	if s == nil {
		return CheckResult{}, errors.New("alarms: nil service")
	}
	started := s.clock.Now()

	var details []AlarmDetail
	for _, reading := range readings {
		for _, channel := range telemetry.Channels() {
			value, ok := reading.Values.Get(channel)
			if !ok {
				continue
			}
			threshold, err := s.thresholds.Get(ctx, alarms.ThresholdKey{
				StationID: reading.StationID,
				CSQ:       reading.CSQ,
				Channel:   channel,
			})
			if errors.Is(err, alarms.ErrThresholdNotFound) {
				continue
			}
			if err != nil {
				metrics.ObserveAlarmSweep("error", s.clock.Now().Sub(started))
				return CheckResult{}, err
			}
			if value <= threshold.Value {
				continue
			}

			detail := AlarmDetail{
				StationID:      reading.StationID,
				CSQ:            reading.CSQ,
				Parameter:      channel.String(),
				SensorValue:    value,
				ThresholdValue: threshold.Value,
				ObservedAt:     reading.ObservedAt,
				Message: fmt.Sprintf("station %s csq %s: %s=%.2f exceeds threshold %.2f",
					reading.StationID, reading.CSQ, channel.String(), value, threshold.Value),
			}
			details = append(details, detail)

			if err := s.raise(ctx, detail, channel); err != nil {
				metrics.ObserveAlarmSweep("error", s.clock.Now().Sub(started))
				return CheckResult{}, err
			}
		}
	}

	result := CheckResult{
		AlarmCount: len(details),
		Details:    details,
		Message:    summaryMessage(len(details)),
	}
	metrics.ObserveAlarmSweep("success", s.clock.Now().Sub(started))
	return result, nil
}

// EvaluateWindow loads readings observed in [from, to) and evaluates them.
func (s *Service) EvaluateWindow(ctx context.Context, from, to time.Time) (CheckResult, error) {
	if s == nil {
		return CheckResult{}, errors.New("alarms: nil service")
	}
	readings, err := s.readings.ListByTimeRange(ctx, from, to)
	if err != nil {
		return CheckResult{}, err
	}
	return s.Evaluate(ctx, readings)
}

func (s *Service) raise(ctx context.Context, detail AlarmDetail, channel telemetry.Channel) error {
	now := s.clock.Now().UTC()
	event := alarms.AlarmEvent{
		ID:             alarms.BuildAlarmID(detail.StationID, detail.CSQ, channel, detail.ObservedAt),
		StationID:      detail.StationID,
		CSQ:            detail.CSQ,
		Channel:        channel,
		SensorValue:    detail.SensorValue,
		ThresholdValue: detail.ThresholdValue,
		ObservedAt:     detail.ObservedAt,
		Message:        detail.Message,
		CreatedAt:      now,
	}

	inserted, err := s.alarmStore.Insert(ctx, event)
	if err != nil {
		return err
	}
	if !inserted {
		// Same breach already recorded by an earlier overlapping sweep.
		return nil
	}

	metrics.IncAlarmEvent(channel.String())
	if s.logger != nil {
		s.logger.Printf("alarm: %s", detail.Message)
	}
	if s.publisher == nil {
		return nil
	}
	return s.publisher.Publish(ctx, events.AlarmRaised{
		AlarmID:        event.ID,
		StationID:      event.StationID,
		CSQ:            event.CSQ,
		Parameter:      channel.String(),
		SensorValue:    event.SensorValue,
		ThresholdValue: event.ThresholdValue,
		ObservedAt:     event.ObservedAt,
		Message:        event.Message,
		OccurredAt:     now,
	})
}

// GetThreshold returns the configured threshold for a key.
func (s *Service) GetThreshold(ctx context.Context, key alarms.ThresholdKey) (*alarms.Threshold, error) {
	if s == nil {
		return nil, errors.New("alarms: nil service")
	}
	return s.thresholds.Get(ctx, key)
}

// PutThreshold creates or updates a threshold.
func (s *Service) PutThreshold(ctx context.Context, threshold alarms.Threshold) error {
	if s == nil {
		return errors.New("alarms: nil service")
	}
	if threshold.StationID == "" {
		return errors.New("alarms: station id required")
	}
	threshold.UpdatedAt = s.clock.Now().UTC()
	return s.thresholds.Upsert(ctx, threshold)
}

// ListAlarms returns persisted alarm events by station and time range.
func (s *Service) ListAlarms(ctx context.Context, stationID string, from, to time.Time) ([]alarms.AlarmEvent, error) {
	if s == nil {
		return nil, errors.New("alarms: nil service")
	}
	if stationID == "" {
		return nil, errors.New("alarms: station id required")
	}
	return s.alarmStore.ListByStationAndTime(ctx, stationID, from.UTC(), to.UTC())
}

func summaryMessage(count int) string {
	if count == 0 {
		return "no thresholds breached"
	}
	return fmt.Sprintf("%d threshold breach(es) detected", count)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
