package application

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	alarms "hydromet-cloud/internal/alarms/domain"
	telemetry "hydromet-cloud/internal/telemetry/domain"
)

type memoryThresholdStore struct {
	byKey map[alarms.ThresholdKey]alarms.Threshold
}

func newMemoryThresholdStore() *memoryThresholdStore {
	return &memoryThresholdStore{byKey: map[alarms.ThresholdKey]alarms.Threshold{}}
}

func (s *memoryThresholdStore) Get(_ context.Context, key alarms.ThresholdKey) (*alarms.Threshold, error) {
	threshold, ok := s.byKey[key]
	if !ok {
		return nil, alarms.ErrThresholdNotFound
	}
	return &threshold, nil
}

func (s *memoryThresholdStore) Upsert(_ context.Context, threshold alarms.Threshold) error {
	s.byKey[alarms.ThresholdKey{StationID: threshold.StationID, CSQ: threshold.CSQ, Channel: threshold.Channel}] = threshold
	return nil
}

func (s *memoryThresholdStore) ListByStation(_ context.Context, stationID string) ([]alarms.Threshold, error) {
	var out []alarms.Threshold
	for _, threshold := range s.byKey {
		if threshold.StationID == stationID {
			out = append(out, threshold)
		}
	}
	return out, nil
}

type memoryAlarmStore struct {
	byID    map[string]alarms.AlarmEvent
	inserts int
}

func newMemoryAlarmStore() *memoryAlarmStore {
	return &memoryAlarmStore{byID: map[string]alarms.AlarmEvent{}}
}

func (s *memoryAlarmStore) Insert(_ context.Context, event alarms.AlarmEvent) (bool, error) {
	if _, ok := s.byID[event.ID]; ok {
		return false, nil
	}
	s.byID[event.ID] = event
	s.inserts++
	return true, nil
}

func (s *memoryAlarmStore) ListByStationAndTime(_ context.Context, stationID string, from, to time.Time) ([]alarms.AlarmEvent, error) {
	var out []alarms.AlarmEvent
	for _, event := range s.byID {
		if event.StationID == stationID && !event.ObservedAt.Before(from) && event.ObservedAt.Before(to) {
			out = append(out, event)
		}
	}
	return out, nil
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

type capturePublisher struct {
	events []any
}

func (p *capturePublisher) Publish(_ context.Context, event any) error {
	p.events = append(p.events, event)
	return nil
}

func testLogger() *log.Logger {
	return log.New(os.Stdout, "test ", log.LstdFlags)
}

func evalReading(station, csq string, at time.Time, values map[telemetry.Channel]float64) telemetry.Reading {
	reading := telemetry.Reading{StationID: station, CSQ: csq, ObservedAt: at}
	for channel, value := range values {
		reading.Values.Set(channel, value)
	}
	return reading
}

func newEvalService(t *testing.T, thresholds *memoryThresholdStore, store *memoryAlarmStore, publisher *capturePublisher) *Service {
	t.Helper()
	service, err := NewService(thresholds, store, &memoryReadingStore{}, testLogger(), WithPublisher(publisher))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func TestEvaluateRaisesAlarmOnStrictBreach(t *testing.T) {
	at := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	thresholds := newMemoryThresholdStore()
	_ = thresholds.Upsert(context.Background(), alarms.Threshold{
		StationID: "st-01", CSQ: "21", Channel: telemetry.ChannelV1, Value: 100,
	})
	store := newMemoryAlarmStore()
	publisher := &capturePublisher{}
	service := newEvalService(t, thresholds, store, publisher)

	result, err := service.Evaluate(context.Background(), []telemetry.Reading{
		evalReading("st-01", "21", at, map[telemetry.Channel]float64{telemetry.ChannelV1: 120}),
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.AlarmCount != 1 || len(result.Details) != 1 {
		t.Fatalf("expected 1 alarm, got %+v", result)
	}
	detail := result.Details[0]
	if detail.Parameter != "v1" || detail.SensorValue != 120 || detail.ThresholdValue != 100 {
		t.Fatalf("unexpected detail %+v", detail)
	}
	if store.inserts != 1 {
		t.Fatalf("expected 1 persisted event, got %d", store.inserts)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(publisher.events))
	}
}

func TestEvaluateEqualValueIsNotABreach(t *testing.T) {
	at := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	thresholds := newMemoryThresholdStore()
	_ = thresholds.Upsert(context.Background(), alarms.Threshold{
		StationID: "st-01", CSQ: "21", Channel: telemetry.ChannelV1, Value: 100,
	})
	store := newMemoryAlarmStore()
	service := newEvalService(t, thresholds, store, &capturePublisher{})

	result, err := service.Evaluate(context.Background(), []telemetry.Reading{
		evalReading("st-01", "21", at, map[telemetry.Channel]float64{telemetry.ChannelV1: 100}),
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.AlarmCount != 0 {
		t.Fatalf("expected no alarms, got %d", result.AlarmCount)
	}
	if result.Message != "no thresholds breached" {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func TestEvaluateSkipsChannelsWithoutThreshold(t *testing.T) {
	at := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	service := newEvalService(t, newMemoryThresholdStore(), newMemoryAlarmStore(), &capturePublisher{})

	result, err := service.Evaluate(context.Background(), []telemetry.Reading{
		evalReading("st-01", "21", at, map[telemetry.Channel]float64{
			telemetry.ChannelV1:    9999,
			telemetry.ChannelSpeed: 9999,
		}),
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.AlarmCount != 0 {
		t.Fatalf("expected silent skip, got %d alarms", result.AlarmCount)
	}
}

func TestEvaluateDetailOrderIsDeterministic(t *testing.T) {
	at := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	thresholds := newMemoryThresholdStore()
	for _, channel := range []telemetry.Channel{telemetry.ChannelV1, telemetry.ChannelSpeed, telemetry.ChannelRH} {
		_ = thresholds.Upsert(context.Background(), alarms.Threshold{
			StationID: "st-01", CSQ: "21", Channel: channel, Value: 1,
		})
	}
	service := newEvalService(t, thresholds, newMemoryAlarmStore(), &capturePublisher{})

	result, err := service.Evaluate(context.Background(), []telemetry.Reading{
		evalReading("st-01", "21", at, map[telemetry.Channel]float64{
			telemetry.ChannelSpeed: 5,
			telemetry.ChannelRH:    5,
			telemetry.ChannelV1:    5,
		}),
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(result.Details) != 3 {
		t.Fatalf("expected 3 details, got %d", len(result.Details))
	}
	want := []string{"v1", "rh", "speed"}
	for i, parameter := range want {
		if result.Details[i].Parameter != parameter {
			t.Fatalf("expected detail %d to be %s, got %s", i, parameter, result.Details[i].Parameter)
		}
	}
}

func TestEvaluateDoesNotRepublishKnownBreach(t *testing.T) {
	at := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	thresholds := newMemoryThresholdStore()
	_ = thresholds.Upsert(context.Background(), alarms.Threshold{
		StationID: "st-01", CSQ: "21", Channel: telemetry.ChannelV1, Value: 100,
	})
	store := newMemoryAlarmStore()
	publisher := &capturePublisher{}
	service := newEvalService(t, thresholds, store, publisher)

	batch := []telemetry.Reading{
		evalReading("st-01", "21", at, map[telemetry.Channel]float64{telemetry.ChannelV1: 120}),
	}
	if _, err := service.Evaluate(context.Background(), batch); err != nil {
		t.Fatalf("first evaluate: %v", err)
	}
	if _, err := service.Evaluate(context.Background(), batch); err != nil {
		t.Fatalf("second evaluate: %v", err)
	}

	if store.inserts != 1 {
		t.Fatalf("expected single persisted event, got %d", store.inserts)
	}
	if len(publisher.events) != 1 {
		t.Fatalf("expected single published event, got %d", len(publisher.events))
	}
}

func TestBuildAlarmIDIsStable(t *testing.T) {
	at := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	a := alarms.BuildAlarmID("st-01", "21", telemetry.ChannelV1, at)
	b := alarms.BuildAlarmID("st-01", "21", telemetry.ChannelV1, at)
	if a != b {
		t.Fatalf("expected stable id, got %s vs %s", a, b)
	}
	c := alarms.BuildAlarmID("st-01", "21", telemetry.ChannelV2, at)
	if a == c {
		t.Fatal("expected distinct ids for distinct channels")
	}
}
