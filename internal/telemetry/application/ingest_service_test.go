package application

import (
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	telemetry "hydromet-cloud/internal/telemetry/domain"
)

type stubFetcher struct {
	payload telemetry.RawPayload
	err     error
	calls   int
}

func (f *stubFetcher) Fetch(_ context.Context, _ string) (telemetry.RawPayload, error) {
	f.calls++
	return f.payload, f.err
}

type memoryReadingStore struct {
	byKey     map[telemetry.ReadingKey]telemetry.Reading
	insertErr error
}

func newMemoryReadingStore() *memoryReadingStore {
	return &memoryReadingStore{byKey: map[telemetry.ReadingKey]telemetry.Reading{}}
}

func (s *memoryReadingStore) InsertWithPending(_ context.Context, reading telemetry.Reading) (bool, error) {
	if s.insertErr != nil {
		return false, s.insertErr
	}
	key := reading.Key()
	if _, ok := s.byKey[key]; ok {
		return false, nil
	}
	s.byKey[key] = reading
	return true, nil
}

func (s *memoryReadingStore) ListByTimeRange(_ context.Context, from, to time.Time) ([]telemetry.Reading, error) {
	var out []telemetry.Reading
	for _, reading := range s.byKey {
		if !reading.ObservedAt.Before(from) && reading.ObservedAt.Before(to) {
			out = append(out, reading)
		}
	}
	return out, nil
}

type memoryMarkerStore struct {
	urls map[string]time.Time
}

func newMemoryMarkerStore() *memoryMarkerStore {
	return &memoryMarkerStore{urls: map[string]time.Time{}}
}

func (s *memoryMarkerStore) Exists(_ context.Context, url string) (bool, error) {
	_, ok := s.urls[url]
	return ok, nil
}

func (s *memoryMarkerStore) Record(_ context.Context, url string, fetchedAt time.Time) error {
	if _, ok := s.urls[url]; !ok {
		s.urls[url] = fetchedAt
	}
	return nil
}

type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

func testLogger() *log.Logger {
	return log.New(os.Stdout, "test ", log.LstdFlags)
}

func rawItem(station, obsTime string, v1 float64) telemetry.RawItem {
	return telemetry.RawItem{
		StationID: station,
		ObsTime:   obsTime,
		CSQ:       "21",
		Sensor: &telemetry.RawSensorGroup{
			Volt: &telemetry.RawVoltGroup{V1: &v1},
		},
	}
}

func TestFetchAndIngestPersistsAndDeduplicates(t *testing.T) {
	fetcher := &stubFetcher{payload: telemetry.RawPayload{Raw: []telemetry.RawItem{
		rawItem("st-01", "2025-01-06 08:00:00", 12.1),
		rawItem("st-01", "2025-01-06 08:00:00", 12.1), // same identity
		rawItem("st-02", "2025-01-06 08:00:00", 11.8),
	}}}
	readings := newMemoryReadingStore()
	markers := newMemoryMarkerStore()

	service, err := NewIngestService(fetcher, readings, markers, testLogger(),
		WithClock(fixedClock{at: time.Date(2025, 1, 6, 8, 5, 0, 0, time.UTC)}))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	report, err := service.FetchAndIngest(context.Background(), "http://source/a")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if report.Persisted != 2 {
		t.Fatalf("expected 2 persisted, got %d", report.Persisted)
	}
	if report.Duplicates != 1 {
		t.Fatalf("expected 1 duplicate, got %d", report.Duplicates)
	}
	if len(readings.byKey) != 2 {
		t.Fatalf("expected 2 stored readings, got %d", len(readings.byKey))
	}
	if _, ok := markers.urls["http://source/a"]; !ok {
		t.Fatal("expected fetch marker recorded")
	}
}

func TestFetchAndIngestSkipsMalformedItems(t *testing.T) {
	fetcher := &stubFetcher{payload: telemetry.RawPayload{Raw: []telemetry.RawItem{
		rawItem("st-01", "not a timestamp", 12.1),
		rawItem("st-01", "2025-01-06 09:00:00", 12.3),
	}}}
	readings := newMemoryReadingStore()
	markers := newMemoryMarkerStore()

	service, err := NewIngestService(fetcher, readings, markers, testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	report, err := service.FetchAndIngest(context.Background(), "http://source/a")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if report.ParseFailures != 1 {
		t.Fatalf("expected 1 parse failure, got %d", report.ParseFailures)
	}
	if report.Persisted != 1 {
		t.Fatalf("expected 1 persisted, got %d", report.Persisted)
	}
}

func TestFetchAndIngestSkipsAlreadyFetchedURL(t *testing.T) {
	fetcher := &stubFetcher{payload: telemetry.RawPayload{Raw: []telemetry.RawItem{
		rawItem("st-01", "2025-01-06 08:00:00", 12.1),
	}}}
	readings := newMemoryReadingStore()
	markers := newMemoryMarkerStore()
	markers.urls["http://source/a"] = time.Now()

	service, err := NewIngestService(fetcher, readings, markers, testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	report, err := service.FetchAndIngest(context.Background(), "http://source/a")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if !report.AlreadyFetched {
		t.Fatal("expected AlreadyFetched")
	}
	if fetcher.calls != 0 {
		t.Fatalf("expected no fetch, got %d calls", fetcher.calls)
	}
}

func TestFetchAndIngestPropagatesStoreError(t *testing.T) {
	fetcher := &stubFetcher{payload: telemetry.RawPayload{Raw: []telemetry.RawItem{
		rawItem("st-01", "2025-01-06 08:00:00", 12.1),
	}}}
	readings := newMemoryReadingStore()
	readings.insertErr = errors.New("db down")
	markers := newMemoryMarkerStore()

	service, err := NewIngestService(fetcher, readings, markers, testLogger())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := service.FetchAndIngest(context.Background(), "http://source/a"); err == nil {
		t.Fatal("expected error")
	}
	if _, ok := markers.urls["http://source/a"]; ok {
		t.Fatal("expected no fetch marker after failure")
	}
}
