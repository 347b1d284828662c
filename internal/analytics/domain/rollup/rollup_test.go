package rollup

import (
	"testing"
	"time"

	telemetry "hydromet-cloud/internal/telemetry/domain"
)

func reading(station, csq string, at time.Time, channel telemetry.Channel, value float64) telemetry.Reading {
	r := telemetry.Reading{StationID: station, CSQ: csq, ObservedAt: at}
	r.Values.Set(channel, value)
	return r
}

func TestRoundAvgHalfUp(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{1.5, 1.5},
		{0.125, 0.13},
		{2.676, 2.68},
		{3.333333, 3.33},
		{10.0 / 3.0, 3.33},
		{2.0, 2.0},
	}
	for _, tc := range cases {
		if got := RoundAvg(tc.in); got != tc.want {
			t.Fatalf("RoundAvg(%v): expected %v, got %v", tc.in, tc.want, got)
		}
	}
}

func TestBuildHourlyAverages(t *testing.T) {
	hour := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	readings := []telemetry.Reading{
		reading("st-01", "21", hour.Add(5*time.Minute), telemetry.ChannelV1, 10),
		reading("st-01", "21", hour.Add(15*time.Minute), telemetry.ChannelV1, 11),
		reading("st-01", "21", hour.Add(25*time.Minute), telemetry.ChannelV1, 13),
		// different csq lands in its own bucket
		reading("st-01", "17", hour.Add(5*time.Minute), telemetry.ChannelV1, 100),
	}

	aggs := BuildHourly(readings)
	if len(aggs) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(aggs))
	}

	// sorted by csq: "17" first
	first := aggs[0]
	if first.CSQ != "17" || first.Stats[telemetry.ChannelV1].Sum != 100 {
		t.Fatalf("unexpected first bucket %+v", first)
	}

	second := aggs[1]
	stat := second.Stats[telemetry.ChannelV1]
	if stat.SampleCount != 3 {
		t.Fatalf("expected 3 samples, got %d", stat.SampleCount)
	}
	if stat.Sum != 34 {
		t.Fatalf("expected sum 34, got %v", stat.Sum)
	}
	if stat.Avg != 11.33 {
		t.Fatalf("expected avg 11.33, got %v", stat.Avg)
	}

	empty := second.Stats[telemetry.ChannelRH]
	if empty.SampleCount != 0 || empty.Sum != 0 || empty.Avg != 0 {
		t.Fatalf("expected zero stat for absent channel, got %+v", empty)
	}
}

func TestBuildHourlyDeterministic(t *testing.T) {
	hour := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	readings := []telemetry.Reading{
		reading("st-02", "21", hour, telemetry.ChannelV1, 1),
		reading("st-01", "21", hour, telemetry.ChannelV1, 1),
	}
	a := BuildHourly(readings)
	b := BuildHourly([]telemetry.Reading{readings[1], readings[0]})
	if a[0].StationID != b[0].StationID || a[0].StationID != "st-01" {
		t.Fatalf("expected stable order, got %s vs %s", a[0].StationID, b[0].StationID)
	}
}

func TestBuildDailyWeightedAverage(t *testing.T) {
	date := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	hours := []HourlyAggregate{
		{StationID: "st-01", CSQ: "21", Date: date, Hour: 8},
		{StationID: "st-01", CSQ: "21", Date: date, Hour: 9},
	}
	hours[0].Stats[telemetry.ChannelV1] = ChannelStat{Sum: 20, Avg: 10, SampleCount: 2}
	hours[1].Stats[telemetry.ChannelV1] = ChannelStat{Sum: 16, Avg: 16, SampleCount: 1}

	days := BuildDaily(date, hours)
	if len(days) != 1 {
		t.Fatalf("expected 1 daily row, got %d", len(days))
	}
	stat := days[0].Stats[telemetry.ChannelV1]
	if stat.Sum != 36 {
		t.Fatalf("expected sum 36, got %v", stat.Sum)
	}
	if stat.SampleCount != 3 {
		t.Fatalf("expected 3 samples, got %d", stat.SampleCount)
	}
	// (10*2 + 16*1) / 3 = 12
	if stat.Avg != 12 {
		t.Fatalf("expected weighted avg 12, got %v", stat.Avg)
	}
}

func TestBuildDailyIgnoresOtherDates(t *testing.T) {
	date := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	other := date.AddDate(0, 0, 1)
	hours := []HourlyAggregate{
		{StationID: "st-01", CSQ: "21", Date: other, Hour: 8},
	}
	hours[0].Stats[telemetry.ChannelV1] = ChannelStat{Sum: 10, Avg: 10, SampleCount: 1}

	if days := BuildDaily(date, hours); len(days) != 0 {
		t.Fatalf("expected no daily rows, got %d", len(days))
	}
}

func TestDirtyBuckets(t *testing.T) {
	hour := time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)
	pending := []telemetry.Reading{
		reading("st-01", "21", hour.Add(10*time.Minute), telemetry.ChannelV1, 1),
		reading("st-01", "21", hour.Add(20*time.Minute), telemetry.ChannelV1, 2),
		reading("st-01", "21", hour.Add(70*time.Minute), telemetry.ChannelV1, 3),
	}

	keys := DirtyBuckets(pending)
	if len(keys) != 2 {
		t.Fatalf("expected 2 dirty buckets, got %d", len(keys))
	}
	if keys[0].Hour != 8 || keys[1].Hour != 9 {
		t.Fatalf("unexpected bucket hours %d, %d", keys[0].Hour, keys[1].Hour)
	}
}

func TestBucketOf(t *testing.T) {
	at := time.Date(2025, 1, 6, 8, 45, 12, 0, time.UTC)
	key := BucketOf("st-01", "21", at)
	if key.Hour != 8 {
		t.Fatalf("expected hour 8, got %d", key.Hour)
	}
	if !key.Date.Equal(time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date %s", key.Date)
	}
	if !key.Valid() {
		t.Fatal("expected valid key")
	}
}
