package telemetry

import (
	"testing"
	"time"
)

func TestClassifySchedule(t *testing.T) {
	cases := []struct {
		name string
		at   time.Time
		want TimeCategory
	}{
		{"thursday night", time.Date(2025, 1, 2, 2, 0, 0, 0, time.UTC), CategoryPeak},
		{"friday afternoon", time.Date(2025, 1, 3, 23, 59, 59, 0, time.UTC), CategoryPeak},
		{"saturday noon", time.Date(2025, 1, 4, 12, 0, 0, 0, time.UTC), CategoryOffPeak},
		{"sunday morning", time.Date(2025, 1, 5, 8, 0, 0, 0, time.UTC), CategoryOffPeak},
		{"monday before window", time.Date(2025, 1, 6, 7, 29, 59, 0, time.UTC), CategoryOffPeak},
		{"monday window start", time.Date(2025, 1, 6, 7, 30, 0, 0, time.UTC), CategoryPeak},
		{"tuesday midday", time.Date(2025, 1, 7, 12, 0, 0, 0, time.UTC), CategoryPeak},
		{"wednesday window end", time.Date(2025, 1, 8, 17, 30, 0, 0, time.UTC), CategoryPeak},
		{"wednesday after window", time.Date(2025, 1, 8, 17, 30, 1, 0, time.UTC), CategoryOffPeak},
		{"monday midnight", time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), CategoryOffPeak},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.at); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestParseChannel(t *testing.T) {
	channel, err := ParseChannel("rainD")
	if err != nil {
		t.Fatalf("parse rainD: %v", err)
	}
	if channel != ChannelRainD {
		t.Fatalf("expected %d, got %d", ChannelRainD, channel)
	}

	if _, err := ParseChannel("bogus"); err == nil {
		t.Fatal("expected error for unknown channel")
	}
}

func TestChannelValuesSetGetClear(t *testing.T) {
	var values ChannelValues
	if _, ok := values.Get(ChannelV3); ok {
		t.Fatal("expected absent channel")
	}

	values.Set(ChannelV3, 12.5)
	got, ok := values.Get(ChannelV3)
	if !ok || got != 12.5 {
		t.Fatalf("expected 12.5, got %v present=%v", got, ok)
	}

	values.Clear(ChannelV3)
	if _, ok := values.Get(ChannelV3); ok {
		t.Fatal("expected cleared channel to be absent")
	}
}

func TestReadingKeyTruncatesToSecond(t *testing.T) {
	reading := Reading{
		StationID:  "st-01",
		CSQ:        "21",
		ObservedAt: time.Date(2025, 1, 6, 8, 0, 0, 987654321, time.UTC),
	}
	key := reading.Key()
	if key.ObservedAt.Nanosecond() != 0 {
		t.Fatalf("expected truncated nanoseconds, got %d", key.ObservedAt.Nanosecond())
	}
	if key.StationID != "st-01" || key.CSQ != "21" {
		t.Fatalf("unexpected key %+v", key)
	}
}
