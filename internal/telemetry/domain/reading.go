package telemetry

import (
	"errors"
	"time"
)

// Channel identifies one of the named numeric measurement fields of a reading.
type Channel int

const (
	ChannelV1 Channel = iota
	ChannelV2
	ChannelV3
	ChannelV4
	ChannelV5
	ChannelV6
	ChannelV7
	ChannelRH
	ChannelTX
	ChannelEcho
	ChannelRainD
	ChannelSpeed

	ChannelCount = int(ChannelSpeed) + 1
)

var channelNames = [ChannelCount]string{
	"v1", "v2", "v3", "v4", "v5", "v6", "v7",
	"rh", "tx", "echo", "rainD", "speed",
}

// ErrUnknownChannel is returned when a channel name cannot be resolved.
var ErrUnknownChannel = errors.New("telemetry: unknown channel")

// String returns the wire name of the channel.
func (c Channel) String() string {
	if c < 0 || int(c) >= ChannelCount {
		return "unknown"
	}
	return channelNames[c]
}

// Channels returns all channels in canonical evaluation order.
func Channels() []Channel {
	out := make([]Channel, ChannelCount)
	for i := range out {
		out[i] = Channel(i)
	}
	return out
}

// ParseChannel resolves a channel by its wire name.
func ParseChannel(name string) (Channel, error) {
	for i, candidate := range channelNames {
		if candidate == name {
			return Channel(i), nil
		}
	}
	return 0, ErrUnknownChannel
}

// ChannelValues holds one optional value per channel, indexed by Channel.
// A nil slot means the sample did not carry that channel.
type ChannelValues [ChannelCount]*float64

// Get returns the value for a channel and whether it is present.
func (v *ChannelValues) Get(c Channel) (float64, bool) {
	if c < 0 || int(c) >= ChannelCount || v[c] == nil {
		return 0, false
	}
	return *v[c], true
}

// Set assigns a value to a channel slot.
func (v *ChannelValues) Set(c Channel, value float64) {
	if c < 0 || int(c) >= ChannelCount {
		return
	}
	val := value
	v[c] = &val
}

// Clear removes the value for a channel.
func (v *ChannelValues) Clear(c Channel) {
	if c < 0 || int(c) >= ChannelCount {
		return
	}
	v[c] = nil
}

// TimeCategory classifies a reading by tariff period.
type TimeCategory string

const (
	CategoryPeak    TimeCategory = "PEAK"
	CategoryOffPeak TimeCategory = "OFF_PEAK"
)

// Classify maps a timestamp to PEAK or OFF_PEAK by the weekly schedule:
// Thursday and Friday are PEAK all day, weekends are OFF_PEAK all day,
// and Monday through Wednesday are PEAK inside [07:30:00, 17:30:00].
func Classify(t time.Time) TimeCategory {
	switch t.Weekday() {
	case time.Thursday, time.Friday:
		return CategoryPeak
	case time.Saturday, time.Sunday:
		return CategoryOffPeak
	}

	secOfDay := t.Hour()*3600 + t.Minute()*60 + t.Second()
	const (
		peakStart = 7*3600 + 30*60
		peakEnd   = 17*3600 + 30*60
	)
	if secOfDay >= peakStart && secOfDay <= peakEnd {
		return CategoryPeak
	}
	return CategoryOffPeak
}

// ReadingKey is the identity of a persisted reading.
type ReadingKey struct {
	StationID  string
	CSQ        string
	ObservedAt time.Time
}

// Reading is one normalized telemetry sample. Readings are immutable once
// persisted; the identity key is (StationID, ObservedAt, CSQ).
type Reading struct {
	StationID  string
	CSQ        string
	ObservedAt time.Time
	Category   TimeCategory
	Values     ChannelValues
}

// Key returns the dedup identity of the reading.
func (r Reading) Key() ReadingKey {
	return ReadingKey{
		StationID:  r.StationID,
		CSQ:        r.CSQ,
		ObservedAt: r.ObservedAt.Truncate(time.Second).UTC(),
	}
}

// TimeCategory derives the tariff category from the observation time.
// The stored Category field is only a cache and is never trusted on read.
func (r Reading) TimeCategory() TimeCategory {
	return Classify(r.ObservedAt)
}
