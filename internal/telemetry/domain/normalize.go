package telemetry

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ObsTimeLayout is the fixed observation time format used by station payloads.
const ObsTimeLayout = "2006-01-02 15:04:05"

// ErrItemParse marks a malformed raw item. The item is skipped, the batch
// continues.
var ErrItemParse = errors.New("telemetry: malformed raw item")

// RawPayload is the document returned by a station source endpoint.
type RawPayload struct {
	Raw []RawItem `json:"raw"`
}

// RawItem is one nested telemetry record as delivered by the source.
type RawItem struct {
	StationID string          `json:"stationId"`
	ObsTime   string          `json:"obsTime"`
	CSQ       string          `json:"CSQ"`
	RainD     *float64        `json:"rainD"`
	Sensor    *RawSensorGroup `json:"sensor"`
}

// RawSensorGroup nests per-instrument sub-groups. Any sub-group may be absent.
type RawSensorGroup struct {
	Volt            *RawVoltGroup       `json:"Volt"`
	StickTxRh       *RawStickTxRhGroup  `json:"StickTxRh"`
	UltrasonicLevel *RawUltrasonicGroup `json:"Ultrasonic_Level"`
	WaterSpeed      *RawWaterSpeedGroup `json:"Water_speed_aquark"`
}

// RawVoltGroup carries the seven voltage channels.
type RawVoltGroup struct {
	V1 *float64 `json:"v1"`
	V2 *float64 `json:"v2"`
	V3 *float64 `json:"v3"`
	V4 *float64 `json:"v4"`
	V5 *float64 `json:"v5"`
	V6 *float64 `json:"v6"`
	V7 *float64 `json:"v7"`
}

// RawStickTxRhGroup carries humidity and temperature.
type RawStickTxRhGroup struct {
	RH *float64 `json:"rh"`
	TX *float64 `json:"tx"`
}

// RawUltrasonicGroup carries the ultrasonic level echo.
type RawUltrasonicGroup struct {
	Echo *float64 `json:"echo"`
}

// RawWaterSpeedGroup carries the water speed sample.
type RawWaterSpeedGroup struct {
	Speed *float64 `json:"speed"`
}

// Normalize flattens a nested raw item into a Reading. A missing sub-group or
// leaf yields an absent channel, never an error; only an unparseable
// observation time fails the item. Speed is stored as magnitude.
func Normalize(item RawItem) (Reading, error) {
	if item.StationID == "" {
		return Reading{}, fmt.Errorf("%w: empty station id", ErrItemParse)
	}

	observedAt, err := time.Parse(ObsTimeLayout, item.ObsTime)
	if err != nil {
		return Reading{}, fmt.Errorf("%w: obsTime %q", ErrItemParse, item.ObsTime)
	}

	reading := Reading{
		StationID:  item.StationID,
		CSQ:        item.CSQ,
		ObservedAt: observedAt.UTC(),
	}
	reading.Category = Classify(reading.ObservedAt)

	if sensor := item.Sensor; sensor != nil {
		if volt := sensor.Volt; volt != nil {
			setIfPresent(&reading.Values, ChannelV1, volt.V1)
			setIfPresent(&reading.Values, ChannelV2, volt.V2)
			setIfPresent(&reading.Values, ChannelV3, volt.V3)
			setIfPresent(&reading.Values, ChannelV4, volt.V4)
			setIfPresent(&reading.Values, ChannelV5, volt.V5)
			setIfPresent(&reading.Values, ChannelV6, volt.V6)
			setIfPresent(&reading.Values, ChannelV7, volt.V7)
		}
		if stick := sensor.StickTxRh; stick != nil {
			setIfPresent(&reading.Values, ChannelRH, stick.RH)
			setIfPresent(&reading.Values, ChannelTX, stick.TX)
		}
		if level := sensor.UltrasonicLevel; level != nil {
			setIfPresent(&reading.Values, ChannelEcho, level.Echo)
		}
		if speed := sensor.WaterSpeed; speed != nil && speed.Speed != nil {
			reading.Values.Set(ChannelSpeed, math.Abs(*speed.Speed))
		}
	}
	setIfPresent(&reading.Values, ChannelRainD, item.RainD)

	return reading, nil
}

func setIfPresent(values *ChannelValues, channel Channel, value *float64) {
	if value == nil {
		return
	}
	values.Set(channel, *value)
}
