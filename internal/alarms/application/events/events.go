package events

import "time"

// AlarmRaised is published on the alarm channel, keyed by station, whenever
// a reading channel breaches its threshold.
type AlarmRaised struct {
	AlarmID        string    `json:"alarm_id"`
	StationID      string    `json:"station_id"`
	CSQ            string    `json:"csq"`
	Parameter      string    `json:"parameter"`
	SensorValue    float64   `json:"sensor_value"`
	ThresholdValue float64   `json:"threshold_value"`
	ObservedAt     time.Time `json:"observed_at"`
	Message        string    `json:"message"`
	OccurredAt     time.Time `json:"occurred_at"`
}
