package apihttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	alarmapp "hydromet-cloud/internal/alarms/application"
	alarms "hydromet-cloud/internal/alarms/domain"
	"hydromet-cloud/internal/analytics/domain/rollup"
	"hydromet-cloud/internal/audit"
	telemetry "hydromet-cloud/internal/telemetry/domain"
)

const (
	timeLayout = time.RFC3339
	dateLayout = "2006-01-02"
)

// ReadingsHandler serves flattened reading queries.
type ReadingsHandler struct {
	readings telemetry.ReadingStore
}

// NewReadingsHandler constructs a ReadingsHandler.
func NewReadingsHandler(readings telemetry.ReadingStore) *ReadingsHandler {
	return &ReadingsHandler{readings: readings}
}

// ServeHTTP handles GET /api/v1/readings.
func (h *ReadingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.readings == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	from, err := parseTimeQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	category, err := resolveCategory(r.URL.Query().Get("category"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	stationID := r.URL.Query().Get("station_id")

	readings, err := h.readings.ListByTimeRange(r.Context(), from, to)
	if err != nil {
		http.Error(w, "query readings error", http.StatusInternalServerError)
		return
	}

	result := make([]readingRow, 0, len(readings))
	for _, reading := range readings {
		if stationID != "" && reading.StationID != stationID {
			continue
		}
		// Category is derived from the observation instant, not stored state.
		derived := telemetry.Classify(reading.ObservedAt)
		if category != "" && derived != category {
			continue
		}
		result = append(result, toReadingRow(reading, derived))
	}

	writeJSON(w, result)
}

// AggregatesHandler serves hourly and daily aggregate queries.
type AggregatesHandler struct {
	hours rollup.HourlyStore
	days  rollup.DailyStore
}

// NewAggregatesHandler constructs an AggregatesHandler.
func NewAggregatesHandler(hours rollup.HourlyStore, days rollup.DailyStore) *AggregatesHandler {
	return &AggregatesHandler{hours: hours, days: days}
}

// ServeHTTP handles GET /api/v1/aggregates.
func (h *AggregatesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.hours == nil || h.days == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	from, err := parseDateQuery(r, "from_date")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseDateQuery(r, "to_date")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if to.Before(from) {
		http.Error(w, "to_date must not be before from_date", http.StatusBadRequest)
		return
	}
	stationID := r.URL.Query().Get("station_id")

	switch r.URL.Query().Get("granularity") {
	case "hour":
		aggs, err := h.hours.ListByDateRange(r.Context(), from, to.AddDate(0, 0, 1))
		if err != nil {
			http.Error(w, "query aggregates error", http.StatusInternalServerError)
			return
		}
		result := make([]hourlyRow, 0, len(aggs))
		for _, agg := range aggs {
			if stationID != "" && agg.StationID != stationID {
				continue
			}
			result = append(result, toHourlyRow(agg))
		}
		writeJSON(w, result)
	case "day":
		aggs, err := h.days.ListDailyByDateRange(r.Context(), from, to.AddDate(0, 0, 1))
		if err != nil {
			http.Error(w, "query aggregates error", http.StatusInternalServerError)
			return
		}
		result := make([]dailyRow, 0, len(aggs))
		for _, agg := range aggs {
			if stationID != "" && agg.StationID != stationID {
				continue
			}
			result = append(result, toDailyRow(agg))
		}
		writeJSON(w, result)
	default:
		http.Error(w, "granularity must be hour or day", http.StatusBadRequest)
	}
}

// ThresholdsHandler serves threshold reads and updates.
type ThresholdsHandler struct {
	service  *alarmapp.Service
	store    alarms.ThresholdStore
	auditLog audit.Logger
}

// NewThresholdsHandler constructs a ThresholdsHandler.
func NewThresholdsHandler(service *alarmapp.Service, store alarms.ThresholdStore, auditLog audit.Logger) *ThresholdsHandler {
	return &ThresholdsHandler{service: service, store: store, auditLog: auditLog}
}

// ServeHTTP handles GET and PUT /api/v1/thresholds.
func (h *ThresholdsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodPut:
		h.put(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *ThresholdsHandler) get(w http.ResponseWriter, r *http.Request) {
	stationID := r.URL.Query().Get("station_id")
	if stationID == "" {
		http.Error(w, "station_id is required", http.StatusBadRequest)
		return
	}

	parameter := r.URL.Query().Get("parameter")
	if parameter == "" {
		thresholds, err := h.store.ListByStation(r.Context(), stationID)
		if err != nil {
			http.Error(w, "query thresholds error", http.StatusInternalServerError)
			return
		}
		result := make([]thresholdRow, 0, len(thresholds))
		for _, threshold := range thresholds {
			result = append(result, toThresholdRow(threshold))
		}
		writeJSON(w, result)
		return
	}

	channel, err := telemetry.ParseChannel(parameter)
	if err != nil {
		http.Error(w, "unknown parameter", http.StatusBadRequest)
		return
	}
	key := alarms.ThresholdKey{
		StationID: stationID,
		CSQ:       r.URL.Query().Get("csq"),
		Channel:   channel,
	}
	threshold, err := h.service.GetThreshold(r.Context(), key)
	if errors.Is(err, alarms.ErrThresholdNotFound) {
		http.Error(w, "threshold not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "query threshold error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, toThresholdRow(*threshold))
}

func (h *ThresholdsHandler) put(w http.ResponseWriter, r *http.Request) {
	var body thresholdRow
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	channel, err := telemetry.ParseChannel(body.Parameter)
	if err != nil {
		http.Error(w, "unknown parameter", http.StatusBadRequest)
		return
	}
	threshold := alarms.Threshold{
		StationID: body.StationID,
		CSQ:       body.CSQ,
		Channel:   channel,
		Value:     body.Value,
	}
	if err := h.service.PutThreshold(r.Context(), threshold); err != nil {
		http.Error(w, "store threshold error", http.StatusInternalServerError)
		return
	}
	if h.auditLog != nil {
		metadata, _ := json.Marshal(body)
		_ = h.auditLog.Log(r.Context(), audit.Entry{
			Actor:        r.Header.Get("X-Actor"),
			Action:       "threshold.put",
			ResourceType: "threshold",
			ResourceID:   body.StationID + "/" + body.CSQ + "/" + body.Parameter,
			StationID:    body.StationID,
			Metadata:     metadata,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

// AlarmsHandler serves persisted alarm event queries.
type AlarmsHandler struct {
	service *alarmapp.Service
}

// NewAlarmsHandler constructs an AlarmsHandler.
func NewAlarmsHandler(service *alarmapp.Service) *AlarmsHandler {
	return &AlarmsHandler{service: service}
}

// ServeHTTP handles GET /api/v1/alarms.
func (h *AlarmsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.service == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	stationID := r.URL.Query().Get("station_id")
	if stationID == "" {
		http.Error(w, "station_id is required", http.StatusBadRequest)
		return
	}
	from, err := parseTimeQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	events, err := h.service.ListAlarms(r.Context(), stationID, from, to)
	if err != nil {
		http.Error(w, "query alarms error", http.StatusInternalServerError)
		return
	}
	result := make([]alarmRow, 0, len(events))
	for _, event := range events {
		result = append(result, toAlarmRow(event))
	}
	writeJSON(w, result)
}

// PipelineRunner triggers pipeline stages on demand.
type PipelineRunner interface {
	RunIngest(ctx context.Context) error
	RunRollup(ctx context.Context) error
}

// RunHandler triggers an immediate ingest-and-rollup pass.
type RunHandler struct {
	runner PipelineRunner
}

// NewRunHandler constructs a RunHandler.
func NewRunHandler(runner PipelineRunner) *RunHandler {
	return &RunHandler{runner: runner}
}

// ServeHTTP handles POST /api/v1/pipeline/run.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.runner == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	if err := h.runner.RunIngest(r.Context()); err != nil {
		http.Error(w, "ingest run error", http.StatusInternalServerError)
		return
	}
	if err := h.runner.RunRollup(r.Context()); err != nil {
		http.Error(w, "rollup run error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// AlarmCheckHandler evaluates thresholds over a time window on demand.
type AlarmCheckHandler struct {
	service *alarmapp.Service
}

// NewAlarmCheckHandler constructs an AlarmCheckHandler.
func NewAlarmCheckHandler(service *alarmapp.Service) *AlarmCheckHandler {
	return &AlarmCheckHandler{service: service}
}

// ServeHTTP handles POST /api/v1/alarms/check.
func (h *AlarmCheckHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.service == nil {
		http.Error(w, "server not ready", http.StatusServiceUnavailable)
		return
	}

	from, err := parseTimeQuery(r, "from")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	to, err := parseTimeQuery(r, "to")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	result, err := h.service.EvaluateWindow(r.Context(), from, to)
	if err != nil {
		http.Error(w, "alarm check error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, toCheckResponse(result))
}

type readingRow struct {
	StationID  string             `json:"station_id"`
	CSQ        string             `json:"csq"`
	ObservedAt time.Time          `json:"observed_at"`
	Category   string             `json:"category"`
	Values     map[string]float64 `json:"values"`
}

type channelStatRow struct {
	Sum         float64 `json:"sum"`
	Avg         float64 `json:"avg"`
	SampleCount int     `json:"sample_count"`
}

type hourlyRow struct {
	StationID string                    `json:"station_id"`
	CSQ       string                    `json:"csq"`
	Date      string                    `json:"date"`
	Hour      int                       `json:"hour"`
	Channels  map[string]channelStatRow `json:"channels"`
}

type dailyRow struct {
	StationID string                    `json:"station_id"`
	CSQ       string                    `json:"csq"`
	Date      string                    `json:"date"`
	Channels  map[string]channelStatRow `json:"channels"`
}

type thresholdRow struct {
	StationID string    `json:"station_id"`
	CSQ       string    `json:"csq"`
	Parameter string    `json:"parameter"`
	Value     float64   `json:"value"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type alarmRow struct {
	ID             string    `json:"id"`
	StationID      string    `json:"station_id"`
	CSQ            string    `json:"csq"`
	Parameter      string    `json:"parameter"`
	SensorValue    float64   `json:"sensor_value"`
	ThresholdValue float64   `json:"threshold_value"`
	ObservedAt     time.Time `json:"observed_at"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}

type checkDetailRow struct {
	StationID      string    `json:"station_id"`
	CSQ            string    `json:"csq"`
	Parameter      string    `json:"parameter"`
	SensorValue    float64   `json:"sensor_value"`
	ThresholdValue float64   `json:"threshold_value"`
	ObservedAt     time.Time `json:"observed_at"`
}

type checkResponse struct {
	AlarmCount int              `json:"alarm_count"`
	Message    string           `json:"message"`
	Details    []checkDetailRow `json:"details"`
}

func toReadingRow(reading telemetry.Reading, category telemetry.TimeCategory) readingRow {
	values := make(map[string]float64, telemetry.ChannelCount)
	for _, channel := range telemetry.Channels() {
		if v, ok := reading.Values.Get(channel); ok {
			values[channel.String()] = v
		}
	}
	return readingRow{
		StationID:  reading.StationID,
		CSQ:        reading.CSQ,
		ObservedAt: reading.ObservedAt.UTC(),
		Category:   string(category),
		Values:     values,
	}
}

func statsToRows(stats [telemetry.ChannelCount]rollup.ChannelStat) map[string]channelStatRow {
	channels := make(map[string]channelStatRow, telemetry.ChannelCount)
	for _, channel := range telemetry.Channels() {
		stat := stats[channel]
		if stat.SampleCount == 0 {
			continue
		}
		channels[channel.String()] = channelStatRow{
			Sum:         stat.Sum,
			Avg:         stat.Avg,
			SampleCount: stat.SampleCount,
		}
	}
	return channels
}

func toHourlyRow(agg rollup.HourlyAggregate) hourlyRow {
	return hourlyRow{
		StationID: agg.StationID,
		CSQ:       agg.CSQ,
		Date:      agg.Date.UTC().Format(dateLayout),
		Hour:      agg.Hour,
		Channels:  statsToRows(agg.Stats),
	}
}

func toDailyRow(agg rollup.DailyAggregate) dailyRow {
	return dailyRow{
		StationID: agg.StationID,
		CSQ:       agg.CSQ,
		Date:      agg.Date.UTC().Format(dateLayout),
		Channels:  statsToRows(agg.Stats),
	}
}

func toThresholdRow(threshold alarms.Threshold) thresholdRow {
	return thresholdRow{
		StationID: threshold.StationID,
		CSQ:       threshold.CSQ,
		Parameter: threshold.Channel.String(),
		Value:     threshold.Value,
		UpdatedAt: threshold.UpdatedAt.UTC(),
	}
}

func toAlarmRow(event alarms.AlarmEvent) alarmRow {
	return alarmRow{
		ID:             event.ID,
		StationID:      event.StationID,
		CSQ:            event.CSQ,
		Parameter:      event.Channel.String(),
		SensorValue:    event.SensorValue,
		ThresholdValue: event.ThresholdValue,
		ObservedAt:     event.ObservedAt.UTC(),
		Message:        event.Message,
		CreatedAt:      event.CreatedAt.UTC(),
	}
}

func toCheckResponse(result alarmapp.CheckResult) checkResponse {
	details := make([]checkDetailRow, 0, len(result.Details))
	for _, detail := range result.Details {
		details = append(details, checkDetailRow{
			StationID:      detail.StationID,
			CSQ:            detail.CSQ,
			Parameter:      detail.Parameter,
			SensorValue:    detail.SensorValue,
			ThresholdValue: detail.ThresholdValue,
			ObservedAt:     detail.ObservedAt.UTC(),
		})
	}
	return checkResponse{
		AlarmCount: result.AlarmCount,
		Message:    result.Message,
		Details:    details,
	}
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(value)
}

func parseTimeQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be RFC3339")
	}
	return parsed.UTC(), nil
}

func parseDateQuery(r *http.Request, key string) (time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return time.Time{}, errors.New(key + " is required")
	}
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, errors.New(key + " must be yyyy-mm-dd")
	}
	return parsed.UTC(), nil
}

func resolveCategory(value string) (telemetry.TimeCategory, error) {
	switch value {
	case "":
		return "", nil
	case "peak":
		return telemetry.CategoryPeak, nil
	case "off_peak":
		return telemetry.CategoryOffPeak, nil
	default:
		return "", errors.New("category must be peak or off_peak")
	}
}
