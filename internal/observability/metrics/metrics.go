package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "hydromet_"

	resultSuccess = "success"
)

var (
	registerOnce sync.Once

	ingestRequests *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec
	ingestSkips    *prometheus.CounterVec

	rollupTotal   *prometheus.CounterVec
	rollupLatency *prometheus.HistogramVec

	alarmSweepTotal   *prometheus.CounterVec
	alarmSweepLatency *prometheus.HistogramVec
	alarmEventsTotal  *prometheus.CounterVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		ingestRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_requests_total",
				Help: "Total source ingest passes by result",
			},
			[]string{"result"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Source ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		ingestSkips = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_skipped_items_total",
				Help: "Total skipped raw items by reason",
			},
			[]string{"reason"},
		)

		rollupTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "rollup_total",
				Help: "Total rollup phases by phase and result",
			},
			[]string{"phase", "result"},
		)
		rollupLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "rollup_latency_seconds",
				Help:    "Rollup phase latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"phase", "result"},
		)

		alarmSweepTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_sweep_total",
				Help: "Total alarm evaluation sweeps by result",
			},
			[]string{"result"},
		)
		alarmSweepLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "alarm_sweep_latency_seconds",
				Help:    "Alarm evaluation sweep latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		alarmEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_events_total",
				Help: "Total alarm events by channel",
			},
			[]string{"channel"},
		)

		prometheus.MustRegister(
			ingestRequests,
			ingestLatency,
			ingestSkips,
			rollupTotal,
			rollupLatency,
			alarmSweepTotal,
			alarmSweepLatency,
			alarmEventsTotal,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveIngest records one ingest pass duration and result.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if ingestRequests != nil {
		ingestRequests.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncIngestSkip increments the skipped-item counter.
func IncIngestSkip(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	if ingestSkips != nil {
		ingestSkips.WithLabelValues(reason).Inc()
	}
}

// ObserveRollup records one rollup phase duration and result.
func ObserveRollup(phase, result string, duration time.Duration) {
	if phase == "" {
		phase = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if rollupTotal != nil {
		rollupTotal.WithLabelValues(phase, result).Inc()
	}
	if rollupLatency != nil {
		rollupLatency.WithLabelValues(phase, result).Observe(duration.Seconds())
	}
}

// ObserveAlarmSweep records one alarm evaluation sweep.
func ObserveAlarmSweep(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if alarmSweepTotal != nil {
		alarmSweepTotal.WithLabelValues(result).Inc()
	}
	if alarmSweepLatency != nil {
		alarmSweepLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncAlarmEvent increments the alarm event counter for a channel.
func IncAlarmEvent(channel string) {
	if channel == "" {
		channel = "unknown"
	}
	if alarmEventsTotal != nil {
		alarmEventsTotal.WithLabelValues(channel).Inc()
	}
}

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "pending_readings",
			Help: "Readings in the pending buffer awaiting rollup",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM pending_readings")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "event_outbox_pending",
			Help: "Pending outbox records",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM event_outbox WHERE status = 'pending'")
		},
	))
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
