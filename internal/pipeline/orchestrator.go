package pipeline

import (
	"context"
	"errors"
	"log"
	"time"

	analyticsapp "hydromet-cloud/internal/analytics/application"
	"hydromet-cloud/internal/analytics/domain/rollup"
	alarmapp "hydromet-cloud/internal/alarms/application"
	ingestapp "hydromet-cloud/internal/telemetry/application"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

// Orchestrator drives the periodic pipeline: fetch-and-ingest per source,
// rollup over the pending buffer, and a threshold sweep over fresh readings.
type Orchestrator struct {
	cfg     Config
	ingest  *ingestapp.IngestService
	rollups *analyticsapp.RollupService
	alarms  *alarmapp.Service
	clock   Clock
	logger  *log.Logger
}

// Option customizes the orchestrator.
type Option func(*Orchestrator)

// WithClock assigns a clock.
func WithClock(clock Clock) Option {
	return func(o *Orchestrator) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(cfg Config, ingest *ingestapp.IngestService, rollups *analyticsapp.RollupService, alarms *alarmapp.Service, logger *log.Logger, opts ...Option) (*Orchestrator, error) {
	if ingest == nil {
		return nil, errors.New("orchestrator: nil ingest service")
	}
	if rollups == nil {
		return nil, errors.New("orchestrator: nil rollup service")
	}
	if alarms == nil {
		return nil, errors.New("orchestrator: nil alarm service")
	}
	if logger == nil {
		logger = log.Default()
	}
	o := &Orchestrator{
		cfg:     cfg,
		ingest:  ingest,
		rollups: rollups,
		alarms:  alarms,
		clock:   systemClock{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Start runs the cadence loops until the context is cancelled.
func (o *Orchestrator) Start(ctx context.Context) {
	if o == nil {
		return
	}
	fetchTicker := time.NewTicker(o.cfg.FetchEvery)
	rollupTicker := time.NewTicker(o.cfg.RollupEvery)
	sweepTicker := time.NewTicker(o.cfg.AlarmSweepEvery)
	defer fetchTicker.Stop()
	defer rollupTicker.Stop()
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fetchTicker.C:
			if err := o.RunIngest(ctx); err != nil {
				o.logger.Printf("pipeline ingest error: %v", err)
			}
		case <-rollupTicker.C:
			if err := o.RunRollup(ctx); err != nil {
				o.logger.Printf("pipeline rollup error: %v", err)
			}
		case <-sweepTicker.C:
			if err := o.RunAlarmSweep(ctx); err != nil {
				o.logger.Printf("pipeline alarm sweep error: %v", err)
			}
		}
	}
}

// RunIngest fetches every configured source once. A failing source is logged
// and does not block the rest; the first error is reported after all sources
// have been attempted.
func (o *Orchestrator) RunIngest(ctx context.Context) error {
	now := o.clock.Now()
	var firstErr error
	for _, source := range o.cfg.Sources {
		url := ExpandSource(source, now)
		report, err := o.ingest.FetchAndIngest(ctx, url)
		if err != nil {
			o.logger.Printf("ingest source error: url=%s err=%v", url, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if report.AlreadyFetched {
			continue
		}
		o.logger.Printf("ingest source done: url=%s persisted=%d duplicates=%d parse_failures=%d",
			url, report.Persisted, report.Duplicates, report.ParseFailures)
	}
	return firstErr
}

// RunRollup executes one rollup pass. A held run-lock means another pass is
// in flight and is not an error.
func (o *Orchestrator) RunRollup(ctx context.Context) error {
	err := o.rollups.Run(ctx)
	if errors.Is(err, rollup.ErrLockHeld) {
		o.logger.Printf("rollup skipped: previous pass still running")
		return nil
	}
	return err
}

// RunAlarmSweep evaluates thresholds over the recent lookback window.
func (o *Orchestrator) RunAlarmSweep(ctx context.Context) error {
	now := o.clock.Now()
	result, err := o.alarms.EvaluateWindow(ctx, now.Add(-o.cfg.AlarmLookback), now)
	if err != nil {
		return err
	}
	if result.AlarmCount > 0 {
		o.logger.Printf("alarm sweep: %s", result.Message)
	}
	return nil
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
