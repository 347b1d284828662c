package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	alarmapp "hydromet-cloud/internal/alarms/application"
	alarmevents "hydromet-cloud/internal/alarms/application/events"
	alarmrepo "hydromet-cloud/internal/alarms/infrastructure/postgres"
	alarmnotify "hydromet-cloud/internal/alarms/notify"
	analyticsapp "hydromet-cloud/internal/analytics/application"
	analyticsevents "hydromet-cloud/internal/analytics/application/events"
	analyticsrepo "hydromet-cloud/internal/analytics/infrastructure/postgres"
	analyticsredis "hydromet-cloud/internal/analytics/infrastructure/redis"
	apihttp "hydromet-cloud/internal/api/http"
	"hydromet-cloud/internal/audit"
	"hydromet-cloud/internal/eventing"
	"hydromet-cloud/internal/eventing/eventbus"
	eventingrepo "hydromet-cloud/internal/eventing/infrastructure/postgres"
	"hydromet-cloud/internal/observability/metrics"
	"hydromet-cloud/internal/pipeline"
	stationsrepo "hydromet-cloud/internal/stations/infrastructure/postgres"
	ingestapp "hydromet-cloud/internal/telemetry/application"
	telemetry "hydromet-cloud/internal/telemetry/domain"
	telemetrypostgres "hydromet-cloud/internal/telemetry/infrastructure/postgres"
	telemetryredis "hydromet-cloud/internal/telemetry/infrastructure/redis"
	"hydromet-cloud/internal/telemetry/infrastructure/source"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	_ = godotenv.Load()
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	auditRepo := audit.NewRepository(db)

	baseBus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(analyticsevents.RollupCompleted{})
	registry.Register(alarmevents.AlarmRaised{})

	outboxStore := eventingrepo.NewOutboxStore(db)
	processedStore := eventingrepo.NewProcessedStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)
	dispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, dlqStore)
	publisher := eventing.NewPublisher(outboxStore, dispatcher, baseBus)

	readingRepo := telemetrypostgres.NewReadingRepository(db)
	pendingRepo := telemetrypostgres.NewPendingRepository(db)
	markerRepo := telemetrypostgres.NewFetchMarkerRepository(db)
	aggregateRepo := analyticsrepo.NewAggregateRepository(db)
	thresholdRepo := alarmrepo.NewThresholdRepository(db)
	alarmStore := alarmrepo.NewAlarmRepository(db)
	stationRepo := stationsrepo.NewStationRepository(db)

	var runLock analyticsapp.RunLock = analyticsapp.NewLocalRunLock()
	var ingestMarkers telemetry.FetchMarkerStore = markerRepo
	if cfg.RedisAddr != "" {
		redisClient, err := analyticsredis.NewClient(context.Background(), cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatalf("redis connect error: %v", err)
		}
		defer redisClient.Close()

		redisLock, err := analyticsredis.NewRunLock(redisClient)
		if err != nil {
			logger.Fatalf("redis run lock error: %v", err)
		}
		runLock = redisLock

		markerCache, err := telemetryredis.NewMarkerCache(redisClient, markerRepo)
		if err != nil {
			logger.Fatalf("marker cache error: %v", err)
		}
		ingestMarkers = markerCache
	}

	fetcher := source.NewClient(source.WithTimeout(cfg.FetchTimeout))
	ingestService, err := ingestapp.NewIngestService(fetcher, readingRepo, ingestMarkers, logger)
	if err != nil {
		logger.Fatalf("ingest service error: %v", err)
	}

	rollupService, err := analyticsapp.NewRollupService(pendingRepo, readingRepo, aggregateRepo, aggregateRepo, runLock, logger, analyticsapp.WithBus(publisher))
	if err != nil {
		logger.Fatalf("rollup service error: %v", err)
	}

	alarmService, err := alarmapp.NewService(thresholdRepo, alarmStore, readingRepo, logger, alarmapp.WithPublisher(publisher))
	if err != nil {
		logger.Fatalf("alarm service error: %v", err)
	}

	eventing.Subscribe(baseBus, eventbus.EventTypeOf[analyticsevents.RollupCompleted](), "analytics.log", func(ctx context.Context, event any) error {
		evt, ok := event.(analyticsevents.RollupCompleted)
		if !ok {
			return eventbus.ErrInvalidEventType
		}
		logger.Printf("rollup completed: phase=%s date=%s buckets=%d", evt.Phase, evt.Date.Format("2006-01-02"), evt.Buckets)
		return nil
	}, processedStore)

	if cfg.AlarmWebhookURL != "" {
		notifier, err := alarmnotify.NewWebhookNotifier(cfg.AlarmWebhookURL)
		if err != nil {
			logger.Fatalf("alarm webhook error: %v", err)
		}
		eventing.Subscribe(baseBus, eventbus.EventTypeOf[alarmevents.AlarmRaised](), "alarms.webhook", func(ctx context.Context, event any) error {
			evt, ok := event.(alarmevents.AlarmRaised)
			if !ok {
				return eventbus.ErrInvalidEventType
			}
			return notifier.Notify(ctx, evt)
		}, processedStore)
	}

	pipelineCfg, err := pipeline.LoadConfig()
	if err != nil {
		logger.Fatalf("pipeline config error: %v", err)
	}
	orchestrator, err := pipeline.NewOrchestrator(pipelineCfg, ingestService, rollupService, alarmService, logger)
	if err != nil {
		logger.Fatalf("orchestrator error: %v", err)
	}
	go orchestrator.Start(context.Background())

	mux := http.NewServeMux()
	mux.Handle("/api/v1/stations", apihttp.NewStationsHandler(stationRepo, auditRepo))
	mux.Handle("/api/v1/readings", apihttp.NewReadingsHandler(readingRepo))
	mux.Handle("/api/v1/aggregates", apihttp.NewAggregatesHandler(aggregateRepo, aggregateRepo))
	mux.Handle("/api/v1/thresholds", apihttp.NewThresholdsHandler(alarmService, thresholdRepo, auditRepo))
	mux.Handle("/api/v1/alarms", apihttp.NewAlarmsHandler(alarmService))
	mux.Handle("/api/v1/alarms/check", apihttp.NewAlarmCheckHandler(alarmService))
	mux.Handle("/api/v1/pipeline/run", apihttp.NewRunHandler(orchestrator))
	mux.Handle("/api/v1/exports/daily", apihttp.NewExportDailyHandler(aggregateRepo))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(mux, logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL     string
	HTTPAddr        string
	FetchTimeout    time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	AlarmWebhookURL string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:     getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:        getenvDefault("HTTP_ADDR", ":8080"),
		FetchTimeout:    getenvDuration("HYDROMET_FETCH_TIMEOUT", 10*time.Second),
		RedisAddr:       getenvDefault("REDIS_ADDR", ""),
		RedisPassword:   getenvDefault("REDIS_PASSWORD", ""),
		RedisDB:         getenvIntDefault("REDIS_DB", 0),
		AlarmWebhookURL: getenvDefault("ALARM_WEBHOOK_URL", ""),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
