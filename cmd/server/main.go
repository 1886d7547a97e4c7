// main wires the automation engine: stores, trigger registry,
// scheduler, dispatcher, upload consumer and the HTTP surface. Business
// logic lives in internal/automation; main owns the lifecycle.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nimbus/internal/automation/alerts"
	"nimbus/internal/automation/compiler"
	engineconfig "nimbus/internal/automation/config"
	"nimbus/internal/automation/dbquery"
	"nimbus/internal/automation/debounce"
	"nimbus/internal/automation/dispatch"
	"nimbus/internal/automation/gate"
	"nimbus/internal/automation/handler"
	"nimbus/internal/automation/ingest"
	"nimbus/internal/automation/metrics"
	"nimbus/internal/automation/models"
	"nimbus/internal/automation/ports"
	"nimbus/internal/automation/scheduler"
	"nimbus/internal/automation/service"
	logstore "nimbus/internal/automation/store/log"
	rulestore "nimbus/internal/automation/store/rule"
	"nimbus/internal/automation/trigger"
	"nimbus/internal/platform/config"
	"nimbus/internal/platform/httpserver"
	"nimbus/internal/platform/llm"
	"nimbus/internal/platform/logger"
	"nimbus/internal/platform/postgres"
	platformredis "nimbus/internal/platform/redis"
	"nimbus/internal/platform/sysinfo"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	engineCfg := engineconfig.Default()
	m := metrics.New()

	ctx := context.Background()

	// Stores: postgres when configured, in-process memory otherwise.
	var (
		rules   ports.RuleStore
		logs    ports.ExecutionLogStore
		querier ports.DatabaseQuerier
	)
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		rules = rulestore.NewPostgres(db)
		logs = logstore.NewPostgres(db)
		querier = dbquery.NewPostgres(db)
	} else {
		log.Warn("no DATABASE_URL configured, rules and logs are in-memory only")
		rules = rulestore.NewMemoryStore()
		logs = logstore.NewMemoryStore()
	}

	// Debounce state: redis persists it across restarts when configured.
	var debounceStore ports.DebounceStore = debounce.NewMemoryStore()
	redisClient, err := platformredis.New(config.RedisFromEnv())
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		debounceStore = debounce.NewRedisStore(redisClient)
	}

	registry := trigger.NewRegistry(trigger.Deps{
		Stats:   sysinfo.New(cfg.StoragePath),
		Querier: querier,
	})

	alertStore := alerts.NewMemoryStore(0)
	dispatcher, err := dispatch.New(engineCfg, logs, log,
		dispatch.WithAlertSink(alertStore),
		dispatch.WithMetrics(m),
	)
	if err != nil {
		log.Error("failed to build dispatcher", "error", err)
		os.Exit(1)
	}

	planSource := engineconfig.NewStaticPlanSource(models.Plan{
		Tier:      models.PlanTier(cfg.PlanTier),
		BillingOK: cfg.BillingOK,
	})
	g := gate.New(engineCfg)

	sched := scheduler.New(engineCfg, rules, registry, debounceStore,
		dispatcher, logs, g, planSource, log,
		scheduler.WithMetrics(m),
	)
	svc := service.New(engineCfg, rules, logs, debounceStore, registry, g, planSource, log)

	var draftCompiler handler.DraftCompiler
	if cfg.LLMBaseURL != "" {
		draftCompiler = compiler.New(llm.New(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel), log)
	}

	router := chi.NewRouter()
	handler.New(svc, draftCompiler, alertStore, []byte(cfg.JWTSigningKey), log).Register(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	dispatcher.Start(ctx)
	sched.Start(ctx)

	var consumer *ingest.Consumer
	if len(cfg.KafkaBrokers) > 0 {
		consumer, err = ingest.NewConsumer(cfg.KafkaBrokers, cfg.UploadTopic, cfg.UploadGroup, sched, log)
		if err != nil {
			log.Error("failed to start upload consumer", "error", err)
			os.Exit(1)
		}
		consumer.Start(ctx)
		log.Info("upload consumer started", "topic", cfg.UploadTopic, "group", cfg.UploadGroup)
	}

	srv := httpserver.New(cfg.Addr, router)
	go func() {
		log.Info("automation server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	// Stop producers before the dispatcher so queued firings drain.
	if consumer != nil {
		consumer.Stop()
	}
	sched.Stop()
	dispatcher.Stop()
}
