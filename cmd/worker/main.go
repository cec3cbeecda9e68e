package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/commerce-intel/internal/app"
	"github.com/odyssey-erp/commerce-intel/internal/events"
	"github.com/odyssey-erp/commerce-intel/internal/intelligence"
	intelligencedb "github.com/odyssey-erp/commerce-intel/internal/intelligence/db"
	"github.com/odyssey-erp/commerce-intel/internal/inventory"
	"github.com/odyssey-erp/commerce-intel/internal/observability"
	"github.com/odyssey-erp/commerce-intel/internal/platform/cache"
	"github.com/odyssey-erp/commerce-intel/internal/platform/db"
	"github.com/odyssey-erp/commerce-intel/jobs"
)

func main() {
	if app.SkipStartup("worker") {
		return
	}
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "worker")
	slog.SetDefault(logger)

	pool, err := db.New(ctx, cfg.PGDSN, db.WithMaxConns(cfg.PGMaxConns), db.WithConnLifetime(time.Hour))
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// The sweep lock and cache bump need Redis; asynq would fail without it anyway.
	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	repo := intelligencedb.NewRepository(pool, inventory.NewLedger(cfg.AllowNegativeStock))
	engine, err := intelligence.NewEngine(intelligence.EngineConfig{
		Store:       repo,
		Cache:       intelligence.NewCache(redisClient, cfg.IntelCacheTTL),
		Defaults:    cfg.Intelligence,
		Logger:      logger,
		Concurrency: cfg.SweepConcurrency,
	})
	if err != nil {
		logger.Error("init intelligence engine", slog.Any("error", err))
		os.Exit(1)
	}

	publisher := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.AlertsTopic, logger)
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("alert publisher close", slog.Any("error", err))
		}
	}()
	if !publisher.Enabled() {
		logger.Info("KAFKA_BROKERS not set, alert stream disabled")
	}

	metrics := observability.NewMetrics()
	sweepJob := jobs.NewSweepJob(engine, repo, redisClient, publisher, logger, metrics.Jobs())
	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:              cfg.WorkerMetricsAddr,
			Handler:           metrics.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("worker metrics listening", slog.String("addr", cfg.WorkerMetricsAddr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	sweepTask, err := jobs.NewSweepTask(jobs.SweepPayload{RequestedBy: "cron"})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskIntelligenceSweep, Handler: sweepJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SweepCron, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(3), asynq.Queue(jobs.QueueDefault)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
