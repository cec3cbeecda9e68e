package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/commerce-intel/internal/app"
	"github.com/odyssey-erp/commerce-intel/internal/auth"
	"github.com/odyssey-erp/commerce-intel/internal/intelligence"
	intelligencedb "github.com/odyssey-erp/commerce-intel/internal/intelligence/db"
	intelhttp "github.com/odyssey-erp/commerce-intel/internal/intelligence/http"
	"github.com/odyssey-erp/commerce-intel/internal/inventory"
	"github.com/odyssey-erp/commerce-intel/internal/observability"
	"github.com/odyssey-erp/commerce-intel/internal/platform/cache"
	"github.com/odyssey-erp/commerce-intel/internal/platform/db"
	"github.com/odyssey-erp/commerce-intel/internal/shared"
	"github.com/odyssey-erp/commerce-intel/jobs"
)

func main() {
	if app.SkipStartup("portal") {
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

	logger := app.NewLogger(cfg, "portal")
	slog.SetDefault(logger)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.WithMaxConns(cfg.PGMaxConns), db.WithConnLifetime(time.Hour))
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		// The engine computes uncached when Redis is down.
		logger.Warn("redis unavailable, caching disabled", slog.Any("error", err))
	}
	var intelCache *intelligence.Cache
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
		intelCache = intelligence.NewCache(redisClient, cfg.IntelCacheTTL)
		onInvalidate := func(tenantID, version int64) {
			logger.Debug("intelligence cache invalidated", slog.Int64("tenant_id", tenantID), slog.Int64("version", version))
		}
		if err := intelCache.ListenForInvalidation(ctx, onInvalidate); err != nil {
			logger.Warn("subscribe cache invalidation", slog.Any("error", err))
		}
	}

	repo := intelligencedb.NewRepository(dbpool, inventory.NewLedger(cfg.AllowNegativeStock))
	engine, err := intelligence.NewEngine(intelligence.EngineConfig{
		Store:       repo,
		Cache:       intelCache,
		Defaults:    cfg.Intelligence,
		Logger:      logger,
		Concurrency: cfg.SweepConcurrency,
	})
	if err != nil {
		logger.Error("init intelligence engine", slog.Any("error", err))
		os.Exit(1)
	}

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	authService := auth.NewService(auth.NewRepository(dbpool))
	intelHandler := intelhttp.NewHandler(intelhttp.Config{
		Service:         engine,
		Enqueuer:        jobClient,
		Idempotency:     shared.NewIdempotencyStore(dbpool),
		Audit:           shared.NewAuditLogger(dbpool),
		Logger:          logger,
		SampleRateLimit: cfg.SampleRateLimit,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:        logger,
		Config:        cfg,
		IntelHandler:  intelHandler,
		Authenticator: authService,
		JobHandler:    jobs.NewHandler(inspector, logger),
		Metrics:       metrics,
		Ready: func(r *http.Request) error {
			return dbpool.Ping(r.Context())
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
