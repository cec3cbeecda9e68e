package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/commerce-intel/internal/events"
	"github.com/odyssey-erp/commerce-intel/internal/intelligence"
	jobmetrics "github.com/odyssey-erp/commerce-intel/internal/jobs"
	"github.com/odyssey-erp/commerce-intel/internal/shared"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Sweeper evaluates one tenant and owns the result cache.
type Sweeper interface {
	SweepTenant(ctx context.Context, tenantID int64) (intelligence.SweepReport, error)
	Cache() *intelligence.Cache
}

// TenantLister enumerates tenants for unscoped sweeps.
type TenantLister interface {
	ListTenants(ctx context.Context) ([]int64, error)
}

// releaseLock deletes the lock only while this run still owns it.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// SweepJob runs tenant sweeps, publishes the alerts and invalidates cached
// alert lists.
type SweepJob struct {
	Sweeper   Sweeper
	Tenants   TenantLister
	Redis     *redis.Client
	Publisher *events.AlertPublisher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	LockTTL   time.Duration
	clock     func() time.Time
}

// NewSweepJob wires dependencies for the sweep handler.
func NewSweepJob(sweeper Sweeper, tenants TenantLister, rdb *redis.Client, publisher *events.AlertPublisher, logger *slog.Logger, metrics *jobmetrics.Metrics) *SweepJob {
	return &SweepJob{
		Sweeper:   sweeper,
		Tenants:   tenants,
		Redis:     rdb,
		Publisher: publisher,
		Logger:    logger,
		Metrics:   metrics,
		LockTTL:   15 * time.Minute,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes intelligence sweep tasks.
func (j *SweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Sweeper == nil {
		return errors.New("intelligence sweep: handler not configured")
	}
	var payload SweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("intelligence sweep: decode payload: %w", asynq.SkipRetry)
		}
	}
	if payload.TenantID < 0 {
		return fmt.Errorf("intelligence sweep: invalid tenant %d: %w", payload.TenantID, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskIntelligenceSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int64("tenant_id", payload.TenantID))
	if payload.RequestedBy != "" {
		logger = logger.With(slog.String("requested_by", payload.RequestedBy))
	}
	start := j.now()
	logger.Info("starting intelligence sweep")

	tenants, err := j.tenants(ctx, payload)
	if err != nil {
		resultErr = err
		logger.Error("load tenants", slog.Any("error", err))
		return resultErr
	}

	var failures []error
	var swept []int64
	for _, tenantID := range tenants {
		ok, err := j.sweepTenant(ctx, tenantID)
		if err != nil {
			failures = append(failures, fmt.Errorf("tenant %d: %w", tenantID, err))
			logger.Error("sweep tenant", slog.Int64("sweep_tenant_id", tenantID), slog.Any("error", err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if ok {
			swept = append(swept, tenantID)
		}
	}
	if err := j.Sweeper.Cache().Invalidate(ctx, swept...); err != nil {
		logger.Warn("invalidate intelligence cache", slog.Any("error", err))
	}
	resultErr = errors.Join(failures...)
	logger.Info("completed intelligence sweep",
		slog.Int("tenants", len(tenants)),
		slog.Int("swept", len(swept)),
		slog.Int("failed", len(failures)),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return resultErr
}

// sweepTenant reports false when another run holds the tenant lock.
func (j *SweepJob) sweepTenant(ctx context.Context, tenantID int64) (bool, error) {
	release, acquired, err := j.lock(ctx, tenantID)
	if err != nil {
		return false, err
	}
	if !acquired {
		j.logger().Info("sweep already running", slog.Int64("tenant_id", tenantID))
		return false, nil
	}
	defer release()

	report, err := j.Sweeper.SweepTenant(ctx, tenantID)
	if err != nil {
		return false, err
	}
	j.metrics().AddSkipped(tenantID, report.Skipped)
	counts := make(map[intelligence.AlertType]int)
	for _, alert := range report.Alerts {
		counts[alert.Type]++
	}
	for alertType, n := range counts {
		j.metrics().AddAlerts(string(alertType), tenantID, n)
	}
	if j.Publisher.Enabled() {
		if _, err := j.Publisher.PublishAlerts(ctx, tenantID, report.RanAt, report.Alerts); err != nil {
			// Snapshots are already persisted, so a retry would duplicate them.
			j.logger().Warn("publish alerts", slog.Int64("tenant_id", tenantID), slog.Any("error", err))
		}
	}
	j.logger().Info("tenant swept",
		slog.Int64("tenant_id", tenantID),
		slog.Int("customers", report.Customers),
		slog.Int("evaluated", report.Evaluated),
		slog.Int("skipped", report.Skipped),
		slog.Int("alerts", len(report.Alerts)),
	)
	return true, nil
}

func (j *SweepJob) lock(ctx context.Context, tenantID int64) (func(), bool, error) {
	if j.Redis == nil {
		return func() {}, true, nil
	}
	key := shared.SweepLockKey(tenantID)
	token := uuid.NewString()
	ttl := j.LockTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	acquired, err := j.Redis.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	release := func() {
		if err := releaseLock.Run(context.WithoutCancel(ctx), j.Redis, []string{key}, token).Err(); err != nil {
			j.logger().Warn("release sweep lock", slog.Int64("tenant_id", tenantID), slog.Any("error", err))
		}
	}
	return release, true, nil
}

func (j *SweepJob) tenants(ctx context.Context, payload SweepPayload) ([]int64, error) {
	if payload.TenantID > 0 {
		return []int64{payload.TenantID}, nil
	}
	if j.Tenants == nil {
		return nil, errors.New("intelligence sweep: tenant lister not configured")
	}
	return j.Tenants.ListTenants(ctx)
}

func (j *SweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskIntelligenceSweep))
	}
	return slog.Default().With(slog.String("job", TaskIntelligenceSweep))
}

func (j *SweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
