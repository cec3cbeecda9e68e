package intelligence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 8

// EngineConfig collects the engine's dependencies.
type EngineConfig struct {
	Store       Store
	Cache       *Cache
	Defaults    Settings
	Logger      *slog.Logger
	Concurrency int
	Clock       func() time.Time
}

// Engine coordinates reads, settings and the calculators for one process. It
// keeps no tenant state between calls; the tenant id is threaded explicitly.
type Engine struct {
	store       Store
	cache       *Cache
	defaults    Settings
	logger      *slog.Logger
	concurrency int
	clock       func() time.Time
	validate    *validator.Validate
}

// NewEngine validates the process-wide defaults and builds an Engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.Defaults.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		store:       cfg.Store,
		cache:       cfg.Cache,
		defaults:    cfg.Defaults,
		logger:      logger,
		concurrency: concurrency,
		clock:       clock,
		validate:    validator.New(),
	}, nil
}

// Cache exposes the engine's cache so jobs can bump it after a sweep.
func (e *Engine) Cache() *Cache {
	return e.cache
}

func (e *Engine) now() time.Time {
	return e.clock().UTC()
}

// Settings resolves the effective settings for a tenant.
func (e *Engine) Settings(ctx context.Context, tenantID int64) (Settings, error) {
	if e.store == nil {
		return Settings{}, ErrReaderNotConfigured
	}
	raw, err := e.store.LoadTenantSettings(ctx, tenantID)
	if err != nil {
		return Settings{}, err
	}
	settings, err := ApplyOverrides(e.defaults, raw)
	if err != nil {
		return Settings{}, fmt.Errorf("tenant %d: %w", tenantID, err)
	}
	return settings, nil
}

// Pace computes the ordering cadence risk for one customer.
func (e *Engine) Pace(ctx context.Context, tenantID, customerID int64) (PaceResult, error) {
	settings, err := e.Settings(ctx, tenantID)
	if err != nil {
		return PaceResult{}, err
	}
	return e.pace(ctx, tenantID, customerID, settings.Pace, e.now())
}

func (e *Engine) pace(ctx context.Context, tenantID, customerID int64, cfg PaceSettings, now time.Time) (PaceResult, error) {
	since := now.AddDate(0, 0, -cfg.LookbackDays)
	orders, err := e.store.ListFulfilledOrders(ctx, tenantID, customerID, since)
	if err != nil {
		return PaceResult{}, err
	}
	return CalculatePace(customerID, orders, now, cfg), nil
}

// Health computes the revenue health classification for one customer.
func (e *Engine) Health(ctx context.Context, tenantID, customerID int64) (HealthResult, error) {
	settings, err := e.Settings(ctx, tenantID)
	if err != nil {
		return HealthResult{}, err
	}
	return e.health(ctx, tenantID, customerID, settings.Health, e.now())
}

func (e *Engine) health(ctx context.Context, tenantID, customerID int64, cfg HealthSettings, now time.Time) (HealthResult, error) {
	since := monthStart(now).AddDate(0, -(cfg.LookbackMonths - 1), 0)
	months, err := e.store.ListMonthlyRevenue(ctx, tenantID, customerID, since)
	if err != nil {
		return HealthResult{}, err
	}
	return EvaluateHealth(customerID, months, now, cfg), nil
}

// HealthHistory lists the persisted snapshots for a customer, newest first.
func (e *Engine) HealthHistory(ctx context.Context, tenantID, customerID int64, limit int) ([]HealthSnapshot, error) {
	if e.store == nil {
		return nil, ErrReaderNotConfigured
	}
	if limit <= 0 || limit > 120 {
		limit = 24
	}
	return e.store.ListHealthSnapshots(ctx, tenantID, customerID, limit)
}

// Allowance reports a rep's sample usage for the month containing month.
func (e *Engine) Allowance(ctx context.Context, tenantID, salesRepID int64, month time.Time) (AllowanceSummary, error) {
	settings, err := e.Settings(ctx, tenantID)
	if err != nil {
		return AllowanceSummary{}, err
	}
	if month.IsZero() {
		month = e.now()
	}
	from, to := MonthRange(month)
	transfers, err := e.store.ListSampleTransfers(ctx, tenantID, salesRepID, from, to)
	if err != nil {
		return AllowanceSummary{}, err
	}
	return SummarizeAllowance(salesRepID, month, transfers, settings.Samples), nil
}

// Feedback reports the rep's tasting-feedback accountability over the
// configured reporting window.
func (e *Engine) Feedback(ctx context.Context, tenantID, salesRepID int64) (FeedbackSummary, error) {
	settings, err := e.Settings(ctx, tenantID)
	if err != nil {
		return FeedbackSummary{}, err
	}
	now := e.now()
	windowStart := now.AddDate(0, 0, -settings.Samples.FeedbackWindowDays)
	transfers, err := e.store.ListSampleTransfers(ctx, tenantID, salesRepID, windowStart, now.Add(time.Nanosecond))
	if err != nil {
		return FeedbackSummary{}, err
	}
	return SummarizeFeedback(salesRepID, transfers, windowStart, now, settings.Samples), nil
}

// SampleRequest is a rep's request to pull sample stock for a customer.
type SampleRequest struct {
	SalesRepID          int64     `json:"sales_rep_id" validate:"required,gt=0"`
	CustomerID          int64     `json:"customer_id" validate:"required,gt=0"`
	ProductID           int64     `json:"product_id" validate:"required,gt=0"`
	WarehouseID         int64     `json:"warehouse_id" validate:"required,gt=0"`
	Quantity            int64     `json:"quantity" validate:"required,gt=0,lte=100000"`
	TransferDate        time.Time `json:"transfer_date"`
	ApprovedByManagerID *int64    `json:"approved_by_manager_id,omitempty" validate:"omitempty,gt=0"`
	Note                string    `json:"note,omitempty" validate:"max=500"`
	ActorID             int64     `json:"-"`
}

// RecordSampleTransfer checks the monthly allowance and records the transfer
// together with its outbound inventory movement in one transaction. The
// month's pulls are re-read under a per-rep lock inside that transaction.
func (e *Engine) RecordSampleTransfer(ctx context.Context, tenantID int64, req SampleRequest) (SampleTransfer, error) {
	if err := e.validate.Struct(req); err != nil {
		return SampleTransfer{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	settings, err := e.Settings(ctx, tenantID)
	if err != nil {
		return SampleTransfer{}, err
	}
	now := e.now()
	transferDate := req.TransferDate.UTC()
	if req.TransferDate.IsZero() {
		transferDate = now
	}
	if transferDate.After(now.Add(time.Minute)) {
		return SampleTransfer{}, fmt.Errorf("%w: transfer date in the future", ErrInvalidRequest)
	}

	transfer := SampleTransfer{
		ID:                  uuid.New(),
		TenantID:            tenantID,
		SalesRepID:          req.SalesRepID,
		CustomerID:          req.CustomerID,
		ProductID:           req.ProductID,
		WarehouseID:         req.WarehouseID,
		Quantity:            req.Quantity,
		TransferDate:        transferDate,
		ApprovedByManagerID: req.ApprovedByManagerID,
		Note:                req.Note,
		CreatedBy:           req.ActorID,
		CreatedAt:           now,
	}
	from, to := MonthRange(transferDate)

	var created SampleTransfer
	err = e.store.WithSampleTx(ctx, func(ctx context.Context, tx SampleTx) error {
		if err := tx.LockRepMonth(ctx, tenantID, req.SalesRepID, from); err != nil {
			return err
		}
		pulls, err := tx.SumRepPulls(ctx, tenantID, req.SalesRepID, from, to)
		if err != nil {
			return err
		}
		if err := CheckAllowance(pulls, req.Quantity, req.ApprovedByManagerID, settings.Samples); err != nil {
			return err
		}
		created, err = tx.CreateSampleTransfer(ctx, transfer)
		return err
	})
	if err != nil {
		return SampleTransfer{}, err
	}
	e.logger.Info("sample transfer recorded",
		slog.Int64("tenant_id", tenantID),
		slog.Int64("sales_rep_id", created.SalesRepID),
		slog.String("transfer_id", created.ID.String()),
		slog.Int64("quantity", created.Quantity))
	return created, nil
}

// OpportunityOptions overrides the tenant's default ranking query.
type OpportunityOptions struct {
	Metric          RankingMetric
	Limit           int
	IncludeInactive *bool
}

// Opportunities ranks products the customer has not bought recently.
func (e *Engine) Opportunities(ctx context.Context, tenantID, customerID int64, opts OpportunityOptions) ([]Opportunity, error) {
	settings, err := e.Settings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	q := QueryFromSettings(settings.Opportunity)
	if opts.Metric != "" {
		if !opts.Metric.Valid() {
			return nil, fmt.Errorf("%w: unknown ranking metric %q", ErrInvalidRequest, opts.Metric)
		}
		q.Metric = opts.Metric
	}
	if opts.Limit > 0 {
		q.Limit = opts.Limit
	}
	if opts.IncludeInactive != nil {
		q.IncludeInactiveProducts = *opts.IncludeInactive
	}
	now := e.now()

	lookback := settings.Opportunity.LookbackDays
	load := func(ctx context.Context) ([]Opportunity, error) {
		return e.rankOpportunities(ctx, tenantID, customerID, lookback, q, now)
	}
	return cached(ctx, e.cache, tenantID, viewOpportunities, opportunityKeyParts(customerID, q, lookback, now), load)
}

func (e *Engine) rankOpportunities(ctx context.Context, tenantID, customerID int64, lookbackDays int, q OpportunityQuery, now time.Time) ([]Opportunity, error) {
	since := now.AddDate(0, 0, -lookbackDays)
	orders, err := e.store.ListFulfilledOrders(ctx, tenantID, customerID, since)
	if err != nil {
		return nil, err
	}
	var products []Product
	if q.IncludeInactiveProducts {
		products, err = e.store.ListProducts(ctx, tenantID)
	} else {
		products, err = e.store.ListActiveProducts(ctx, tenantID)
	}
	if err != nil {
		return nil, err
	}
	candidates := CandidateProducts(products, PurchasedProducts(orders, since), q.IncludeInactiveProducts)

	totalActive, err := e.store.CountActiveCustomers(ctx, tenantID, since)
	if err != nil {
		return nil, err
	}

	salesByProduct := make([][]ProductSale, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, p := range candidates {
		g.Go(func() error {
			sales, err := e.store.ListOrderLinesForProduct(gctx, tenantID, p.ID, since)
			if err != nil {
				return err
			}
			salesByProduct[i] = sales
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sales := make(map[int64][]ProductSale, len(candidates))
	for i, p := range candidates {
		sales[p.ID] = salesByProduct[i]
	}
	return RankOpportunities(candidates, sales, totalActive, q), nil
}
