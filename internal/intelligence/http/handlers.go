package intelhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/commerce-intel/internal/intelligence"
	"github.com/odyssey-erp/commerce-intel/internal/platform/httpx"
	"github.com/odyssey-erp/commerce-intel/internal/shared"
	"github.com/odyssey-erp/commerce-intel/jobs"
)

const (
	requestTimeout     = 5 * time.Second
	idempotencyModule  = "samples"
	idempotencyHeader  = "Idempotency-Key"
	maxOpportunityList = 200
	maxHistoryLimit    = 120
)

// Service is the slice of the intelligence engine the API serves.
type Service interface {
	Settings(ctx context.Context, tenantID int64) (intelligence.Settings, error)
	Pace(ctx context.Context, tenantID, customerID int64) (intelligence.PaceResult, error)
	Health(ctx context.Context, tenantID, customerID int64) (intelligence.HealthResult, error)
	HealthHistory(ctx context.Context, tenantID, customerID int64, limit int) ([]intelligence.HealthSnapshot, error)
	Allowance(ctx context.Context, tenantID, salesRepID int64, month time.Time) (intelligence.AllowanceSummary, error)
	Feedback(ctx context.Context, tenantID, salesRepID int64) (intelligence.FeedbackSummary, error)
	RecordSampleTransfer(ctx context.Context, tenantID int64, req intelligence.SampleRequest) (intelligence.SampleTransfer, error)
	Opportunities(ctx context.Context, tenantID, customerID int64, opts intelligence.OpportunityOptions) ([]intelligence.Opportunity, error)
	Alerts(ctx context.Context, tenantID int64) ([]intelligence.Alert, error)
}

// SweepEnqueuer schedules an on-demand tenant sweep.
type SweepEnqueuer interface {
	EnqueueSweep(ctx context.Context, payload jobs.SweepPayload) (*asynq.TaskInfo, error)
}

// IdempotencyStore claims client supplied request keys.
type IdempotencyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// AuditRecorder persists audit entries for writes.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Config wires the handler dependencies. Only Service is required.
type Config struct {
	Service     Service
	Enqueuer    SweepEnqueuer
	Idempotency IdempotencyStore
	Audit       AuditRecorder
	Logger      *slog.Logger
	// SampleRateLimit caps sample writes per tenant per minute. Zero disables it.
	SampleRateLimit int
}

// Handler serves the intelligence JSON API.
type Handler struct {
	service         Service
	enqueuer        SweepEnqueuer
	idempotency     IdempotencyStore
	audit           AuditRecorder
	logger          *slog.Logger
	sampleRateLimit int
	now             func() time.Time
}

// NewHandler builds the API handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:         cfg.Service,
		enqueuer:        cfg.Enqueuer,
		idempotency:     cfg.Idempotency,
		audit:           cfg.Audit,
		logger:          logger,
		sampleRateLimit: cfg.SampleRateLimit,
		now:             time.Now,
	}
}

func (h *Handler) handlePace(w http.ResponseWriter, r *http.Request) {
	caller, customerID, ok := h.customerScope(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	result, err := h.service.Pace(ctx, caller.TenantID, customerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	caller, customerID, ok := h.customerScope(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	result, err := h.service.Health(ctx, caller.TenantID, customerID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleHealthHistory(w http.ResponseWriter, r *http.Request) {
	caller, customerID, ok := h.customerScope(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit", 0, maxHistoryLimit)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	history, err := h.service.HealthHistory(ctx, caller.TenantID, customerID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"customer_id": customerID, "snapshots": history})
}

func (h *Handler) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	caller, customerID, ok := h.customerScope(w, r)
	if !ok {
		return
	}
	opts := intelligence.OpportunityOptions{Metric: intelligence.RankingMetric(r.URL.Query().Get("metric"))}
	limit, err := queryInt(r, "limit", 0, maxOpportunityList)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", err.Error())
		return
	}
	opts.Limit = limit
	if raw := r.URL.Query().Get("include_inactive"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "include_inactive must be a boolean")
			return
		}
		opts.IncludeInactive = &include
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	ranked, err := h.service.Opportunities(ctx, caller.TenantID, customerID, opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if ranked == nil {
		ranked = []intelligence.Opportunity{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"customer_id": customerID, "opportunities": ranked})
}

func (h *Handler) handleAllowance(w http.ResponseWriter, r *http.Request) {
	caller, repID, ok := h.repScope(w, r)
	if !ok {
		return
	}
	var month time.Time
	if raw := r.URL.Query().Get("month"); raw != "" {
		parsed, err := intelligence.ParseMonth(raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "month must be YYYY-MM")
			return
		}
		month = parsed
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	summary, err := h.service.Allowance(ctx, caller.TenantID, repID, month)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleFeedback(w http.ResponseWriter, r *http.Request) {
	caller, repID, ok := h.repScope(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()
	summary, err := h.service.Feedback(ctx, caller.TenantID, repID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleRecordSample(w http.ResponseWriter, r *http.Request) {
	caller := shared.CallerFromContext(r.Context())
	if caller == nil {
		h.writeError(w, r, shared.ErrUnauthenticated)
		return
	}
	var req intelligence.SampleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	req.ActorID = caller.UserID

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	idemKey := shared.IdempotencyKey(caller.TenantID, r.Header.Get(idempotencyHeader))
	if idemKey != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(ctx, idemKey, idempotencyModule); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	created, err := h.service.RecordSampleTransfer(ctx, caller.TenantID, req)
	if err != nil {
		if idemKey != "" && h.idempotency != nil {
			if delErr := h.idempotency.Delete(context.WithoutCancel(ctx), idemKey); delErr != nil {
				h.logger.Warn("release idempotency key", slog.Any("error", delErr))
			}
		}
		h.writeError(w, r, err)
		return
	}

	if h.audit != nil {
		entry := shared.AuditLog{
			TenantID: caller.TenantID,
			ActorID:  caller.UserID,
			Action:   "sample.transfer.create",
			Entity:   "sample_transfer",
			EntityID: created.ID.String(),
			Meta: map[string]any{
				"sales_rep_id": created.SalesRepID,
				"customer_id":  created.CustomerID,
				"product_id":   created.ProductID,
				"quantity":     created.Quantity,
				"approved":     created.ApprovedByManagerID != nil,
			},
			At: h.now().UTC(),
		}
		if err := h.audit.Record(context.WithoutCancel(ctx), entry); err != nil {
			h.logger.Warn("audit sample transfer", slog.String("transfer_id", created.ID.String()), slog.Any("error", err))
		}
	}
	w.Header().Set("Location", "/api/intel/samples/"+created.ID.String())
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	caller := shared.CallerFromContext(r.Context())
	if caller == nil {
		h.writeError(w, r, shared.ErrUnauthenticated)
		return
	}
	// Alert lists sweep the whole tenant on a cache miss.
	ctx, cancel := context.WithTimeout(r.Context(), 6*requestTimeout)
	defer cancel()
	alerts, err := h.service.Alerts(ctx, caller.TenantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []intelligence.Alert{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tenant_id": caller.TenantID, "alerts": alerts})
}

func (h *Handler) handleRefreshAlerts(w http.ResponseWriter, r *http.Request) {
	caller := shared.CallerFromContext(r.Context())
	if caller == nil {
		h.writeError(w, r, shared.ErrUnauthenticated)
		return
	}
	if !caller.HasRole(shared.RoleManager) && !caller.HasRole(shared.RoleAdmin) {
		h.writeError(w, r, shared.ErrForbidden)
		return
	}
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "job queue not configured")
		return
	}
	payload := jobs.SweepPayload{TenantID: caller.TenantID, RequestedBy: "user:" + strconv.FormatInt(caller.UserID, 10)}
	info, err := h.enqueuer.EnqueueSweep(r.Context(), payload)
	if errors.Is(err, jobs.ErrSweepAlreadyQueued) {
		httpx.JSON(w, http.StatusAccepted, map[string]any{"status": "already_queued"})
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := map[string]any{"status": "queued"}
	if info != nil {
		resp["task_id"] = info.ID
	}
	httpx.JSON(w, http.StatusAccepted, resp)
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	caller := shared.CallerFromContext(r.Context())
	if caller == nil {
		h.writeError(w, r, shared.ErrUnauthenticated)
		return
	}
	settings, err := h.service.Settings(r.Context(), caller.TenantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, settings)
}

func (h *Handler) customerScope(w http.ResponseWriter, r *http.Request) (*shared.Caller, int64, bool) {
	return h.pathScope(w, r, "customerID")
}

func (h *Handler) repScope(w http.ResponseWriter, r *http.Request) (*shared.Caller, int64, bool) {
	return h.pathScope(w, r, "repID")
}

func (h *Handler) pathScope(w http.ResponseWriter, r *http.Request, param string) (*shared.Caller, int64, bool) {
	caller := shared.CallerFromContext(r.Context())
	if caller == nil {
		h.writeError(w, r, shared.ErrUnauthenticated)
		return nil, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Path", param+" must be a positive integer")
		return nil, 0, false
	}
	return caller, id, true
}

func queryInt(r *http.Request, name string, fallback, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	if v > max {
		v = max
	}
	return v, nil
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
