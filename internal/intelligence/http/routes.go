package intelhttp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/commerce-intel/internal/platform/httpx"
	"github.com/odyssey-erp/commerce-intel/internal/shared"
)

// MountRoutes registers the intelligence endpoints. Callers are expected to
// install CallerMiddleware on r.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil || h.service == nil {
		return
	}
	r.Get("/settings", h.handleSettings)
	r.Route("/customers/{customerID}", func(r chi.Router) {
		r.Get("/pace", h.handlePace)
		r.Get("/health", h.handleHealth)
		r.Get("/health/history", h.handleHealthHistory)
		r.Get("/opportunities", h.handleOpportunities)
	})
	r.Route("/reps/{repID}", func(r chi.Router) {
		r.Get("/allowance", h.handleAllowance)
		r.Get("/feedback", h.handleFeedback)
	})
	r.With(h.sampleLimiter()).Post("/samples", h.handleRecordSample)
	r.Get("/alerts", h.handleAlerts)
	r.Post("/alerts/refresh", h.handleRefreshAlerts)
}

// sampleLimiter throttles sample writes per tenant.
func (h *Handler) sampleLimiter() func(http.Handler) http.Handler {
	if h.sampleRateLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(h.sampleRateLimit, time.Minute,
		httprate.WithKeyFuncs(keyByTenant),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.RespondError(w, httpx.ErrTooManyRequests)
		}),
	)
}

func keyByTenant(r *http.Request) (string, error) {
	caller := shared.CallerFromContext(r.Context())
	if caller == nil {
		return httprate.KeyByIP(r)
	}
	return "tenant:" + strconv.FormatInt(caller.TenantID, 10), nil
}
