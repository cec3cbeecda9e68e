package intelhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/commerce-intel/internal/intelligence"
	"github.com/odyssey-erp/commerce-intel/internal/inventory"
	"github.com/odyssey-erp/commerce-intel/internal/platform/httpx"
	"github.com/odyssey-erp/commerce-intel/internal/shared"
)

// writeError maps engine and platform errors onto problem responses.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var exceeded *intelligence.AllowanceExceededError
	switch {
	case errors.As(err, &exceeded):
		httpx.ProblemWithData(w, http.StatusConflict, "Sample Allowance Exceeded",
			"manager approval required for this transfer", exceeded)
	case errors.Is(err, inventory.ErrNegativeStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, intelligence.ErrInvalidRequest), errors.Is(err, inventory.ErrInvalidQuantity):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
	case errors.Is(err, intelligence.ErrInvalidConfiguration):
		h.logger.Error("tenant settings rejected", slog.String("request_id", requestID(r)), slog.Any("error", err))
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Configuration", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, shared.ErrUnauthenticated), errors.Is(err, shared.ErrInvalidCredentials):
		httpx.RespondError(w, httpx.ErrUnauthorized)
	case errors.Is(err, shared.ErrForbidden):
		httpx.RespondError(w, httpx.ErrForbidden)
	case errors.Is(err, intelligence.ErrDataSourceUnavailable),
		errors.Is(err, intelligence.ErrReaderNotConfigured),
		errors.Is(err, context.DeadlineExceeded):
		h.logger.Error("intelligence request failed", slog.String("path", r.URL.Path), slog.String("request_id", requestID(r)), slog.Any("error", err))
		httpx.RespondError(w, httpx.ErrUnavailable)
	default:
		h.logger.Error("intelligence request failed", slog.String("path", r.URL.Path), slog.String("request_id", requestID(r)), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
