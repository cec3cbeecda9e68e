package intelhttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/odyssey-erp/commerce-intel/internal/platform/httpx"
	"github.com/odyssey-erp/commerce-intel/internal/shared"
)

// Header names supplied by the portal edge.
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
	HeaderRoles    = "X-Roles"
	HeaderAPIKey   = "X-API-Key"
)

// Authenticator resolves an API key into a caller.
type Authenticator interface {
	Authenticate(ctx context.Context, presented string) (*shared.Caller, error)
}

// CallerMiddleware resolves the tenant a request acts for. An API key wins
// over edge headers; the headers are honoured only when trustHeaders is set.
func CallerMiddleware(auth Authenticator, trustHeaders bool, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := resolveCaller(r, auth, trustHeaders)
			if err != nil {
				if !errors.Is(err, shared.ErrUnauthenticated) && !errors.Is(err, shared.ErrInvalidCredentials) {
					logger.Error("resolve caller", slog.Any("error", err))
					httpx.RespondError(w, httpx.ErrUnavailable)
					return
				}
				httpx.RespondError(w, httpx.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithCaller(r.Context(), caller)))
		})
	}
}

func resolveCaller(r *http.Request, auth Authenticator, trustHeaders bool) (*shared.Caller, error) {
	if key := presentedKey(r); key != "" {
		if auth == nil {
			return nil, shared.ErrInvalidCredentials
		}
		return auth.Authenticate(r.Context(), key)
	}
	if !trustHeaders {
		return nil, shared.ErrUnauthenticated
	}
	tenantID, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(HeaderTenantID)), 10, 64)
	if err != nil || tenantID <= 0 {
		return nil, shared.ErrUnauthenticated
	}
	caller := &shared.Caller{TenantID: tenantID}
	if raw := strings.TrimSpace(r.Header.Get(HeaderUserID)); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID < 0 {
			return nil, shared.ErrUnauthenticated
		}
		caller.UserID = userID
	}
	for _, role := range strings.Split(r.Header.Get(HeaderRoles), ",") {
		if role = strings.TrimSpace(role); role != "" {
			caller.Roles = append(caller.Roles, role)
		}
	}
	return caller, nil
}

func presentedKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(HeaderAPIKey)); key != "" {
		return key
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
