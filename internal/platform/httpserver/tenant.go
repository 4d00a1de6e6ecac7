package httpserver

import (
	"context"
	"net/http"
	"strings"

	apperrors "github.com/momentum-oss/momentum/internal/errors"
)

// TenantHeader carries the caller's tenant on every request.
const TenantHeader = "X-Tenant-Id"

// DefaultTenant is assumed when a request does not name a tenant.
const DefaultTenant = "default"

type ctxKey int

const (
	tenantKey ctxKey = iota
	subjectKey
)

// Tenant returns the tenant bound to the request context.
func Tenant(ctx context.Context) string {
	if value, ok := ctx.Value(tenantKey).(string); ok && value != "" {
		return value
	}
	return DefaultTenant
}

// Subject returns the authenticated subject, or empty when anonymous.
func Subject(ctx context.Context) string {
	value, _ := ctx.Value(subjectKey).(string)
	return value
}

// WithTenant returns a context carrying the tenant, primarily for tests
// and internal callers that bypass the middleware.
func WithTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, tenantKey, tenant)
}

// TenantMiddleware resolves the tenant header, validates it, and binds it
// to the request context. Requests without the header use DefaultTenant.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := strings.TrimSpace(r.Header.Get(TenantHeader))
		if tenant == "" {
			tenant = DefaultTenant
		}
		if !ValidTenant(tenant) {
			WriteError(w, r, apperrors.WithMetadata(apperrors.CodeTenantInvalid,
				"invalid tenant header", map[string]string{"Tenant": tenant}))
			return
		}
		next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), tenant)))
	})
}

// ValidTenant accepts lowercase slugs up to 64 chars, the shape used for
// schema prefixes and broker subjects. Services that carry the tenant in
// the URL path apply the same rule.
func ValidTenant(tenant string) bool {
	if len(tenant) == 0 || len(tenant) > 64 {
		return false
	}
	for i := 0; i < len(tenant); i++ {
		c := tenant[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}
