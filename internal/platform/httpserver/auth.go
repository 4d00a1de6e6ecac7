package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/momentum-oss/momentum/internal/errors"
)

// Claims are the JWT claims accepted on mutating requests.
type Claims struct {
	TenantID string `json:"tenant_id,omitempty"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator validates bearer tokens on mutating routes. A zero-value
// secret disables authentication entirely, which is the local-dev posture.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator builds an HMAC token validator. Returns nil when the
// secret is empty so callers can chain the middleware unconditionally.
func NewAuthenticator(secret string) *Authenticator {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	return &Authenticator{secret: []byte(secret)}
}

// Middleware enforces bearer auth on mutating methods. Reads pass through
// so dashboards and probes work unauthenticated.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	if a == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		claims, err := a.validate(r.Header.Get("Authorization"))
		if err != nil {
			WriteError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey, claims.Subject)
		if claims.TenantID != "" {
			ctx = WithTenant(ctx, claims.TenantID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) validate(header string) (*Claims, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, apperrors.New(apperrors.CodeUnauthenticated, "missing authorization header")
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return nil, apperrors.New(apperrors.CodeUnauthenticated, "authorization header is not a bearer token")
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeUnauthenticated, "token validation failed", err)
	}
	if !parsed.Valid {
		return nil, apperrors.New(apperrors.CodeUnauthenticated, "token is not valid")
	}
	return claims, nil
}
