// Package middleware provides net/http guards over the engine's Authorize
// operation: Bearer-token extraction, role checks, and request-metadata
// propagation into the context.
package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	sentinel "github.com/sentinelauth/sentinel"
)

type identityContextKey struct{}

// IdentityFromContext returns the identity attached by RequireRole.
func IdentityFromContext(ctx context.Context) (*sentinel.AccessIdentity, bool) {
	identity, ok := ctx.Value(identityContextKey{}).(*sentinel.AccessIdentity)
	return identity, ok
}

// RequireAuth guards a handler behind a valid access token with no role
// requirement.
func RequireAuth(engine *sentinel.Engine) func(http.Handler) http.Handler {
	return RequireRole(engine, "")
}

// RequireRole guards a handler behind a valid access token carrying the
// given role. The verified identity is placed on the request context.
func RequireRole(engine *sentinel.Engine, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			identity, err := engine.Authorize(r.Context(), token, role)
			if err != nil {
				status := http.StatusUnauthorized
				if errors.Is(err, sentinel.ErrInsufficientRole) {
					status = http.StatusForbidden
				}
				http.Error(w, http.StatusText(status), status)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithRequestMetadata copies client IP, user agent, and the optional
// device-hash header into the context for the engine's anomaly scoring and
// audit trail.
func WithRequestMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = sentinel.WithClientIP(ctx, clientIP(r))
		ctx = sentinel.WithUserAgent(ctx, r.UserAgent())
		if hash := r.Header.Get("X-Device-Hash"); hash != "" {
			ctx = sentinel.WithDeviceHash(ctx, hash)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first, _, ok := strings.Cut(forwarded, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
