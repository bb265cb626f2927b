// ABOUTME: HTTP middleware for JWT authentication on API endpoints
// ABOUTME: Extracts the bearer token, resolves the identity and adds it to context

package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/metrosha-gateway/internal/apperr"
	"github.com/2389/metrosha-gateway/internal/store"
)

// StreamTokenParam is the handshake query parameter carrying the stream token.
const StreamTokenParam = "Authorization"

// IdentityResolver turns a bearer token into the identity it names.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, token string) (*store.Identity, error)
}

// bearerPrefix is matched case-insensitively, as RFC 6750 allows.
const bearerPrefix = "bearer "

// trimBearer strips a leading "Bearer " in any case. ok is false when the
// prefix is absent.
func trimBearer(s string) (string, bool) {
	if len(s) < len(bearerPrefix) || !strings.EqualFold(s[:len(bearerPrefix)], bearerPrefix) {
		return s, false
	}
	return strings.TrimSpace(s[len(bearerPrefix):]), true
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	token, ok := trimBearer(authHeader)
	if !ok {
		return "", "invalid authorization header format"
	}
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// StreamToken returns the token passed in the handshake query string.
// A "Bearer " prefix is tolerated.
func StreamToken(r *http.Request) string {
	token, _ := trimBearer(strings.TrimSpace(r.URL.Query().Get(StreamTokenParam)))
	return strings.TrimSpace(token)
}

// MiddlewareOption configures HTTPAuthMiddleware.
type MiddlewareOption func(*middlewareOptions)

type middlewareOptions struct {
	onReject func()
}

// WithRejectHook calls fn whenever a request is refused for bad or missing
// credentials. Internal resolver failures are not reported.
func WithRejectHook(fn func()) MiddlewareOption {
	return func(o *middlewareOptions) { o.onReject = fn }
}

// writeUnauthorized writes err with the bearer challenge header when it is
// an InvalidCredentials failure.
func writeUnauthorized(w http.ResponseWriter, err error, o *middlewareOptions) {
	if apperr.KindOf(err) == apperr.KindInvalidCredentials {
		w.Header().Set("WWW-Authenticate", "Bearer")
		if o.onReject != nil {
			o.onReject()
		}
	}
	apperr.WriteHTTP(w, err)
}

// HTTPAuthMiddleware creates an HTTP middleware that validates the bearer
// token through resolver and adds the AuthContext to the request context.
// Every failure is reported as InvalidCredentials.
func HTTPAuthMiddleware(resolver IdentityResolver, logger *slog.Logger, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	o := &middlewareOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				logger.Debug("rejecting request", "path", r.URL.Path, "reason", errMsg)
				writeUnauthorized(w, apperr.New(apperr.KindInvalidCredentials, ""), o)
				return
			}

			identity, err := resolver.ResolveIdentity(r.Context(), token)
			if err != nil {
				logger.Debug("rejecting request", "path", r.URL.Path, "error", err)
				writeUnauthorized(w, err, o)
				return
			}

			authCtx := &AuthContext{
				IdentityID: identity.ID,
				Email:      identity.Email,
				Role:       string(identity.Role),
			}
			next.ServeHTTP(w, r.WithContext(WithAuth(r.Context(), authCtx)))
		})
	}
}
