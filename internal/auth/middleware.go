// Package auth authenticates API requests and stores the resulting caller in
// the request context.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/scmgo/scm-server/internal/authz"
	"github.com/scmgo/scm-server/internal/config"
	"github.com/scmgo/scm-server/internal/event"
)

// RFC 6750 Section 3 error codes
const (
	errorCodeInvalidRequest = "invalid_request"
	errorCodeInvalidToken   = "invalid_token"
)

// bearerMiddleware authenticates HMAC signed bearer tokens.
type bearerMiddleware struct {
	validator        TokenValidator
	realm            string
	scopeMapping     []config.ScopeMappingEntry
	anonymousActions []string
	bus              *event.Bus
}

// Middleware returns an HTTP middleware function that performs authentication.
// Requests without a token proceed as the anonymous caller when anonymous
// actions are configured.
func (m *bearerMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := ExtractBearerToken(r)
		if err != nil {
			if errors.Is(err, errMissingBearer) && len(m.anonymousActions) > 0 {
				caller := authz.Anonymous(m.anonymousActions...)
				next.ServeHTTP(w, r.WithContext(authz.WithCaller(r.Context(), caller)))
				return
			}
			slog.WarnContext(r.Context(), "Token extraction failed",
				"error", err,
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path)
			m.writeError(w, errorCodeInvalidRequest, "missing or malformed authorization header")
			return
		}

		claims, err := m.validator.ValidateToken(r.Context(), token)
		if err != nil {
			slog.WarnContext(r.Context(), "Token validation failed",
				"error", err,
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path)
			m.writeError(w, errorCodeInvalidToken, "token validation failed")
			return
		}

		subject, _ := claims.GetSubject()
		caller := authz.Caller{
			Subject:        subject,
			GrantedActions: authz.MapScopesToActions(authz.ExtractScopes(claims), m.scopeMapping),
		}

		slog.DebugContext(r.Context(), "Authentication successful",
			"subject", subject,
			"granted_actions", caller.GrantedActions,
			"path", r.URL.Path)
		m.bus.Publish(r.Context(), event.NewAuthenticationEvent(subject, caller.GrantedActions))

		next.ServeHTTP(w, r.WithContext(authz.WithCaller(r.Context(), caller)))
	})
}

// sanitizeHeaderValue removes characters that could enable header injection.
func sanitizeHeaderValue(s string) string {
	if !strings.ContainsAny(s, "\r\n\"") {
		return s
	}
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return strings.ReplaceAll(s, `"`, `\"`)
}

// writeError writes a 401 JSON response with an RFC 6750 WWW-Authenticate header.
func (m *bearerMiddleware) writeError(w http.ResponseWriter, errCode, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="%s", error="%s", error_description="%s"`,
		sanitizeHeaderValue(m.realm), errCode, sanitizeHeaderValue(description)))
	w.WriteHeader(http.StatusUnauthorized)

	resp := struct {
		Error string `json:"error"`
	}{
		Error: description,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

// anonymousMiddleware runs every request as the anonymous caller.
func anonymousMiddleware(actions []string) func(http.Handler) http.Handler {
	caller := authz.Anonymous(actions...)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(authz.WithCaller(r.Context(), caller)))
		})
	}
}

// WrapWithPublicPaths bypasses authMw for requests to publicPaths.
func WrapWithPublicPaths(
	authMw func(http.Handler) http.Handler,
	publicPaths []string,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		authWrappedNext := authMw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsPublicPath(r.URL.Path, publicPaths) {
				next.ServeHTTP(w, r)
				return
			}
			authWrappedNext.ServeHTTP(w, r)
		})
	}
}
