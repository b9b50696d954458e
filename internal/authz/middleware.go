package authz

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/scmgo/scm-server/internal/config"
)

// ForbiddenResponse is the JSON body returned when authorization is denied.
type ForbiddenResponse struct {
	Error   string           `json:"error"`
	Message string           `json:"message"`
	Details *ForbiddenDetail `json:"details,omitempty"`
}

// ForbiddenDetail tells callers which action was required and which scopes grant it.
type ForbiddenDetail struct {
	RequiredAction string   `json:"required_action"`
	GrantedActions []string `json:"granted_actions"`
	Hint           string   `json:"hint"`
}

// Middleware performs a route level Cedar check for the Caller stored in the
// request context by the authentication middleware. Requests without a caller
// are rejected with 401.
func Middleware(authorizer Authorizer, scopeMapping []config.ScopeMappingEntry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := CallerFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			requiredAction := RouteAction(r.Method, r.URL.Path)
			req := Request{
				Subject:        caller.Subject,
				GrantedActions: caller.GrantedActions,
				Action:         requiredAction,
				ResourceType:   ResourceType(r.URL.Path),
			}

			decision, err := authorizer.Authorize(r.Context(), req)
			if err != nil {
				slog.ErrorContext(r.Context(), "Authorization evaluation failed",
					"error", err,
					"action", requiredAction,
					"path", r.URL.Path,
					"method", r.Method,
					"subject", caller.Subject,
				)
				writeJSONError(w, http.StatusInternalServerError, "authorization evaluation failed")
				return
			}

			if !decision.Allowed {
				slog.WarnContext(r.Context(), "Authorization denied",
					"action", requiredAction,
					"path", r.URL.Path,
					"method", r.Method,
					"subject", caller.Subject,
					"granted_actions", caller.GrantedActions,
				)
				if caller.IsAnonymous() {
					writeJSONError(w, http.StatusUnauthorized, "authentication required")
					return
				}
				writeForbidden(w, requiredAction, caller.GrantedActions, scopeMapping)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeForbidden(w http.ResponseWriter, requiredAction string, granted []string, scopeMapping []config.ScopeMappingEntry) {
	resp := ForbiddenResponse{
		Error:   "forbidden",
		Message: "You do not have permission to perform this action.",
		Details: &ForbiddenDetail{
			RequiredAction: requiredAction,
			GrantedActions: granted,
			Hint:           buildHint(requiredAction, scopeMapping),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode forbidden response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	resp := struct {
		Error string `json:"error"`
	}{
		Error: message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

// buildHint lists the scopes granting requiredAction. Admin always qualifies.
func buildHint(requiredAction string, scopeMapping []config.ScopeMappingEntry) string {
	var matchingScopes []string
	for _, entry := range scopeMapping {
		if slices.Contains(entry.Actions, requiredAction) || slices.Contains(entry.Actions, ActionAdmin) {
			matchingScopes = append(matchingScopes, entry.Scope)
		}
	}

	if len(matchingScopes) == 0 {
		return "No configured scopes grant the required action."
	}
	return "This operation requires one of the following scopes: " + strings.Join(matchingScopes, ", ")
}
