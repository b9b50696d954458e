// Package hooks serves the endpoint backend hooks call when a repository changes.
package hooks

import (
	"crypto/subtle"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmgilman/go/errors"

	"github.com/scmgo/scm-server/internal/api/common"
	"github.com/scmgo/scm-server/internal/hook"
)

// DefaultTokenHeader carries the hook token unless configured otherwise.
const DefaultTokenHeader = "X-SCM-Hook-Token"

// Option configures the hook router
type Option func(*routes)

// WithToken requires every call to present token in header or in the
// token query parameter.
func WithToken(token, header string) Option {
	return WithTokenSource(func() string { return token }, header)
}

// WithTokenSource is WithToken for a token that may change while serving.
// token is called on every request.
func WithTokenSource(token func() string, header string) Option {
	return func(r *routes) {
		r.token = token
		if header != "" {
			r.header = header
		}
	}
}

// WithAllowUnauthenticated accepts calls when no token is configured.
func WithAllowUnauthenticated(allow bool) Option {
	return func(r *routes) {
		r.allowUnauthenticated = allow
	}
}

type routes struct {
	bridge               *hook.Bridge
	token                func() string
	header               string
	allowUnauthenticated bool
}

// Router creates the hook router. Calls have the form
// GET /{backendKind}/{repositoryName}/{changeType}?node=<changeset>.
func Router(bridge *hook.Bridge, opts ...Option) http.Handler {
	routes := &routes{bridge: bridge, header: DefaultTokenHeader}
	for _, opt := range opts {
		opt(routes)
	}

	r := chi.NewRouter()
	r.Get("/{backendKind}/{repositoryName}/{changeType}", routes.notify)
	return r
}

func (rt *routes) authorized(r *http.Request) bool {
	var token string
	if rt.token != nil {
		token = rt.token()
	}
	if token == "" {
		return rt.allowUnauthenticated
	}
	presented := r.Header.Get(rt.header)
	if presented == "" {
		presented = r.URL.Query().Get("token")
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1
}

func (rt *routes) notify(w http.ResponseWriter, r *http.Request) {
	if !rt.authorized(r) {
		common.WriteErrorResponse(w, errors.CodeUnauthorized, "invalid hook token")
		return
	}

	var n hook.Notification
	var err error
	if n.BackendKind, err = common.PathParam(r, "backendKind"); err != nil {
		common.WriteError(w, r, err)
		return
	}
	if n.RepositoryName, err = common.PathParam(r, "repositoryName"); err != nil {
		common.WriteError(w, r, err)
		return
	}
	if n.ChangeType, err = common.PathParam(r, "changeType"); err != nil {
		common.WriteError(w, r, err)
		return
	}
	n.Node = r.URL.Query().Get("node")

	result := rt.bridge.Handle(r.Context(), n)
	switch result.Status {
	case hook.StatusDispatched:
		common.WriteJSONResponse(w, result, http.StatusOK)
	case hook.StatusRepositoryNotFound:
		common.WriteJSONResponse(w, result, http.StatusNotFound)
	default:
		common.WriteJSONResponse(w, result, http.StatusInternalServerError)
	}
}
