package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/scmgo/scm-server/internal/api/common"
	"github.com/scmgo/scm-server/internal/api/hooks"
	v1 "github.com/scmgo/scm-server/internal/api/v1"
	"github.com/scmgo/scm-server/internal/hook"
	"github.com/scmgo/scm-server/internal/versions"
)

// ReadinessCheck reports whether the server can serve requests.
type ReadinessCheck func(ctx context.Context) error

// ServerOption configures the API server
type ServerOption func(*serverConfig)

type serverConfig struct {
	middlewares []func(http.Handler) http.Handler
	readiness   ReadinessCheck
	hookOptions []hooks.Option
}

// WithMiddlewares adds middleware to the server
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithReadinessCheck sets the check behind /readiness
func WithReadinessCheck(check ReadinessCheck) ServerOption {
	return func(cfg *serverConfig) {
		cfg.readiness = check
	}
}

// WithHookOptions configures the hook endpoint
func WithHookOptions(opts ...hooks.Option) ServerOption {
	return func(cfg *serverConfig) {
		cfg.hookOptions = append(cfg.hookOptions, opts...)
	}
}

// NewServer creates the HTTP router serving the system endpoints, the hook
// endpoint and the v1 entity API.
func NewServer(deps v1.Dependencies, bridge *hook.Bridge, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	r.Get("/health", healthHandler)
	r.Get("/readiness", readinessHandler(cfg.readiness))
	r.Get("/version", versionHandler)

	r.Mount("/hook", hooks.Router(bridge, cfg.hookOptions...))
	r.Mount("/api/v1", v1.Router(deps))

	return r
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.DebugContext(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, HealthResponse{Status: "healthy"}, http.StatusOK)
}

func readinessHandler(check ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				slog.WarnContext(r.Context(), "Readiness check failed", "error", err)
				common.WriteJSONResponse(w, ReadinessResponse{Status: "not ready", Error: err.Error()},
					http.StatusServiceUnavailable)
				return
			}
		}
		common.WriteJSONResponse(w, ReadinessResponse{Status: "ready"}, http.StatusOK)
	}
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	info := versions.GetVersionInfo()
	common.WriteJSONResponse(w, VersionResponse{
		Version:   info.Version,
		Commit:    info.Commit,
		BuildDate: info.BuildDate,
		GoVersion: info.GoVersion,
		Platform:  info.Platform,
	}, http.StatusOK)
}
