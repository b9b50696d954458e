package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/scmgo/scm-server/internal/api"
	"github.com/scmgo/scm-server/internal/api/hooks"
	v1 "github.com/scmgo/scm-server/internal/api/v1"
	"github.com/scmgo/scm-server/internal/auth"
	"github.com/scmgo/scm-server/internal/authz"
	"github.com/scmgo/scm-server/internal/backend"
	"github.com/scmgo/scm-server/internal/backend/git"
	"github.com/scmgo/scm-server/internal/cache"
	"github.com/scmgo/scm-server/internal/command"
	"github.com/scmgo/scm-server/internal/config"
	"github.com/scmgo/scm-server/internal/event"
	"github.com/scmgo/scm-server/internal/hook"
	"github.com/scmgo/scm-server/internal/manager"
	"github.com/scmgo/scm-server/internal/model"
	"github.com/scmgo/scm-server/internal/store"
	"github.com/scmgo/scm-server/internal/telemetry"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 30 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 45 * time.Second
	defaultIdleTimeout    = 60 * time.Second

	instrumentationName = "github.com/scmgo/scm-server"
)

// defaultPublicPaths never require authentication. The hook endpoint checks
// its own token.
var defaultPublicPaths = []string{"/health", "/readiness", "/version", "/hook"}

// ServerAppOption configures the server builder
type ServerAppOption func(*serverAppConfig) error

type serverAppConfig struct {
	config *config.Config

	// injected for tests
	storeFactory   *store.Factory
	authMiddleware func(http.Handler) http.Handler

	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider

	hookToken *config.TokenWatcher
}

func baseConfig(opts ...ServerAppOption) (*serverAppConfig, error) {
	cfg := &serverAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	return cfg, nil
}

// NewServerApp wires storage, entity managers, backends, caches, the hook
// bridge and the HTTP server.
func NewServerApp(ctx context.Context, opts ...ServerAppOption) (*ServerApp, error) {
	b, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}

	if b.storeFactory == nil {
		b.storeFactory, err = store.NewFactory(ctx, b.config, store.WithTracer(b.tracer()))
		if err != nil {
			return nil, fmt.Errorf("failed to create store factory: %w", err)
		}
	}
	cleanupNeeded := true
	defer func() {
		if cleanupNeeded {
			b.storeFactory.Cleanup()
		}
	}()

	components, err := buildComponents(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("failed to build components: %w", err)
	}

	if b.authMiddleware == nil {
		b.authMiddleware, err = auth.NewAuthMiddleware(&b.config.Auth, components.Bus)
		if err != nil {
			return nil, fmt.Errorf("failed to build auth middleware: %w", err)
		}
	}

	b.hookToken, err = b.config.Hooks.WatchToken()
	if err != nil {
		return nil, fmt.Errorf("failed to load hook token: %w", err)
	}
	defer func() {
		if cleanupNeeded {
			_ = b.hookToken.Close()
		}
	}()

	httpServer, err := buildHTTPServer(b, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	hookToken := b.hookToken
	cleanupNeeded = false
	return &ServerApp{
		config:     b.config,
		components: components,
		httpServer: httpServer,
		cleanup: func() {
			if err := hookToken.Close(); err != nil {
				slog.Warn("Failed to stop hook token watcher", "error", err)
			}
			components.Caches.Clear(context.Background())
			components.Stores.Cleanup()
		},
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) ServerAppOption {
	return func(cfg *serverAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP listen address
func WithAddress(addr string) ServerAppOption {
	return func(cfg *serverAppConfig) error {
		host, port, found := strings.Cut(addr, ":")
		if !found || port == "" {
			return fmt.Errorf("address is not a valid port: %q", addr)
		}
		switch host {
		case "localhost":
			host = "127.0.0.1"
		case "":
			host = "0.0.0.0"
		}
		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}
		cfg.address = addr
		return nil
	}
}

// WithMiddlewares replaces the default middleware chain
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerAppOption {
	return func(cfg *serverAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithStoreFactory injects the store factory
func WithStoreFactory(f *store.Factory) ServerAppOption {
	return func(cfg *serverAppConfig) error {
		cfg.storeFactory = f
		return nil
	}
}

// WithAuthMiddleware replaces the authentication middleware built from config
func WithAuthMiddleware(mw func(http.Handler) http.Handler) ServerAppOption {
	return func(cfg *serverAppConfig) error {
		cfg.authMiddleware = mw
		return nil
	}
}

// WithMeterProvider enables metrics
func WithMeterProvider(mp metric.MeterProvider) ServerAppOption {
	return func(cfg *serverAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider enables tracing
func WithTracerProvider(tp trace.TracerProvider) ServerAppOption {
	return func(cfg *serverAppConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}

func (b *serverAppConfig) tracer() trace.Tracer {
	if b.tracerProvider == nil {
		return nil
	}
	return b.tracerProvider.Tracer(instrumentationName)
}

func buildComponents(ctx context.Context, b *serverAppConfig) (*Components, error) {
	slog.Info("Initializing components", "storage", b.storeFactory.Type())

	entityMetrics, err := telemetry.NewEntityMetrics(b.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create entity metrics: %w", err)
	}
	cacheMetrics, err := telemetry.NewCacheMetrics(b.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache metrics: %w", err)
	}
	hookMetrics, err := telemetry.NewHookMetrics(b.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create hook metrics: %w", err)
	}

	tracer := b.tracer()
	bus := event.NewBus()
	gate := authz.NewDefaultGate()
	managerOpts := []manager.Option{manager.WithTracer(tracer), manager.WithMetrics(entityMetrics)}

	groups, err := manager.NewGroupManager(ctx,
		store.Open[model.Group](b.storeFactory, manager.GroupKind.Collection), bus, gate, managerOpts...)
	if err != nil {
		return nil, err
	}
	users, err := manager.NewUserManager(ctx,
		store.Open[model.User](b.storeFactory, manager.UserKind.Collection), bus, gate, managerOpts...)
	if err != nil {
		return nil, err
	}
	repositories, err := manager.NewRepositoryManager(ctx,
		store.Open[model.Repository](b.storeFactory, manager.RepositoryKind.Collection), bus, gate, managerOpts...)
	if err != nil {
		return nil, err
	}

	root := b.config.GetRepositoriesRoot()
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("failed to create repository root %s: %w", root, err)
	}
	gitProvider := git.NewProvider(root)
	if !b.config.Repositories.SkipInit {
		bus.Subscribe(event.TopicRepository, git.NewProvisioner(gitProvider))
	}
	backends := backend.NewRegistry(gitProvider)

	caches := cache.NewLRUManager(b.config.Cache, cacheMetrics)
	commands := command.NewServiceFactory(backends, caches,
		command.WithMetrics(cacheMetrics),
		command.WithTracer(tracer))
	bridge := hook.NewBridge(repositories,
		hook.WithMetrics(hookMetrics),
		hook.WithTracer(tracer))

	slog.Info("Components initialized",
		"groups", groups.Len(ctx),
		"users", users.Len(ctx),
		"repositories", repositories.Len(ctx),
		"backends", backends.Kinds())

	return &Components{
		Bus:          bus,
		Stores:       b.storeFactory,
		Groups:       groups,
		Users:        users,
		Repositories: repositories,
		Backends:     backends,
		Caches:       caches,
		Commands:     commands,
		Hooks:        bridge,
	}, nil
}

func buildHTTPServer(b *serverAppConfig, c *Components) (*http.Server, error) {
	middlewares := b.middlewares
	if middlewares == nil {
		middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// metrics and tracing go first so rejected requests are observed too
	if b.meterProvider != nil {
		metricsMiddleware, err := telemetry.MetricsMiddleware(b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create metrics middleware: %w", err)
		}
		middlewares = append([]func(http.Handler) http.Handler{metricsMiddleware}, middlewares...)
	}
	if b.tracerProvider != nil {
		middlewares = append([]func(http.Handler) http.Handler{telemetry.TracingMiddleware(b.tracerProvider)},
			middlewares...)
	}

	authorizer, err := authz.NewCedarAuthorizer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create authorizer: %w", err)
	}
	authzMiddleware := authz.Middleware(authorizer, b.config.Auth.GetScopeMapping())
	authMw := b.authMiddleware
	protect := func(next http.Handler) http.Handler {
		return authMw(authzMiddleware(next))
	}
	middlewares = append(middlewares, auth.WrapWithPublicPaths(protect, defaultPublicPaths))

	if b.hookToken.Token() == "" && !b.config.Hooks.AllowUnauthenticated {
		slog.Warn("No hook token configured, hook notifications will be rejected")
	}

	router := api.NewServer(
		v1.Dependencies{
			Groups:       c.Groups,
			Users:        c.Users,
			Repositories: c.Repositories,
			Commands:     c.Commands,
		},
		c.Hooks,
		api.WithMiddlewares(middlewares...),
		api.WithReadinessCheck(c.Stores.Ping),
		api.WithHookOptions(
			hooks.WithTokenSource(b.hookToken.Token, b.config.Hooks.GetHeader()),
			hooks.WithAllowUnauthenticated(b.config.Hooks.AllowUnauthenticated),
		),
	)

	slog.Info("HTTP server configured", "address", b.address)
	return &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}, nil
}
