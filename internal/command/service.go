// Package command decouples callers from repository backends: it resolves the
// backend of a repository and memoizes expensive backend calls.
package command

import (
	"context"
	"fmt"

	"github.com/jmgilman/go/errors"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/scmgo/scm-server/internal/backend"
	"github.com/scmgo/scm-server/internal/cache"
	"github.com/scmgo/scm-server/internal/model"
	"github.com/scmgo/scm-server/internal/telemetry"
)

// ServiceFactory creates repository services.
type ServiceFactory struct {
	registry *backend.Registry
	caches   cache.Manager
	metrics  *telemetry.CacheMetrics
	tracer   trace.Tracer
	loads    *singleflight.Group
}

// FactoryOption configures a ServiceFactory
type FactoryOption func(*ServiceFactory)

// WithMetrics records cache bypasses; nil disables them
func WithMetrics(m *telemetry.CacheMetrics) FactoryOption {
	return func(f *ServiceFactory) {
		f.metrics = m
	}
}

// WithTracer sets the tracer used for command spans
func WithTracer(tracer trace.Tracer) FactoryOption {
	return func(f *ServiceFactory) {
		f.tracer = tracer
	}
}

// NewServiceFactory creates a factory resolving backends from registry.
func NewServiceFactory(registry *backend.Registry, caches cache.Manager, opts ...FactoryOption) *ServiceFactory {
	f := &ServiceFactory{registry: registry, caches: caches, loads: &singleflight.Group{}}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create returns the service of repo. The repository is copied.
func (f *ServiceFactory) Create(repo *model.Repository) (*RepositoryService, error) {
	if repo == nil {
		return nil, errors.New(errors.CodeInvalidInput, "repository is required")
	}
	provider, ok := f.registry.Get(repo.Type)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownRepositoryType, errors.CodeNotImplemented,
			"no backend for repository type %q", repo.Type)
	}
	return &RepositoryService{
		repo:     repo.Clone(),
		provider: provider,
		caches:   f.caches,
		metrics:  f.metrics,
		tracer:   f.tracer,
		loads:    f.loads,
	}, nil
}

// RepositoryService gives access to the commands of one repository.
type RepositoryService struct {
	repo     *model.Repository
	provider backend.Provider
	caches   cache.Manager
	metrics  *telemetry.CacheMetrics
	tracer   trace.Tracer
	loads    *singleflight.Group
}

// Repository returns the repository served.
func (s *RepositoryService) Repository() *model.Repository {
	return s.repo
}

func (s *RepositoryService) memo(cacheName string) memo {
	return memo{
		repo:      s.repo,
		cache:     s.caches.GetCache(cacheName),
		cacheName: cacheName,
		metrics:   s.metrics,
		tracer:    s.tracer,
		loads:     s.loads,
	}
}

func (s *RepositoryService) notSupported(command string) error {
	return errors.Wrapf(ErrCommandNotSupported, errors.CodeNotImplemented,
		"%s backend does not support the %s command", s.provider.Kind(), command)
}

// GetTagsCommand returns a new tags builder.
func (s *RepositoryService) GetTagsCommand() (*TagsCommandBuilder, error) {
	cmd, ok := s.provider.(backend.TagsCommand)
	if !ok {
		return nil, s.notSupported("tags")
	}
	return &TagsCommandBuilder{memo: s.memo(TagsCacheName), command: cmd}, nil
}

// GetBranchesCommand returns a new branches builder.
func (s *RepositoryService) GetBranchesCommand() (*BranchesCommandBuilder, error) {
	cmd, ok := s.provider.(backend.BranchesCommand)
	if !ok {
		return nil, s.notSupported("branches")
	}
	return &BranchesCommandBuilder{memo: s.memo(BranchesCacheName), command: cmd}, nil
}

// GetLogCommand returns a new log builder.
func (s *RepositoryService) GetLogCommand() (*LogCommandBuilder, error) {
	cmd, ok := s.provider.(backend.LogCommand)
	if !ok {
		return nil, s.notSupported("log")
	}
	return &LogCommandBuilder{memo: s.memo(LogCacheName), command: cmd}, nil
}

// Add stages paths; it is never cached.
func (s *RepositoryService) Add(ctx context.Context, paths ...string) error {
	cmd, ok := s.provider.(backend.AddCommand)
	if !ok {
		return s.notSupported("add")
	}
	if err := cmd.Add(ctx, s.repo, paths...); err != nil {
		return fmt.Errorf("failed to add paths to %s: %w", s.repo.Name, err)
	}
	return nil
}
