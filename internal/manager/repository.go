package manager

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmgilman/go/errors"

	"github.com/scmgo/scm-server/internal/authz"
	"github.com/scmgo/scm-server/internal/event"
	"github.com/scmgo/scm-server/internal/model"
	"github.com/scmgo/scm-server/internal/store"
)

// DefaultRepositoryType is the backend kind of repositories created without a type.
const DefaultRepositoryType = "git"

// RepositoryKind describes the repository collection.
var RepositoryKind = Kind{Collection: "repositories", ResourceType: "Repository", Topic: event.TopicRepository}

// RepositoryManager manages repositories and dispatches their hook events.
type RepositoryManager struct {
	*Manager[model.Repository, *model.Repository]
}

// NewRepositoryManager loads the repository collection from st. Unless
// overridden, created repositories default to the git backend.
func NewRepositoryManager(
	ctx context.Context,
	st store.Store[model.Repository],
	bus *event.Bus,
	gate authz.Gate,
	opts ...Option,
) (*RepositoryManager, error) {
	opts = append([]Option{WithNativeType(DefaultRepositoryType)}, opts...)
	m, err := New[model.Repository](ctx, RepositoryKind, st, bus, gate, opts...)
	if err != nil {
		return nil, err
	}
	m.prepare = completeRepository
	return &RepositoryManager{Manager: m}, nil
}

// completeRepository assigns a new id to created repositories without one and
// keeps the stored id when a modification carries none.
func completeRepository(next *model.Repository, current *model.Repository) {
	if next.ID != "" {
		return
	}
	if current != nil {
		next.ID = current.ID
		return
	}
	next.ID = uuid.NewString()
}

// GetByKind returns a copy of the named repository when it is hosted by the
// backend kind.
func (r *RepositoryManager) GetByKind(ctx context.Context, kind, name string) (*model.Repository, bool) {
	repo, ok := r.Get(ctx, name)
	if !ok || repo.Type != kind {
		return nil, false
	}
	return repo, true
}

// GetByID returns a copy of the repository with the given id.
func (r *RepositoryManager) GetByID(_ context.Context, id string) (*model.Repository, bool) {
	if id == "" {
		return nil, false
	}
	return r.find(func(repo *model.Repository) bool { return repo.ID == id })
}

// FireHookEvent publishes ev for the repository of kind and name.
func (r *RepositoryManager) FireHookEvent(ctx context.Context, kind, name string, ev *event.HookEvent) error {
	repo, ok := r.GetByKind(ctx, kind, name)
	if !ok {
		return errors.Wrapf(ErrRepositoryNotFound, errors.CodeNotFound,
			"no %s repository named %q", kind, name)
	}

	ev.RepositoryID = repo.ID
	slog.DebugContext(ctx, "Firing hook event",
		"repository", repo.Name,
		"backend", kind,
		"change_type", ev.ChangeType,
		"node", ev.Node)
	r.bus.Publish(ctx, ev)
	return nil
}
