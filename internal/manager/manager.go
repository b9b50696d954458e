// Package manager implements the security gated, persistent entity managers for
// groups, users and repositories.
package manager

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/jmgilman/go/errors"
	"go.opentelemetry.io/otel/trace"

	"github.com/scmgo/scm-server/internal/authz"
	"github.com/scmgo/scm-server/internal/event"
	"github.com/scmgo/scm-server/internal/model"
	"github.com/scmgo/scm-server/internal/otel"
	"github.com/scmgo/scm-server/internal/search"
	"github.com/scmgo/scm-server/internal/store"
	"github.com/scmgo/scm-server/internal/telemetry"
)

// Kind describes one managed collection.
type Kind struct {
	// Collection is the store name, e.g. "groups"
	Collection string

	// ResourceType is the authorization resource type, e.g. "Group"
	ResourceType string

	// Topic is where lifecycle events are published
	Topic event.Topic
}

// Manager is the authoritative CRUD and search manager of one entity
// collection backed by one store.
//
// Every entity crossing the manager boundary is deep copied. Mutations are
// serialized by the manager's lock and applied to a copy of the collection
// which only replaces the current one after the store accepted it.
type Manager[T any, P model.Object[T]] struct {
	kind       Kind
	store      store.Store[T]
	bus        *event.Bus
	gate       authz.Gate
	nativeType string
	tracer     trace.Tracer
	metrics    *telemetry.EntityMetrics
	clock      func() time.Time

	// prepare completes a created or modified entity before it is stored;
	// current is nil on create
	prepare func(next P, current *T)

	mu       sync.RWMutex
	snapshot *store.Snapshot[T]
}

// New loads the collection from st, persisting an empty one when nothing was
// stored yet.
func New[T any, P model.Object[T]](
	ctx context.Context,
	kind Kind,
	st store.Store[T],
	bus *event.Bus,
	gate authz.Gate,
	opts ...Option,
) (*Manager[T, P], error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if gate == nil {
		return nil, fmt.Errorf("gate cannot be nil")
	}

	o := options{nativeType: DefaultNativeType, clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	m := &Manager[T, P]{
		kind:       kind,
		store:      st,
		bus:        bus,
		gate:       gate,
		nativeType: o.nativeType,
		tracer:     o.tracer,
		metrics:    o.metrics,
		clock:      o.clock,
	}

	snapshot, err := st.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", kind.Collection, err)
	}
	if snapshot == nil {
		slog.InfoContext(ctx, "Creating empty collection", "collection", kind.Collection)
		snapshot = store.NewSnapshot[T]()
		snapshot.LastModified = m.now()
		if err := st.Set(ctx, snapshot); err != nil {
			return nil, fmt.Errorf("failed to initialize %s: %w", kind.Collection, err)
		}
	}
	m.snapshot = snapshot
	m.metrics.RecordEntitiesTotal(ctx, kind.Collection, len(snapshot.Entities))

	slog.InfoContext(ctx, "Loaded collection",
		"collection", kind.Collection,
		"entities", len(snapshot.Entities))
	return m, nil
}

// Kind returns the collection description.
func (m *Manager[T, P]) Kind() Kind {
	return m.kind
}

// NativeType returns the type assigned to created entities without one.
func (m *Manager[T, P]) NativeType() string {
	return m.nativeType
}

func (m *Manager[T, P]) now() time.Time {
	return m.clock().UTC().Truncate(time.Millisecond)
}

func (m *Manager[T, P]) startSpan(ctx context.Context, name string, entity string) (context.Context, trace.Span) {
	return otel.StartSpan(ctx, m.tracer, name, trace.WithAttributes(
		otel.AttrCollection.String(m.kind.Collection),
		otel.AttrEntityName.String(entity),
	))
}

func nameOf[T any, P model.Object[T]](entity P) string {
	if entity == nil {
		return ""
	}
	return entity.GetName()
}

func (m *Manager[T, P]) validate(entity P) error {
	if entity == nil || entity.GetName() == "" {
		return errors.Wrapf(ErrInvalidEntity, errors.CodeInvalidInput, "%s entity requires a name", m.kind.ResourceType)
	}
	return nil
}

func (m *Manager[T, P]) notFound(name string) error {
	return errors.Wrapf(ErrNotFound, errors.CodeNotFound, "%s %q not found", m.kind.ResourceType, name)
}

// Create stores a copy of entity. An empty type is replaced by the native type
// and the creation date is stamped; the stamps are copied back to entity once
// the collection is persisted.
func (m *Manager[T, P]) Create(ctx context.Context, caller authz.Caller, entity P) error {
	ctx, span := m.startSpan(ctx, "manager.Create", nameOf[T](entity))
	defer span.End()

	var stamped P
	err := m.mutate(ctx, caller, entity, event.KindCreate, func(entities map[string]*T, name string) error {
		if _, ok := entities[name]; ok {
			return errors.Wrapf(ErrAlreadyExists, errors.CodeAlreadyExists,
				"%s %q already exists", m.kind.ResourceType, name)
		}
		stamped = P(entity.Clone())
		if stamped.GetType() == "" {
			stamped.SetType(m.nativeType)
		}
		stamped.SetCreationDate(m.now())
		if m.prepare != nil {
			m.prepare(stamped, nil)
		}
		entities[name] = stamped.Clone()
		return nil
	}, func() { stamped.CopyTo(entity) })
	otel.RecordError(span, err)
	return err
}

// Modify replaces the stored entity with a copy of entity and stamps its
// last modification date.
func (m *Manager[T, P]) Modify(ctx context.Context, caller authz.Caller, entity P) error {
	ctx, span := m.startSpan(ctx, "manager.Modify", nameOf[T](entity))
	defer span.End()

	var stamped P
	err := m.mutate(ctx, caller, entity, event.KindModify, func(entities map[string]*T, name string) error {
		current, ok := entities[name]
		if !ok {
			return m.notFound(name)
		}
		stamped = P(entity.Clone())
		stamped.SetLastModified(m.now())
		if m.prepare != nil {
			m.prepare(stamped, current)
		}
		delete(entities, name)
		entities[name] = stamped.Clone()
		return nil
	}, func() { stamped.CopyTo(entity) })
	otel.RecordError(span, err)
	return err
}

// Delete removes the entity with the name of entity.
func (m *Manager[T, P]) Delete(ctx context.Context, caller authz.Caller, entity P) error {
	ctx, span := m.startSpan(ctx, "manager.Delete", nameOf[T](entity))
	defer span.End()

	err := m.mutate(ctx, caller, entity, event.KindDelete, func(entities map[string]*T, name string) error {
		if _, ok := entities[name]; !ok {
			return m.notFound(name)
		}
		delete(entities, name)
		return nil
	}, nil)
	otel.RecordError(span, err)
	return err
}

// mutate runs change against a copy of the collection under the write lock,
// persists the copy and swaps it in. committed runs only after a successful
// persist; the event is published after the lock is released.
func (m *Manager[T, P]) mutate(
	ctx context.Context,
	caller authz.Caller,
	entity P,
	kind event.Kind,
	change func(entities map[string]*T, name string) error,
	committed func(),
) error {
	if err := m.validate(entity); err != nil {
		return err
	}
	if err := m.gate.RequireAdmin(ctx, caller, m.kind.ResourceType); err != nil {
		return err
	}

	name := entity.GetName()
	count, err := m.commit(ctx, func(entities map[string]*T) error {
		return change(entities, name)
	})
	if err != nil {
		return err
	}
	if committed != nil {
		committed()
	}

	slog.DebugContext(ctx, "Entity changed",
		"collection", m.kind.Collection,
		"name", name,
		"kind", string(kind),
		"subject", caller.Subject)
	m.metrics.RecordEntitiesTotal(ctx, m.kind.Collection, count)
	m.bus.Publish(ctx, event.NewEntityEvent(m.kind.Topic, kind, entity))
	return nil
}

func (m *Manager[T, P]) commit(ctx context.Context, change func(entities map[string]*T) error) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := &store.Snapshot[T]{Entities: maps.Clone(m.snapshot.Entities)}
	if next.Entities == nil {
		next.Entities = make(map[string]*T)
	}
	if err := change(next.Entities); err != nil {
		return 0, err
	}

	next.LastModified = m.now()
	if !next.LastModified.After(m.snapshot.LastModified) {
		next.LastModified = m.snapshot.LastModified.Add(time.Millisecond)
	}

	if err := m.store.Set(ctx, next); err != nil {
		return 0, fmt.Errorf("failed to persist %s: %w", m.kind.Collection, err)
	}
	m.snapshot = next
	return len(next.Entities), nil
}

// Refresh overwrites the fields of entity with the stored values. Nothing is
// persisted and no event is published.
func (m *Manager[T, P]) Refresh(ctx context.Context, caller authz.Caller, entity P) error {
	if err := m.validate(entity); err != nil {
		return err
	}
	if err := m.gate.RequireAdmin(ctx, caller, m.kind.ResourceType); err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.snapshot.Entities[entity.GetName()]
	if !ok {
		return m.notFound(entity.GetName())
	}
	P(stored).CopyTo((*T)(entity))
	return nil
}

// Get returns a copy of the named entity.
func (m *Manager[T, P]) Get(_ context.Context, name string) (P, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored, ok := m.snapshot.Entities[name]
	if !ok {
		return nil, false
	}
	return P(P(stored).Clone()), true
}

// GetAll returns copies of all entities ordered by name. It requires admin.
func (m *Manager[T, P]) GetAll(ctx context.Context, caller authz.Caller, opts ...ListOption) ([]P, error) {
	return m.GetAllSorted(ctx, caller, byName[T, P], opts...)
}

// GetAllSorted returns copies of all entities ordered by compare. It requires admin.
func (m *Manager[T, P]) GetAllSorted(
	ctx context.Context,
	caller authz.Caller,
	compare func(a, b P) int,
	opts ...ListOption,
) ([]P, error) {
	ctx, span := m.startSpan(ctx, "manager.GetAll", "")
	defer span.End()

	var lo ListOptions
	for _, opt := range opts {
		if err := opt(&lo); err != nil {
			err = errors.Wrap(err, errors.CodeInvalidInput, "invalid list options")
			otel.RecordError(span, err)
			return nil, err
		}
	}
	if err := m.gate.RequireAdmin(ctx, caller, m.kind.ResourceType); err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	all := m.collect(func(P) bool { return true })
	if compare == nil {
		compare = byName[T, P]
	}
	slices.SortStableFunc(all, compare)

	from, to := lo.apply(len(all))
	result := all[from:to]
	span.SetAttributes(otel.AttrResultCount.Int(len(result)))
	return result, nil
}

// GetForMember returns copies of the entities referencing member, ordered by name.
func (m *Manager[T, P]) GetForMember(_ context.Context, member string) []P {
	result := m.collect(func(e P) bool { return e.HasMember(member) })
	slices.SortFunc(result, byName[T, P])
	return result
}

// Search returns copies of the entities whose name or description matches
// req, ordered by name.
func (m *Manager[T, P]) Search(ctx context.Context, req search.Request) []P {
	slog.DebugContext(ctx, "Searching entities", "collection", m.kind.Collection, "query", req.Query)

	all := m.collect(func(P) bool { return true })
	slices.SortFunc(all, byName[T, P])
	return search.Filter(req, all, func(e P) []string {
		return []string{e.GetName(), e.GetDescription()}
	})
}

// LastModified returns the collection wide modification time.
func (m *Manager[T, P]) LastModified(_ context.Context) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot.LastModified
}

// Len returns the number of entities.
func (m *Manager[T, P]) Len(_ context.Context) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snapshot.Entities)
}

// find returns a copy of the first entity accepted by match.
func (m *Manager[T, P]) find(match func(P) bool) (P, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, stored := range m.snapshot.Entities {
		if match(P(stored)) {
			return P(P(stored).Clone()), true
		}
	}
	return nil, false
}

func (m *Manager[T, P]) collect(match func(P) bool) []P {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]P, 0, len(m.snapshot.Entities))
	for _, stored := range m.snapshot.Entities {
		if match(P(stored)) {
			result = append(result, P(P(stored).Clone()))
		}
	}
	return result
}

func byName[T any, P model.Object[T]](a, b P) int {
	return cmp.Compare(a.GetName(), b.GetName())
}
