package manager

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jmerrors "github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scmgo/scm-server/internal/authz"
	"github.com/scmgo/scm-server/internal/event"
	"github.com/scmgo/scm-server/internal/model"
	"github.com/scmgo/scm-server/internal/search"
	"github.com/scmgo/scm-server/internal/store"
)

var (
	admin  = authz.Caller{Subject: "root", GrantedActions: []string{authz.ActionAdmin}}
	reader = authz.Caller{Subject: "alice", GrantedActions: []string{authz.ActionRead}}
)

// flakyStore fails every Set while failing is true.
type flakyStore[T any] struct {
	store.Store[T]
	failing atomic.Bool
}

func (f *flakyStore[T]) Set(ctx context.Context, s *store.Snapshot[T]) error {
	if f.failing.Load() {
		return stderrors.New("disk full")
	}
	return f.Store.Set(ctx, s)
}

type eventLog struct {
	mu     sync.Mutex
	events []*event.EntityEvent
}

func (l *eventLog) all() []*event.EntityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*event.EntityEvent(nil), l.events...)
}

func subscribe(bus *event.Bus, topic event.Topic) *eventLog {
	l := &eventLog{}
	bus.SubscribeFunc(topic, func(_ context.Context, ev event.Event) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.events = append(l.events, ev.(*event.EntityEvent))
		return nil
	})
	return l
}

func newGroupManager(t *testing.T, opts ...Option) (*GroupManager, *eventLog, *flakyStore[model.Group]) {
	t.Helper()
	st := &flakyStore[model.Group]{Store: store.NewMemoryStore[model.Group]()}
	bus := event.NewBus()
	events := subscribe(bus, event.TopicGroup)
	m, err := NewGroupManager(context.Background(), st, bus, authz.NewDefaultGate(), opts...)
	require.NoError(t, err)
	return m, events, st
}

func TestCreateThenGet(t *testing.T) {
	t.Parallel()

	m, events, _ := newGroupManager(t)
	ctx := context.Background()

	group := &model.Group{Name: "developers", Description: "Developers", Members: []string{"alice", "bob"}}
	require.NoError(t, m.Create(ctx, admin, group))
	require.NotNil(t, group.CreationDate)
	assert.Equal(t, DefaultNativeType, group.Type)

	got, ok := m.Get(ctx, "developers")
	require.True(t, ok)
	assert.Equal(t, group, got)
	assert.NotSame(t, group, got)
	assert.Nil(t, got.LastModified)

	// returned copies are detached from the stored entity
	got.Members[0] = "mallory"
	got.AddMember("eve")
	again, _ := m.Get(ctx, "developers")
	assert.Equal(t, []string{"alice", "bob"}, again.Members)

	// so is the object passed to Create
	group.Members[1] = "trudy"
	again, _ = m.Get(ctx, "developers")
	assert.Equal(t, []string{"alice", "bob"}, again.Members)

	recorded := events.all()
	require.Len(t, recorded, 1)
	assert.Equal(t, event.KindCreate, recorded[0].Kind)
	assert.Same(t, group, recorded[0].Entity)
}

func TestCreateDuplicateName(t *testing.T) {
	t.Parallel()

	m, events, _ := newGroupManager(t)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, admin, &model.Group{Name: "developers", Members: []string{"alice", "bob"}}))
	before := m.LastModified(ctx)

	err := m.Create(ctx, admin, &model.Group{Name: "developers"})
	require.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, jmerrors.CodeAlreadyExists, jmerrors.GetCode(err))

	assert.Equal(t, 1, m.Len(ctx))
	assert.Equal(t, before, m.LastModified(ctx))
	assert.Len(t, events.all(), 1)

	got, ok := m.Get(ctx, "developers")
	require.True(t, ok)
	assert.Equal(t, []string{"alice", "bob"}, got.Members)
}

func TestCreateKeepsExplicitType(t *testing.T) {
	t.Parallel()

	m, _, _ := newGroupManager(t, WithNativeType("file"))
	ctx := context.Background()

	native := &model.Group{Name: "a"}
	require.NoError(t, m.Create(ctx, admin, native))
	assert.Equal(t, "file", native.Type)

	external := &model.Group{Name: "b", Type: "ldap"}
	require.NoError(t, m.Create(ctx, admin, external))
	got, _ := m.Get(ctx, "b")
	assert.Equal(t, "ldap", got.Type)
}

func TestInvalidEntity(t *testing.T) {
	t.Parallel()

	m, _, _ := newGroupManager(t)
	ctx := context.Background()

	require.ErrorIs(t, m.Create(ctx, admin, nil), ErrInvalidEntity)
	err := m.Create(ctx, admin, &model.Group{})
	require.ErrorIs(t, err, ErrInvalidEntity)
	assert.Equal(t, jmerrors.CodeInvalidInput, jmerrors.GetCode(err))
	assert.Zero(t, m.Len(ctx))
}

func TestModifyAndDeleteMissing(t *testing.T) {
	t.Parallel()

	m, events, _ := newGroupManager(t)
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, admin, &model.Group{Name: "existing"}))
	before := m.LastModified(ctx)

	tests := []struct {
		name string
		op   func(context.Context, authz.Caller, *model.Group) error
	}{
		{"modify", m.Modify},
		{"delete", m.Delete},
		{"refresh", m.Refresh},
	}
	for _, tt := range tests {
		err := tt.op(ctx, admin, &model.Group{Name: "missing"})
		require.ErrorIs(t, err, ErrNotFound, tt.name)
		assert.Equal(t, jmerrors.CodeNotFound, jmerrors.GetCode(err), tt.name)
	}

	assert.Equal(t, 1, m.Len(ctx))
	assert.Equal(t, before, m.LastModified(ctx))
	assert.Len(t, events.all(), 1)
}

func TestModify(t *testing.T) {
	t.Parallel()

	m, events, _ := newGroupManager(t)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, admin, &model.Group{Name: "ops", Members: []string{"alice"}}))
	created := m.LastModified(ctx)

	update := &model.Group{Name: "ops", Description: "Operations", Members: []string{"carol"}}
	require.NoError(t, m.Modify(ctx, admin, update))
	require.NotNil(t, update.LastModified)
	assert.True(t, m.LastModified(ctx).After(created))

	got, _ := m.Get(ctx, "ops")
	assert.Equal(t, "Operations", got.Description)
	assert.Equal(t, []string{"carol"}, got.Members)
	assert.Nil(t, got.CreationDate, "modify replaces the stored entity")

	recorded := events.all()
	require.Len(t, recorded, 2)
	assert.Equal(t, event.KindModify, recorded[1].Kind)
	assert.Same(t, update, recorded[1].Entity)
}

func TestLastModifiedStrictlyIncreases(t *testing.T) {
	t.Parallel()

	frozen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m, _, _ := newGroupManager(t, WithClock(func() time.Time { return frozen }))
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, admin, &model.Group{Name: "g"}))
	previous := m.LastModified(ctx)
	for i := range 5 {
		require.NoError(t, m.Modify(ctx, admin, &model.Group{Name: "g", Description: fmt.Sprint(i)}))
		current := m.LastModified(ctx)
		assert.True(t, current.After(previous), "iteration %d", i)
		previous = current
	}

	// reads do not touch the timestamp
	_, _ = m.Get(ctx, "g")
	_, err := m.GetAll(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, previous, m.LastModified(ctx))
}

func TestDelete(t *testing.T) {
	t.Parallel()

	m, events, _ := newGroupManager(t)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, admin, &model.Group{Name: "tmp"}))
	require.NoError(t, m.Delete(ctx, admin, &model.Group{Name: "tmp"}))

	_, ok := m.Get(ctx, "tmp")
	assert.False(t, ok)
	assert.Zero(t, m.Len(ctx))

	recorded := events.all()
	require.Len(t, recorded, 2)
	assert.Equal(t, event.KindDelete, recorded[1].Kind)
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	m, events, _ := newGroupManager(t)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, admin, &model.Group{Name: "web", Description: "stored", Members: []string{"alice"}}))
	before := m.LastModified(ctx)

	local := &model.Group{Name: "web", Description: "local edit", Members: []string{"zed"}}
	require.NoError(t, m.Refresh(ctx, admin, local))
	assert.Equal(t, "stored", local.Description)
	assert.Equal(t, []string{"alice"}, local.Members)

	local.Members[0] = "changed"
	got, _ := m.Get(ctx, "web")
	assert.Equal(t, []string{"alice"}, got.Members)

	assert.Equal(t, before, m.LastModified(ctx))
	assert.Len(t, events.all(), 1)
}

func TestGateRunsBeforeState(t *testing.T) {
	t.Parallel()

	m, events, _ := newGroupManager(t)
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, admin, &model.Group{Name: "g"}))
	before := m.LastModified(ctx)

	tests := []struct {
		name     string
		caller   authz.Caller
		wantCode jmerrors.ErrorCode
	}{
		{"authenticated reader", reader, jmerrors.CodeForbidden},
		{"anonymous", authz.Anonymous(authz.ActionRead), jmerrors.CodeUnauthorized},
	}
	for _, tt := range tests {
		entity := &model.Group{Name: "new"}
		for _, err := range []error{
			m.Create(ctx, tt.caller, entity),
			m.Modify(ctx, tt.caller, &model.Group{Name: "g"}),
			m.Delete(ctx, tt.caller, &model.Group{Name: "g"}),
			m.Refresh(ctx, tt.caller, &model.Group{Name: "g"}),
		} {
			require.ErrorIs(t, err, authz.ErrUnauthorized, tt.name)
			assert.Equal(t, tt.wantCode, jmerrors.GetCode(err), tt.name)
		}
		_, err := m.GetAll(ctx, tt.caller)
		require.ErrorIs(t, err, authz.ErrUnauthorized, tt.name)

		assert.Nil(t, entity.CreationDate, "no side effect on the rejected entity")
		assert.Empty(t, entity.Type)
	}

	assert.Equal(t, 1, m.Len(ctx))
	assert.Equal(t, before, m.LastModified(ctx))
	assert.Len(t, events.all(), 1)

	// ungated reads
	_, ok := m.Get(ctx, "g")
	assert.True(t, ok)
	assert.Len(t, m.Search(ctx, search.NewRequest("g")), 1)
}

func TestPersistenceFailureLeavesStateUnchanged(t *testing.T) {
	t.Parallel()

	m, events, st := newGroupManager(t)
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, admin, &model.Group{Name: "kept", Description: "v1"}))
	before := m.LastModified(ctx)

	st.failing.Store(true)
	lost := &model.Group{Name: "lost"}
	require.Error(t, m.Create(ctx, admin, lost))
	assert.Empty(t, lost.Type, "failed create leaves the entity unstamped")
	assert.Nil(t, lost.CreationDate)
	changed := &model.Group{Name: "kept", Description: "v2"}
	require.Error(t, m.Modify(ctx, admin, changed))
	assert.Nil(t, changed.LastModified)
	require.Error(t, m.Delete(ctx, admin, &model.Group{Name: "kept"}))

	assert.Equal(t, 1, m.Len(ctx))
	got, ok := m.Get(ctx, "kept")
	require.True(t, ok)
	assert.Equal(t, "v1", got.Description)
	assert.Equal(t, before, m.LastModified(ctx))
	assert.Len(t, events.all(), 1)

	st.failing.Store(false)
	require.NoError(t, m.Create(ctx, admin, &model.Group{Name: "lost"}))
	assert.Equal(t, 2, m.Len(ctx))
}

func TestGetAllWindow(t *testing.T) {
	t.Parallel()

	m, _, _ := newGroupManager(t)
	ctx := context.Background()
	for _, name := range []string{"e", "c", "a", "d", "b"} {
		require.NoError(t, m.Create(ctx, admin, &model.Group{Name: name}))
	}

	names := func(groups []*model.Group) []string {
		out := make([]string, len(groups))
		for i, g := range groups {
			out[i] = g.Name
		}
		return out
	}

	tests := []struct {
		name  string
		start int
		limit int
		want  []string
	}{
		{"first page", 0, 2, []string{"a", "b"}},
		{"middle page", 2, 2, []string{"c", "d"}},
		{"short last page", 4, 2, []string{"e"}},
		{"past the end", 7, 2, []string{}},
		{"no limit", 1, 0, []string{"b", "c", "d", "e"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := m.GetAll(ctx, admin, WithWindow(tt.start, tt.limit))
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))
		})
	}

	t.Run("comparator order", func(t *testing.T) {
		t.Parallel()

		desc := func(a, b *model.Group) int { return -byName(a, b) }
		got, err := m.GetAllSorted(ctx, admin, desc, WithWindow(1, 3))
		require.NoError(t, err)
		assert.Equal(t, []string{"d", "c", "b"}, names(got))
	})

	t.Run("negative start", func(t *testing.T) {
		t.Parallel()

		_, err := m.GetAll(ctx, admin, WithWindow(-1, 2))
		require.ErrorIs(t, err, ErrInvalidWindow)
	})
}

func TestGetGroupsForMember(t *testing.T) {
	t.Parallel()

	m, _, _ := newGroupManager(t)
	ctx := context.Background()
	fixtures := []*model.Group{
		{Name: "dev", Members: []string{"alice", "bob"}},
		{Name: "ops", Members: []string{"bob", "carol"}},
		{Name: "qa", Members: []string{"dave"}},
		{Name: "empty"},
	}
	for _, g := range fixtures {
		require.NoError(t, m.Create(ctx, admin, g))
	}

	tests := map[string][]string{
		"alice":   {"dev"},
		"bob":     {"dev", "ops"},
		"carol":   {"ops"},
		"dave":    {"qa"},
		"mallory": {},
	}
	for member, want := range tests {
		got := m.GetGroupsForMember(ctx, member)
		names := make([]string, 0, len(got))
		for _, g := range got {
			names = append(names, g.Name)
		}
		assert.Equal(t, want, names, member)
	}
}

func TestSearch(t *testing.T) {
	t.Parallel()

	m, _, _ := newGroupManager(t)
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, admin, &model.Group{Name: "developers", Description: "Core team"}))
	require.NoError(t, m.Create(ctx, admin, &model.Group{Name: "ops", Description: "Operations and DEVops"}))
	require.NoError(t, m.Create(ctx, admin, &model.Group{Name: "qa"}))

	got := m.Search(ctx, search.NewRequest("dev"))
	require.Len(t, got, 2)
	assert.Equal(t, "developers", got[0].Name)
	assert.Equal(t, "ops", got[1].Name)

	assert.Len(t, m.Search(ctx, search.NewRequest("CORE")), 1)
	assert.Empty(t, m.Search(ctx, search.Request{Query: "CORE"}))
}

func TestConcurrentCreateDistinctNames(t *testing.T) {
	t.Parallel()

	m, events, _ := newGroupManager(t)
	ctx := context.Background()
	const n = 64

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.Create(ctx, admin, &model.Group{Name: fmt.Sprintf("group-%02d", i)})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, n, m.Len(ctx))
	assert.Len(t, events.all(), n)
}

func TestConcurrentCreateSameName(t *testing.T) {
	t.Parallel()

	m, _, _ := newGroupManager(t)
	ctx := context.Background()
	const n = 64

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		conflicts atomic.Int32
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.Create(ctx, admin, &model.Group{Name: "contended"})
			switch {
			case err == nil:
				succeeded.Add(1)
			case stderrors.Is(err, ErrAlreadyExists):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(n-1), conflicts.Load())
	assert.Equal(t, 1, m.Len(ctx))
}

func TestConcurrentReadsDuringWrites(t *testing.T) {
	t.Parallel()

	m, _, _ := newGroupManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Create(ctx, admin, &model.Group{Name: fmt.Sprint(i), Members: []string{"x"}}))
		}()
		go func() {
			defer wg.Done()
			for _, g := range m.GetGroupsForMember(ctx, "x") {
				assert.Equal(t, []string{"x"}, g.Members)
			}
			all, err := m.GetAll(ctx, admin)
			assert.NoError(t, err)
			assert.LessOrEqual(t, len(all), 32)
		}()
	}
	wg.Wait()
	assert.Equal(t, 32, m.Len(ctx))
}

func TestReloadFromStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := store.NewFileStore[model.Group](t.TempDir(), "groups")

	first, err := NewGroupManager(ctx, st, nil, authz.NewDefaultGate())
	require.NoError(t, err)
	require.NoError(t, first.Create(ctx, admin, &model.Group{Name: "developers", Members: []string{"alice", "bob"}}))
	lastModified := first.LastModified(ctx)

	second, err := NewGroupManager(ctx, st, nil, authz.NewDefaultGate())
	require.NoError(t, err)
	got, ok := second.Get(ctx, "developers")
	require.True(t, ok)
	assert.Equal(t, []string{"alice", "bob"}, got.Members)
	assert.True(t, lastModified.Equal(second.LastModified(ctx)))
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := NewGroupManager(context.Background(), nil, nil, authz.NewDefaultGate())
	require.Error(t, err)
	_, err = NewGroupManager(context.Background(), store.NewMemoryStore[model.Group](), nil, nil)
	require.Error(t, err)
}
