package git

import (
	"context"
	"path/filepath"
	"testing"

	gogit "github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scmgo/scm-server/internal/backend"
	"github.com/scmgo/scm-server/internal/event"
	"github.com/scmgo/scm-server/internal/model"
)

func TestProvisioner(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		ev       event.Event
		wantRepo string
	}{
		{
			name:     "created git repository",
			ev:       event.NewEntityEvent(event.TopicRepository, event.KindCreate, &model.Repository{Name: "core", Type: Kind}),
			wantRepo: "core",
		},
		{
			name: "modified repository",
			ev:   event.NewEntityEvent(event.TopicRepository, event.KindModify, &model.Repository{Name: "core", Type: Kind}),
		},
		{
			name: "other backend",
			ev:   event.NewEntityEvent(event.TopicRepository, event.KindCreate, &model.Repository{Name: "core", Type: "svn"}),
		},
		{
			name: "group event",
			ev:   event.NewEntityEvent(event.TopicGroup, event.KindCreate, &model.Group{Name: "core"}),
		},
		{
			name: "hook event",
			ev:   event.NewHookEvent(Kind, "core", "POST_RECEIVE", ""),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			p := NewProvisioner(NewProvider(root))
			require.NoError(t, p.Handle(context.Background(), tt.ev))

			_, err := gogit.PlainOpen(filepath.Join(root, "core"))
			if tt.wantRepo == "" {
				assert.ErrorIs(t, err, gogit.ErrRepositoryNotExists)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestProvisionerKeepsExistingStorage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := NewProvisioner(f.provider)
	ev := event.NewEntityEvent(event.TopicRepository, event.KindCreate, f.repo)
	require.NoError(t, p.Handle(context.Background(), ev))

	changesets, err := f.provider.GetChangesets(context.Background(), f.repo, backend.LogRequest{})
	require.NoError(t, err)
	assert.Equal(t, len(f.commits), changesets.Total)
}

func TestProvisionerViaBus(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	bus := event.NewBus()
	bus.Subscribe(event.TopicRepository, NewProvisioner(NewProvider(root)))

	bus.Publish(context.Background(),
		event.NewEntityEvent(event.TopicRepository, event.KindCreate, &model.Repository{Name: "tools", Type: Kind}))

	_, err := gogit.PlainOpen(filepath.Join(root, "tools"))
	require.NoError(t, err)
	assert.Zero(t, bus.Stats().Failed)
}

func TestProvisionerInvalidName(t *testing.T) {
	t.Parallel()

	p := NewProvisioner(NewProvider(t.TempDir()))
	ev := event.NewEntityEvent(event.TopicRepository, event.KindCreate, &model.Repository{Name: "../escape", Type: Kind})
	require.Error(t, p.Handle(context.Background(), ev))
}
