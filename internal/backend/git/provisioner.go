package git

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/scmgo/scm-server/internal/event"
	"github.com/scmgo/scm-server/internal/model"
)

// Provisioner initializes storage for git repositories as they are created.
// Subscribe it to event.TopicRepository.
type Provisioner struct {
	provider *Provider
}

var _ event.Handler = (*Provisioner)(nil)

// NewProvisioner creates a provisioner initializing repositories with p.
func NewProvisioner(p *Provider) *Provisioner {
	return &Provisioner{provider: p}
}

// Handle initializes a non-bare repository for created git repositories
// that have no storage yet.
func (p *Provisioner) Handle(ctx context.Context, ev event.Event) error {
	ee, ok := ev.(*event.EntityEvent)
	if !ok || ee.Kind != event.KindCreate {
		return nil
	}
	repo, ok := ee.Entity.(*model.Repository)
	if !ok || repo.Type != Kind {
		return nil
	}

	dir, err := p.provider.Directory(repo.Name)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dir); err == nil {
		slog.DebugContext(ctx, "Repository storage already exists", "repository", repo.Name)
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return p.provider.Init(ctx, repo, false)
}
