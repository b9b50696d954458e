// Package v1 serves the entity and repository command API under /api/v1.
package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scmgo/scm-server/internal/command"
	"github.com/scmgo/scm-server/internal/manager"
	"github.com/scmgo/scm-server/internal/model"
)

// Dependencies are the components behind the v1 API.
type Dependencies struct {
	Groups       *manager.GroupManager
	Users        *manager.UserManager
	Repositories *manager.RepositoryManager
	Commands     *command.ServiceFactory
}

// Router creates the v1 router.
func Router(deps Dependencies) http.Handler {
	commands := &commandRoutes{repositories: deps.Repositories, services: deps.Commands}

	r := chi.NewRouter()
	r.Mount("/groups", entityRouter[model.Group, *model.Group](deps.Groups, "Group", nil))
	r.Mount("/users", entityRouter[model.User, *model.User](deps.Users, "User", nil))
	r.Mount("/repositories", entityRouter[model.Repository, *model.Repository](deps.Repositories, "Repository",
		func(r chi.Router) {
			r.Get("/{name}/tags", commands.tags)
			r.Get("/{name}/branches", commands.branches)
			r.Get("/{name}/changesets", commands.changesets)
			r.Post("/{name}/add", commands.add)
		}))
	return r
}
