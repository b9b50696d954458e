package v1

import (
	"context"
	"errors"
	"net/http"

	jmerrors "github.com/jmgilman/go/errors"

	"github.com/scmgo/scm-server/internal/api/common"
	"github.com/scmgo/scm-server/internal/backend"
	"github.com/scmgo/scm-server/internal/command"
	"github.com/scmgo/scm-server/internal/model"
)

// RepositoryLookup resolves repositories by name.
type RepositoryLookup interface {
	Get(ctx context.Context, name string) (*model.Repository, bool)
}

// AddRequest is the body of POST /repositories/{name}/add.
type AddRequest struct {
	Paths []string `json:"paths"`
}

type commandRoutes struct {
	repositories RepositoryLookup
	services     *command.ServiceFactory
}

// service resolves the repository named in the path.
func (cr *commandRoutes) service(r *http.Request) (*command.RepositoryService, error) {
	name, err := common.PathParam(r, "name")
	if err != nil {
		return nil, err
	}
	repo, ok := cr.repositories.Get(r.Context(), name)
	if !ok {
		return nil, jmerrors.New(jmerrors.CodeNotFound, "Repository "+name+" not found")
	}
	return cr.services.Create(repo)
}

// backendError gives backend failures a status.
func backendError(err error) error {
	if errors.Is(err, backend.ErrRepositoryNotAvailable) {
		return jmerrors.Wrap(err, jmerrors.CodeNotFound, "repository storage is not available")
	}
	return err
}

func (cr *commandRoutes) tags(w http.ResponseWriter, r *http.Request) {
	nocache, err := common.QueryBool(r, "nocache")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	svc, err := cr.service(r)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	cmd, err := svc.GetTagsCommand()
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	tags, err := cmd.SetDisableCache(nocache).GetTags(r.Context())
	if err != nil {
		common.WriteError(w, r, backendError(err))
		return
	}
	common.WriteJSONResponse(w, tags, http.StatusOK)
}

func (cr *commandRoutes) branches(w http.ResponseWriter, r *http.Request) {
	nocache, err := common.QueryBool(r, "nocache")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	svc, err := cr.service(r)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	cmd, err := svc.GetBranchesCommand()
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	branches, err := cmd.SetDisableCache(nocache).GetBranches(r.Context())
	if err != nil {
		common.WriteError(w, r, backendError(err))
		return
	}
	common.WriteJSONResponse(w, branches, http.StatusOK)
}

func (cr *commandRoutes) changesets(w http.ResponseWriter, r *http.Request) {
	nocache, err := common.QueryBool(r, "nocache")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	start, err := common.QueryInt(r, "start")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	limit, err := common.QueryInt(r, "limit")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	svc, err := cr.service(r)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	cmd, err := svc.GetLogCommand()
	if err != nil {
		common.WriteError(w, r, err)
		return
	}

	query := r.URL.Query()
	result, err := cmd.SetDisableCache(nocache).
		SetBranch(query.Get("branch")).
		SetPath(query.Get("path")).
		SetStartChangeset(query.Get("startChangeset")).
		SetEndChangeset(query.Get("endChangeset")).
		SetPagingStart(start).
		SetPagingLimit(limit).
		GetChangesets(r.Context())
	if err != nil {
		common.WriteError(w, r, backendError(err))
		return
	}
	common.WriteJSONResponse(w, result, http.StatusOK)
}

func (cr *commandRoutes) add(w http.ResponseWriter, r *http.Request) {
	var req AddRequest
	if err := common.DecodeJSON(w, r, &req); err != nil {
		common.WriteError(w, r, err)
		return
	}
	svc, err := cr.service(r)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	if err := svc.Add(r.Context(), req.Paths...); err != nil {
		common.WriteError(w, r, backendError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
