package v1

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jmgilman/go/errors"

	"github.com/scmgo/scm-server/internal/api/common"
	"github.com/scmgo/scm-server/internal/authz"
	"github.com/scmgo/scm-server/internal/manager"
	"github.com/scmgo/scm-server/internal/model"
	"github.com/scmgo/scm-server/internal/search"
)

// EntityManager is the part of a manager the entity routes use.
type EntityManager[T any, P model.Object[T]] interface {
	Create(ctx context.Context, caller authz.Caller, entity P) error
	Modify(ctx context.Context, caller authz.Caller, entity P) error
	Delete(ctx context.Context, caller authz.Caller, entity P) error
	Get(ctx context.Context, name string) (P, bool)
	GetAll(ctx context.Context, caller authz.Caller, opts ...manager.ListOption) ([]P, error)
	GetForMember(ctx context.Context, member string) []P
	Search(ctx context.Context, req search.Request) []P
}

// ListResponse is the body of collection listings.
type ListResponse[P any] struct {
	Items []P `json:"items"`
	Count int `json:"count"`
}

type entityRoutes[T any, P model.Object[T]] struct {
	manager EntityManager[T, P]
	kind    string
}

// entityRouter serves CRUD for one collection. extra registers additional
// per-entity routes.
func entityRouter[T any, P model.Object[T]](m EntityManager[T, P], kind string, extra func(chi.Router)) http.Handler {
	routes := &entityRoutes[T, P]{manager: m, kind: kind}

	r := chi.NewRouter()
	r.Get("/", routes.list)
	r.Post("/", routes.create)
	r.Get("/{name}", routes.get)
	r.Put("/{name}", routes.modify)
	r.Delete("/{name}", routes.delete)
	if extra != nil {
		extra(r)
	}
	return r
}

func callerFrom(r *http.Request) (authz.Caller, error) {
	caller, ok := authz.CallerFromContext(r.Context())
	if !ok {
		return authz.Caller{}, errors.New(errors.CodeUnauthorized, "authentication required")
	}
	return caller, nil
}

// list handles GET /. With ?member= it returns the entities referencing the
// member, with ?q= the entities matching the query, otherwise the whole
// collection, which requires admin. start and limit window the result.
func (er *entityRoutes[T, P]) list(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
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

	query := r.URL.Query()
	var items []P
	switch {
	case query.Get("member") != "":
		items = er.manager.GetForMember(r.Context(), query.Get("member"))
		items = window(items, start, limit)
	case query.Get("q") != "":
		req := search.NewRequest(query.Get("q"))
		req.StartWith = start
		req.MaxResults = limit
		items = er.manager.Search(r.Context(), req)
	default:
		items, err = er.manager.GetAll(r.Context(), caller, manager.WithWindow(start, limit))
		if err != nil {
			common.WriteError(w, r, err)
			return
		}
	}

	if items == nil {
		items = []P{}
	}
	common.WriteJSONResponse(w, ListResponse[P]{Items: items, Count: len(items)}, http.StatusOK)
}

func (er *entityRoutes[T, P]) get(w http.ResponseWriter, r *http.Request) {
	name, err := common.PathParam(r, "name")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	entity, ok := er.manager.Get(r.Context(), name)
	if !ok {
		common.WriteErrorResponse(w, errors.CodeNotFound, er.kind+" "+name+" not found")
		return
	}
	common.WriteJSONResponse(w, entity, http.StatusOK)
}

func (er *entityRoutes[T, P]) create(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	entity := P(new(T))
	if err := common.DecodeJSON(w, r, entity); err != nil {
		common.WriteError(w, r, err)
		return
	}
	if err := er.manager.Create(r.Context(), caller, entity); err != nil {
		common.WriteError(w, r, err)
		return
	}
	w.Header().Set("Location", r.URL.Path+"/"+entity.GetName())
	common.WriteJSONResponse(w, entity, http.StatusCreated)
}

func (er *entityRoutes[T, P]) modify(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	name, err := common.PathParam(r, "name")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	entity := P(new(T))
	if err := common.DecodeJSON(w, r, entity); err != nil {
		common.WriteError(w, r, err)
		return
	}
	if entity.GetName() != name {
		common.WriteErrorResponse(w, errors.CodeInvalidInput, "entity name does not match the request path")
		return
	}
	if err := er.manager.Modify(r.Context(), caller, entity); err != nil {
		common.WriteError(w, r, err)
		return
	}
	common.WriteJSONResponse(w, entity, http.StatusOK)
}

func (er *entityRoutes[T, P]) delete(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	name, err := common.PathParam(r, "name")
	if err != nil {
		common.WriteError(w, r, err)
		return
	}
	entity, ok := er.manager.Get(r.Context(), name)
	if !ok {
		common.WriteErrorResponse(w, errors.CodeNotFound, er.kind+" "+name+" not found")
		return
	}
	if err := er.manager.Delete(r.Context(), caller, entity); err != nil {
		common.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func window[P any](items []P, start, limit int) []P {
	from := min(start, len(items))
	to := len(items)
	if limit > 0 {
		to = min(from+limit, to)
	}
	return items[from:to]
}
