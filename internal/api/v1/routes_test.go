package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scmgo/scm-server/internal/authz"
	"github.com/scmgo/scm-server/internal/backend"
	"github.com/scmgo/scm-server/internal/backend/git"
	"github.com/scmgo/scm-server/internal/cache"
	"github.com/scmgo/scm-server/internal/command"
	"github.com/scmgo/scm-server/internal/config"
	"github.com/scmgo/scm-server/internal/event"
	"github.com/scmgo/scm-server/internal/manager"
	"github.com/scmgo/scm-server/internal/model"
	"github.com/scmgo/scm-server/internal/store"
)

const callerHeader = "X-Test-Caller"

var callers = map[string]authz.Caller{
	"admin":  {Subject: "root", GrantedActions: []string{authz.ActionRead, authz.ActionAdmin}},
	"reader": {Subject: "alice", GrantedActions: []string{authz.ActionRead}},
}

// withTestCaller stands in for the authentication middleware.
func withTestCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if caller, ok := callers[r.Header.Get(callerHeader)]; ok {
			r = r.WithContext(authz.WithCaller(r.Context(), caller))
		}
		next.ServeHTTP(w, r)
	})
}

type testAPI struct {
	server   *httptest.Server
	deps     Dependencies
	provider *git.Provider
	root     string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()
	bus := event.NewBus()
	gate := authz.NewDefaultGate()

	groups, err := manager.NewGroupManager(ctx, store.NewMemoryStore[model.Group](), bus, gate)
	require.NoError(t, err)
	users, err := manager.NewUserManager(ctx, store.NewMemoryStore[model.User](), bus, gate)
	require.NoError(t, err)
	repos, err := manager.NewRepositoryManager(ctx, store.NewMemoryStore[model.Repository](), bus, gate)
	require.NoError(t, err)

	root := t.TempDir()
	provider := git.NewProvider(root)
	caches := cache.NewLRUManager(config.CacheConfig{}, nil)

	deps := Dependencies{
		Groups:       groups,
		Users:        users,
		Repositories: repos,
		Commands:     command.NewServiceFactory(backend.NewRegistry(provider), caches),
	}
	srv := httptest.NewServer(withTestCaller(Router(deps)))
	t.Cleanup(srv.Close)

	return &testAPI{server: srv, deps: deps, provider: provider, root: root}
}

func (a *testAPI) do(t *testing.T, method, path, caller string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, a.server.URL+path, reader)
	require.NoError(t, err)
	if caller != "" {
		req.Header.Set(callerHeader, caller)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var resp errors.ErrorResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	return resp.Code
}

func groupNames(t *testing.T, data []byte) []string {
	t.Helper()
	var list ListResponse[*model.Group]
	require.NoError(t, json.Unmarshal(data, &list))
	require.Equal(t, len(list.Items), list.Count)
	names := make([]string, 0, len(list.Items))
	for _, g := range list.Items {
		names = append(names, g.Name)
	}
	return names
}

func TestGroupLifecycle(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	status, data := api.do(t, http.MethodPost, "/groups", "admin",
		model.Group{Name: "developers", Description: "Developers", Members: []string{"alice"}})
	require.Equal(t, http.StatusCreated, status, string(data))
	var created model.Group
	require.NoError(t, json.Unmarshal(data, &created))
	assert.NotNil(t, created.CreationDate)
	assert.Nil(t, created.LastModified)

	status, data = api.do(t, http.MethodGet, "/groups/developers", "reader", nil)
	require.Equal(t, http.StatusOK, status)
	var fetched model.Group
	require.NoError(t, json.Unmarshal(data, &fetched))
	assert.Equal(t, []string{"alice"}, fetched.Members)

	fetched.Members = append(fetched.Members, "bob")
	status, data = api.do(t, http.MethodPut, "/groups/developers", "admin", fetched)
	require.Equal(t, http.StatusOK, status, string(data))

	stored, ok := api.deps.Groups.Get(context.Background(), "developers")
	require.True(t, ok)
	assert.Equal(t, []string{"alice", "bob"}, stored.Members)
	assert.NotNil(t, stored.LastModified)

	status, _ = api.do(t, http.MethodDelete, "/groups/developers", "admin", nil)
	require.Equal(t, http.StatusNoContent, status)

	status, data = api.do(t, http.MethodGet, "/groups/developers", "admin", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, string(errors.CodeNotFound), errorCode(t, data))
}

func TestEntityErrors(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	status, _ := api.do(t, http.MethodPost, "/groups", "admin", model.Group{Name: "developers"})
	require.Equal(t, http.StatusCreated, status)

	tests := []struct {
		name       string
		method     string
		path       string
		caller     string
		body       any
		wantStatus int
		wantCode   errors.ErrorCode
	}{
		{
			name:       "duplicate name",
			method:     http.MethodPost,
			path:       "/groups",
			caller:     "admin",
			body:       model.Group{Name: "developers"},
			wantStatus: http.StatusConflict,
			wantCode:   errors.CodeAlreadyExists,
		},
		{
			name:       "reader cannot create",
			method:     http.MethodPost,
			path:       "/groups",
			caller:     "reader",
			body:       model.Group{Name: "testers"},
			wantStatus: http.StatusForbidden,
			wantCode:   errors.CodeForbidden,
		},
		{
			name:       "missing caller",
			method:     http.MethodPost,
			path:       "/groups",
			body:       model.Group{Name: "testers"},
			wantStatus: http.StatusUnauthorized,
			wantCode:   errors.CodeUnauthorized,
		},
		{
			name:       "malformed body",
			method:     http.MethodPost,
			path:       "/groups",
			caller:     "admin",
			body:       `{"name": `,
			wantStatus: http.StatusBadRequest,
			wantCode:   errors.CodeInvalidInput,
		},
		{
			name:       "unknown field",
			method:     http.MethodPost,
			path:       "/groups",
			caller:     "admin",
			body:       `{"name": "testers", "colour": "blue"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   errors.CodeInvalidInput,
		},
		{
			name:       "name mismatch on modify",
			method:     http.MethodPut,
			path:       "/groups/developers",
			caller:     "admin",
			body:       model.Group{Name: "testers"},
			wantStatus: http.StatusBadRequest,
			wantCode:   errors.CodeInvalidInput,
		},
		{
			name:       "modify missing",
			method:     http.MethodPut,
			path:       "/groups/testers",
			caller:     "admin",
			body:       model.Group{Name: "testers"},
			wantStatus: http.StatusNotFound,
			wantCode:   errors.CodeNotFound,
		},
		{
			name:       "delete missing",
			method:     http.MethodDelete,
			path:       "/groups/testers",
			caller:     "admin",
			wantStatus: http.StatusNotFound,
			wantCode:   errors.CodeNotFound,
		},
		{
			name:       "reader cannot list all",
			method:     http.MethodGet,
			path:       "/groups",
			caller:     "reader",
			wantStatus: http.StatusForbidden,
			wantCode:   errors.CodeForbidden,
		},
		{
			name:       "negative start",
			method:     http.MethodGet,
			path:       "/groups?start=-1",
			caller:     "admin",
			wantStatus: http.StatusBadRequest,
			wantCode:   errors.CodeInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, data := api.do(t, tt.method, tt.path, tt.caller, tt.body)
			assert.Equal(t, tt.wantStatus, status, string(data))
			assert.Equal(t, string(tt.wantCode), errorCode(t, data))
		})
	}

	_, ok := api.deps.Groups.Get(context.Background(), "testers")
	assert.False(t, ok)
}

func TestGroupListing(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	for _, g := range []model.Group{
		{Name: "testers", Description: "Quality", Members: []string{"carol"}},
		{Name: "developers", Description: "Core developers", Members: []string{"alice", "bob"}},
		{Name: "admins", Description: "Operations", Members: []string{"alice"}},
	} {
		status, data := api.do(t, http.MethodPost, "/groups", "admin", g)
		require.Equal(t, http.StatusCreated, status, string(data))
	}

	tests := []struct {
		name   string
		path   string
		caller string
		want   []string
	}{
		{name: "all by name", path: "/groups", caller: "admin", want: []string{"admins", "developers", "testers"}},
		{name: "window", path: "/groups?start=1&limit=1", caller: "admin", want: []string{"developers"}},
		{name: "window past end", path: "/groups?start=5", caller: "admin", want: []string{}},
		{name: "member", path: "/groups?member=alice", caller: "reader", want: []string{"admins", "developers"}},
		{name: "member window", path: "/groups?member=alice&start=1", caller: "reader", want: []string{"developers"}},
		{name: "unknown member", path: "/groups?member=zaphod", caller: "reader", want: []string{}},
		{name: "search description", path: "/groups?q=core", caller: "reader", want: []string{"developers"}},
		{name: "search wildcard", path: "/groups?q=*ers", caller: "reader", want: []string{"developers", "testers"}},
		{name: "search no match", path: "/groups?q=nothing", caller: "reader", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, data := api.do(t, http.MethodGet, tt.path, tt.caller, nil)
			require.Equal(t, http.StatusOK, status, string(data))
			assert.Equal(t, tt.want, groupNames(t, data))
		})
	}
}

func TestUserAndRepositoryCollections(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)

	status, data := api.do(t, http.MethodPost, "/users", "admin",
		model.User{Name: "alice", DisplayName: "Alice", Mail: "alice@example.com"})
	require.Equal(t, http.StatusCreated, status, string(data))

	status, data = api.do(t, http.MethodPost, "/repositories", "admin", model.Repository{Name: "core"})
	require.Equal(t, http.StatusCreated, status, string(data))
	var repo model.Repository
	require.NoError(t, json.Unmarshal(data, &repo))
	assert.NotEmpty(t, repo.ID)
	assert.Equal(t, manager.DefaultRepositoryType, repo.Type)

	status, _ = api.do(t, http.MethodGet, "/users/alice", "reader", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = api.do(t, http.MethodGet, "/repositories/core", "reader", nil)
	assert.Equal(t, http.StatusOK, status)
}

// seedRepository registers repo and commits one file tagged v1.0.0.
func (a *testAPI) seedRepository(t *testing.T, name string) {
	t.Helper()
	ctx := context.Background()

	repo := &model.Repository{Name: name, Type: git.Kind}
	require.NoError(t, a.deps.Repositories.Create(ctx, authz.System(), repo))
	require.NoError(t, a.provider.Init(ctx, repo, false))

	dir := filepath.Join(a.root, name)
	r, err := gogit.PlainOpen(dir)
	require.NoError(t, err)
	wt, err := r.Worktree()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("# "+name+"\n"), 0600))
	_, err = wt.Add("README.md")
	require.NoError(t, err)
	sig := &object.Signature{Name: "Trillian", Email: "trillian@example.com", When: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	hash, err := wt.Commit("initial import", &gogit.CommitOptions{Author: sig, Committer: sig})
	require.NoError(t, err)
	_, err = r.CreateTag("v1.0.0", hash, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "NOTES.md"), []byte("notes\n"), 0600))
}

func TestRepositoryCommands(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	api.seedRepository(t, "core")

	status, data := api.do(t, http.MethodGet, "/repositories/core/tags", "reader", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	var tags backend.Tags
	require.NoError(t, json.Unmarshal(data, &tags))
	assert.Equal(t, []string{"v1.0.0"}, tags.Names())

	status, data = api.do(t, http.MethodGet, "/repositories/core/branches?nocache=true", "reader", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	var branches backend.Branches
	require.NoError(t, json.Unmarshal(data, &branches))
	require.Len(t, branches.Branches, 1)
	assert.Equal(t, "master", branches.Branches[0].Name)

	status, data = api.do(t, http.MethodGet, "/repositories/core/changesets?limit=10", "reader", nil)
	require.Equal(t, http.StatusOK, status, string(data))
	var log backend.ChangesetPagingResult
	require.NoError(t, json.Unmarshal(data, &log))
	assert.Equal(t, 1, log.Total)
	require.Len(t, log.Changesets, 1)
	assert.Equal(t, "initial import", log.Changesets[0].Description)
	assert.Equal(t, []string{"README.md"}, log.Changesets[0].Modifications.Added)

	status, data = api.do(t, http.MethodPost, "/repositories/core/add", "admin", AddRequest{Paths: []string{"NOTES.md"}})
	require.Equal(t, http.StatusNoContent, status, string(data))
}

func TestRepositoryCommandErrors(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t)
	ctx := context.Background()

	// registered but never initialized on disk
	require.NoError(t, api.deps.Repositories.Create(ctx, authz.System(), &model.Repository{Name: "ghost", Type: git.Kind}))
	require.NoError(t, api.deps.Repositories.Create(ctx, authz.System(), &model.Repository{Name: "legacy", Type: "svn"}))

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
	}{
		{name: "unknown repository", method: http.MethodGet, path: "/repositories/missing/tags", wantStatus: http.StatusNotFound},
		{name: "storage missing", method: http.MethodGet, path: "/repositories/ghost/tags", wantStatus: http.StatusNotFound},
		{name: "unsupported backend", method: http.MethodGet, path: "/repositories/legacy/branches", wantStatus: http.StatusNotImplemented},
		{name: "invalid nocache", method: http.MethodGet, path: "/repositories/ghost/tags?nocache=maybe", wantStatus: http.StatusBadRequest},
		{name: "invalid limit", method: http.MethodGet, path: "/repositories/ghost/changesets?limit=x", wantStatus: http.StatusBadRequest},
		{name: "add invalid body", method: http.MethodPost, path: "/repositories/ghost/add", body: `[]`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, data := api.do(t, tt.method, tt.path, "admin", tt.body)
			assert.Equal(t, tt.wantStatus, status, string(data))
		})
	}
}

func TestWindow(t *testing.T) {
	t.Parallel()

	items := []int{1, 2, 3, 4}
	assert.Equal(t, []int{1, 2, 3, 4}, window(items, 0, 0))
	assert.Equal(t, []int{2, 3}, window(items, 1, 2))
	assert.Equal(t, []int{4}, window(items, 3, 10))
	assert.Empty(t, window(items, 9, 1))
}
