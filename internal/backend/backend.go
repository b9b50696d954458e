// Package backend defines the commands a version control backend can offer.
//
// A Provider serves one repository kind. Commands are optional: a provider
// supports a command by also implementing its interface, and callers discover
// support with a type assertion.
package backend

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/scmgo/scm-server/internal/model"
)

// ErrRepositoryNotAvailable is returned when the storage of a repository cannot be opened.
var ErrRepositoryNotAvailable = errors.New("repository is not available")

// Provider is the backend of one repository kind, e.g. "git".
type Provider interface {
	Kind() string
}

// TagsCommand lists the tags of a repository.
type TagsCommand interface {
	GetTags(ctx context.Context, repo *model.Repository) (*Tags, error)
}

// BranchesCommand lists the branches of a repository.
type BranchesCommand interface {
	GetBranches(ctx context.Context, repo *model.Repository) (*Branches, error)
}

// LogCommand pages through the history of a repository.
type LogCommand interface {
	GetChangesets(ctx context.Context, repo *model.Repository, req LogRequest) (*ChangesetPagingResult, error)
}

// AddCommand stages paths of a working copy. Empty paths are ignored.
type AddCommand interface {
	Add(ctx context.Context, repo *model.Repository, paths ...string) error
}

// Registry resolves providers by repository kind.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates a registry holding providers.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds p, replacing any provider of the same kind.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Kind()] = p
}

// Get returns the provider of kind.
func (r *Registry) Get(kind string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[kind]
	return p, ok
}

// Kinds returns the registered kinds in lexical order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.providers))
	for k := range r.providers {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
