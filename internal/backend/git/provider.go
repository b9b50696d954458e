// Package git implements the backend commands for git repositories with go-git.
package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/scmgo/scm-server/internal/backend"
	"github.com/scmgo/scm-server/internal/model"
)

// Kind is the repository type served by this provider.
const Kind = "git"

// Provider serves git repositories stored as <root>/<name>.
type Provider struct {
	root string
}

var (
	_ backend.Provider        = (*Provider)(nil)
	_ backend.TagsCommand     = (*Provider)(nil)
	_ backend.BranchesCommand = (*Provider)(nil)
	_ backend.LogCommand      = (*Provider)(nil)
	_ backend.AddCommand      = (*Provider)(nil)
)

// NewProvider creates a provider for repositories below root.
func NewProvider(root string) *Provider {
	return &Provider{root: root}
}

// Kind returns "git".
func (*Provider) Kind() string {
	return Kind
}

// Directory returns where the named repository is stored.
func (p *Provider) Directory(name string) (string, error) {
	if name == "" || !filepath.IsLocal(name) || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: invalid repository name %q", backend.ErrRepositoryNotAvailable, name)
	}
	return filepath.Join(p.root, name), nil
}

// Init creates an empty repository for repo. Bare repositories have no
// working copy and do not support Add.
func (p *Provider) Init(_ context.Context, repo *model.Repository, bare bool) error {
	dir, err := p.Directory(repo.Name)
	if err != nil {
		return err
	}
	if _, err := git.PlainInit(dir, bare); err != nil {
		return fmt.Errorf("failed to initialize repository %s: %w", repo.Name, err)
	}
	slog.Info("Initialized git repository", "repository", repo.Name, "bare", bare)
	return nil
}

func (p *Provider) open(repo *model.Repository) (*git.Repository, error) {
	if repo == nil {
		return nil, fmt.Errorf("%w: repository is nil", backend.ErrRepositoryNotAvailable)
	}
	dir, err := p.Directory(repo.Name)
	if err != nil {
		return nil, err
	}
	r, err := git.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", backend.ErrRepositoryNotAvailable, repo.Name, err)
	}
	return r, nil
}

// GetTags lists the tags of repo; annotated tags resolve to the tagged commit.
func (p *Provider) GetTags(ctx context.Context, repo *model.Repository) (*backend.Tags, error) {
	r, err := p.open(repo)
	if err != nil {
		return nil, err
	}

	refs, err := r.Tags()
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}

	result := &backend.Tags{Tags: []backend.Tag{}}
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		result.Tags = append(result.Tags, backend.Tag{
			Name:     ref.Name().Short(),
			Revision: peel(r, ref.Hash()).String(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}
	return result, nil
}

// GetBranches lists the local branches of repo.
func (p *Provider) GetBranches(ctx context.Context, repo *model.Repository) (*backend.Branches, error) {
	r, err := p.open(repo)
	if err != nil {
		return nil, err
	}

	refs, err := r.Branches()
	if err != nil {
		return nil, fmt.Errorf("failed to list branches: %w", err)
	}

	result := &backend.Branches{Branches: []backend.Branch{}}
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		result.Branches = append(result.Branches, backend.Branch{
			Name:     ref.Name().Short(),
			Revision: ref.Hash().String(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read branches: %w", err)
	}
	return result, nil
}

// GetChangesets walks the history newest first and returns the requested page.
// An empty repository yields an empty result.
func (p *Provider) GetChangesets(
	ctx context.Context,
	repo *model.Repository,
	req backend.LogRequest,
) (*backend.ChangesetPagingResult, error) {
	r, err := p.open(repo)
	if err != nil {
		return nil, err
	}

	branch, from, err := resolveStart(r, req)
	if errors.Is(err, plumbing.ErrReferenceNotFound) && req.Branch == "" && req.StartChangeset == "" {
		return &backend.ChangesetPagingResult{Changesets: []backend.Changeset{}}, nil
	}
	if err != nil {
		return nil, err
	}

	opts := &git.LogOptions{From: from, Order: git.LogOrderCommitterTime}
	if path := strings.Trim(req.Path, "/"); path != "" {
		opts.PathFilter = func(p string) bool {
			return p == path || strings.HasPrefix(p, path+"/")
		}
	}

	commits, err := r.Log(opts)
	if err != nil {
		return nil, fmt.Errorf("error walking commits: %w", err)
	}
	defer commits.Close()

	var matched []*object.Commit
	end := plumbing.NewHash(req.EndChangeset)
	err = commits.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		matched = append(matched, c)
		if req.EndChangeset != "" && c.Hash == end {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error visiting commits: %w", err)
	}

	lo := min(max(req.PagingStart, 0), len(matched))
	hi := len(matched)
	if req.PagingLimit > 0 {
		hi = min(lo+req.PagingLimit, hi)
	}

	tags, err := refNamesByCommit(r, true)
	if err != nil {
		return nil, err
	}
	branches, err := refNamesByCommit(r, false)
	if err != nil {
		return nil, err
	}

	result := &backend.ChangesetPagingResult{
		Total:      len(matched),
		Branch:     branch,
		Changesets: make([]backend.Changeset, 0, hi-lo),
	}
	for _, c := range matched[lo:hi] {
		mods, err := modifications(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("failed to compute modifications of %s: %w", c.Hash, err)
		}
		result.Changesets = append(result.Changesets, backend.Changeset{
			ID:            c.Hash.String(),
			Author:        backend.Person{Name: c.Author.Name, Mail: c.Author.Email},
			Date:          c.Author.When,
			Description:   strings.TrimSpace(c.Message),
			Parents:       hashStrings(c.ParentHashes),
			Branches:      branches[c.Hash],
			Tags:          tags[c.Hash],
			Modifications: mods,
		})
	}
	return result, nil
}

// Add stages paths in the working copy of repo, skipping empty ones.
func (p *Provider) Add(ctx context.Context, repo *model.Repository, paths ...string) error {
	r, err := p.open(repo)
	if err != nil {
		return err
	}
	wt, err := r.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree: %w", err)
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := wt.Add(path); err != nil {
			return fmt.Errorf("failed to add %s: %w", path, err)
		}
		slog.DebugContext(ctx, "Staged path", "repository", repo.Name, "path", path)
	}
	return nil
}

// resolveStart returns the branch name (if any) and the commit the walk starts at.
func resolveStart(r *git.Repository, req backend.LogRequest) (string, plumbing.Hash, error) {
	if req.StartChangeset != "" {
		hash, err := r.ResolveRevision(plumbing.Revision(req.StartChangeset))
		if err != nil {
			return req.Branch, plumbing.ZeroHash, fmt.Errorf("failed to resolve changeset %q: %w", req.StartChangeset, err)
		}
		return req.Branch, *hash, nil
	}

	if req.Branch != "" {
		ref, err := r.Reference(plumbing.NewBranchReferenceName(req.Branch), true)
		if err != nil {
			return req.Branch, plumbing.ZeroHash, fmt.Errorf("failed to resolve branch %q: %w", req.Branch, err)
		}
		return req.Branch, ref.Hash(), nil
	}

	head, err := r.Head()
	if err != nil {
		return "", plumbing.ZeroHash, err
	}
	if head.Name().IsBranch() {
		return head.Name().Short(), head.Hash(), nil
	}
	return "", head.Hash(), nil
}

// peel resolves an annotated tag object to its target.
func peel(r *git.Repository, hash plumbing.Hash) plumbing.Hash {
	tag, err := r.TagObject(hash)
	if err != nil {
		return hash
	}
	return tag.Target
}

func refNamesByCommit(r *git.Repository, tags bool) (map[plumbing.Hash][]string, error) {
	var (
		refs storer.ReferenceIter
		err  error
	)
	if tags {
		refs, err = r.Tags()
	} else {
		refs, err = r.Branches()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}

	names := make(map[plumbing.Hash][]string)
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		hash := peel(r, ref.Hash())
		names[hash] = append(names[hash], ref.Name().Short())
		return nil
	})
	for _, list := range names {
		slices.Sort(list)
	}
	return names, err
}

func modifications(ctx context.Context, c *object.Commit) (backend.Modifications, error) {
	var mods backend.Modifications

	tree, err := c.Tree()
	if err != nil {
		return mods, err
	}

	if c.NumParents() == 0 {
		err := tree.Files().ForEach(func(f *object.File) error {
			mods.Added = append(mods.Added, f.Name)
			return nil
		})
		return mods, err
	}

	parent, err := c.Parent(0)
	if err != nil {
		return mods, err
	}
	parentTree, err := parent.Tree()
	if err != nil {
		return mods, err
	}

	changes, err := parentTree.DiffContext(ctx, tree)
	if err != nil {
		return mods, err
	}
	for _, change := range changes {
		action, err := change.Action()
		if err != nil {
			return mods, err
		}
		switch action {
		case merkletrie.Insert:
			mods.Added = append(mods.Added, change.To.Name)
		case merkletrie.Delete:
			mods.Removed = append(mods.Removed, change.From.Name)
		case merkletrie.Modify:
			mods.Modified = append(mods.Modified, change.To.Name)
		}
	}
	return mods, nil
}

func hashStrings(hashes []plumbing.Hash) []string {
	if len(hashes) == 0 {
		return nil
	}
	out := make([]string, len(hashes))
	for i, h := range hashes {
		out[i] = h.String()
	}
	return out
}
