package command

import (
	"context"

	"github.com/scmgo/scm-server/internal/backend"
	"github.com/scmgo/scm-server/internal/cache"
)

// LogCommandBuilder pages through the history of a repository. Every request
// parameter is part of the cache key.
type LogCommandBuilder struct {
	memo
	command backend.LogCommand
	request backend.LogRequest
}

// SetDisableCache bypasses the cache for lookups and stores.
func (b *LogCommandBuilder) SetDisableCache(disabled bool) *LogCommandBuilder {
	b.disableCache = disabled
	return b
}

// SetBranch starts the history at the head of branch.
func (b *LogCommandBuilder) SetBranch(branch string) *LogCommandBuilder {
	b.request.Branch = branch
	return b
}

// SetPath limits the history to changesets touching path.
func (b *LogCommandBuilder) SetPath(path string) *LogCommandBuilder {
	b.request.Path = path
	return b
}

// SetStartChangeset starts the history at id.
func (b *LogCommandBuilder) SetStartChangeset(id string) *LogCommandBuilder {
	b.request.StartChangeset = id
	return b
}

// SetEndChangeset ends the history at id.
func (b *LogCommandBuilder) SetEndChangeset(id string) *LogCommandBuilder {
	b.request.EndChangeset = id
	return b
}

// SetPagingStart skips start changesets.
func (b *LogCommandBuilder) SetPagingStart(start int) *LogCommandBuilder {
	b.request.PagingStart = start
	return b
}

// SetPagingLimit returns at most limit changesets.
func (b *LogCommandBuilder) SetPagingLimit(limit int) *LogCommandBuilder {
	b.request.PagingLimit = limit
	return b
}

// Request returns the request built so far.
func (b *LogCommandBuilder) Request() backend.LogRequest {
	return b.request
}

// GetChangesets returns the requested page of changesets.
func (b *LogCommandBuilder) GetChangesets(ctx context.Context) (*backend.ChangesetPagingResult, error) {
	req := b.request
	key := cache.NewKey(b.repo.ID, req.Params()...)
	return fetch(ctx, &b.memo, "changesets", key, func(ctx context.Context) (*backend.ChangesetPagingResult, error) {
		return b.command.GetChangesets(ctx, b.repo, req)
	})
}
