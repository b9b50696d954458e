package command

import (
	"context"

	"github.com/scmgo/scm-server/internal/backend"
	"github.com/scmgo/scm-server/internal/cache"
)

// BranchesCommandBuilder reads the branches of a repository.
type BranchesCommandBuilder struct {
	memo
	command backend.BranchesCommand
}

// SetDisableCache bypasses the cache for lookups and stores.
func (b *BranchesCommandBuilder) SetDisableCache(disabled bool) *BranchesCommandBuilder {
	b.disableCache = disabled
	return b
}

// GetBranches returns the branches as reported by the backend.
func (b *BranchesCommandBuilder) GetBranches(ctx context.Context) (*backend.Branches, error) {
	return fetch(ctx, &b.memo, "branches", cache.NewKey(b.repo.ID), func(ctx context.Context) (*backend.Branches, error) {
		return b.command.GetBranches(ctx, b.repo)
	})
}
