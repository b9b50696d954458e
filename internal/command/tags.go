package command

import (
	"context"
	"slices"

	"github.com/scmgo/scm-server/internal/backend"
	"github.com/scmgo/scm-server/internal/cache"
	"github.com/scmgo/scm-server/internal/versions"
)

// TagsCommandBuilder reads the tags of a repository, newest version last.
type TagsCommandBuilder struct {
	memo
	command backend.TagsCommand
}

// SetDisableCache bypasses the cache for lookups and stores.
func (b *TagsCommandBuilder) SetDisableCache(disabled bool) *TagsCommandBuilder {
	b.disableCache = disabled
	return b
}

// GetTags returns the tags ordered by version.
func (b *TagsCommandBuilder) GetTags(ctx context.Context) (*backend.Tags, error) {
	return fetch(ctx, &b.memo, "tags", cache.NewKey(b.repo.ID), func(ctx context.Context) (*backend.Tags, error) {
		tags, err := b.command.GetTags(ctx, b.repo)
		if err != nil || tags == nil {
			return tags, err
		}
		slices.SortStableFunc(tags.Tags, func(x, y backend.Tag) int {
			return versions.Compare(x.Name, y.Name)
		})
		return tags, nil
	})
}
