package manager

import (
	"context"

	"github.com/scmgo/scm-server/internal/authz"
	"github.com/scmgo/scm-server/internal/event"
	"github.com/scmgo/scm-server/internal/model"
	"github.com/scmgo/scm-server/internal/store"
)

// GroupKind describes the group collection.
var GroupKind = Kind{Collection: "groups", ResourceType: "Group", Topic: event.TopicGroup}

// GroupManager manages groups.
type GroupManager struct {
	*Manager[model.Group, *model.Group]
}

// NewGroupManager loads the group collection from st.
func NewGroupManager(
	ctx context.Context,
	st store.Store[model.Group],
	bus *event.Bus,
	gate authz.Gate,
	opts ...Option,
) (*GroupManager, error) {
	m, err := New[model.Group](ctx, GroupKind, st, bus, gate, opts...)
	if err != nil {
		return nil, err
	}
	return &GroupManager{Manager: m}, nil
}

// GetGroupsForMember returns the groups listing member.
func (g *GroupManager) GetGroupsForMember(ctx context.Context, member string) []*model.Group {
	return g.GetForMember(ctx, member)
}
