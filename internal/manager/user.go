package manager

import (
	"context"

	"github.com/scmgo/scm-server/internal/authz"
	"github.com/scmgo/scm-server/internal/event"
	"github.com/scmgo/scm-server/internal/model"
	"github.com/scmgo/scm-server/internal/store"
)

// UserKind describes the user collection.
var UserKind = Kind{Collection: "users", ResourceType: "User", Topic: event.TopicUser}

// UserManager manages users.
type UserManager struct {
	*Manager[model.User, *model.User]
}

// NewUserManager loads the user collection from st.
func NewUserManager(
	ctx context.Context,
	st store.Store[model.User],
	bus *event.Bus,
	gate authz.Gate,
	opts ...Option,
) (*UserManager, error) {
	m, err := New[model.User](ctx, UserKind, st, bus, gate, opts...)
	if err != nil {
		return nil, err
	}
	return &UserManager{Manager: m}, nil
}
