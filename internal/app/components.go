package app

import (
	"github.com/scmgo/scm-server/internal/backend"
	"github.com/scmgo/scm-server/internal/cache"
	"github.com/scmgo/scm-server/internal/command"
	"github.com/scmgo/scm-server/internal/event"
	"github.com/scmgo/scm-server/internal/hook"
	"github.com/scmgo/scm-server/internal/manager"
	"github.com/scmgo/scm-server/internal/store"
)

// Components groups the long-lived services of a running server
type Components struct {
	Bus          *event.Bus
	Stores       *store.Factory
	Groups       *manager.GroupManager
	Users        *manager.UserManager
	Repositories *manager.RepositoryManager
	Backends     *backend.Registry
	Caches       *cache.LRUManager
	Commands     *command.ServiceFactory
	Hooks        *hook.Bridge
}
