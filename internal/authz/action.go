package authz

import (
	"net/http"
	"strings"

	"github.com/scmgo/scm-server/internal/config"
)

// Action aliases from config for convenience within the authz package.
const (
	ActionRead  = config.ActionRead
	ActionWrite = config.ActionWrite
	ActionAdmin = config.ActionAdmin
)

const apiPrefix = "/api/v1/"

// RouteAction determines the required Cedar action based on HTTP method and path.
// Entity collection mutations and full listings need admin; repository
// reads need read. Unknown mutating requests need admin.
func RouteAction(method, path string) string {
	collection, rest := splitAPIPath(path)

	if method == http.MethodGet || method == http.MethodHead {
		return ActionRead
	}
	if collection == "repositories" && strings.Contains(rest, "/") {
		// sub resources of a repository, such as commands
		return ActionWrite
	}
	return ActionAdmin
}

// ResourceType returns the Cedar resource type addressed by path.
func ResourceType(path string) string {
	switch collection, _ := splitAPIPath(path); collection {
	case "groups":
		return "Group"
	case "users":
		return "User"
	case "repositories":
		return "Repository"
	default:
		return defaultResourceType
	}
}

// splitAPIPath returns the collection segment and the remainder of an API path.
func splitAPIPath(path string) (collection, rest string) {
	if !strings.HasPrefix(path, apiPrefix) {
		return "", ""
	}
	collection, rest, _ = strings.Cut(strings.TrimPrefix(path, apiPrefix), "/")
	return collection, rest
}
