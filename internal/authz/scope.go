package authz

import (
	"slices"
	"strings"

	"github.com/scmgo/scm-server/internal/config"
)

// ExtractScopes extracts OAuth scopes from token claims.
// Handles both "scope" (space-separated string per RFC 6749) and
// "scp" (string array) claim formats.
func ExtractScopes(claims map[string]any) []string {
	if scopeStr, ok := claims["scope"].(string); ok && scopeStr != "" {
		return strings.Fields(scopeStr)
	}

	switch scp := claims["scp"].(type) {
	case []any:
		scopes := make([]string, 0, len(scp))
		for _, s := range scp {
			if str, ok := s.(string); ok {
				scopes = append(scopes, str)
			}
		}
		return scopes
	case []string:
		return slices.Clone(scp)
	}

	return nil
}

// MapScopesToActions maps OAuth scopes to granted actions using the scope
// mapping configuration. The result is sorted and free of duplicates.
func MapScopesToActions(scopes []string, mapping []config.ScopeMappingEntry) []string {
	var actions []string
	for _, entry := range mapping {
		if slices.Contains(scopes, entry.Scope) {
			actions = append(actions, entry.Actions...)
		}
	}
	slices.Sort(actions)
	return slices.Compact(actions)
}
