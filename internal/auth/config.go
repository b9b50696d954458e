package auth

import (
	"errors"
	"net/http"
	"path"
	"strings"
)

var errMissingBearer = errors.New("missing bearer token")

// ExtractBearerToken returns the token of an "Authorization: Bearer" header.
func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errMissingBearer
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("authorization header must use the Bearer scheme")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("bearer token is empty")
	}
	return token, nil
}

// IsPublicPath checks if a path should bypass authentication.
// Encoded separators are rejected, the path is cleaned, and matching is
// segment aware: /health matches /health/live but not /healthcheck.
func IsPublicPath(requestPath string, publicPaths []string) bool {
	lowerPath := strings.ToLower(requestPath)
	if strings.Contains(lowerPath, "%2f") || strings.Contains(lowerPath, "%2e") {
		return false
	}

	cleanPath := path.Clean("/" + requestPath)

	for _, publicPath := range publicPaths {
		cleanPublicPath := path.Clean("/" + publicPath)

		if cleanPublicPath == "/" || cleanPath == cleanPublicPath {
			return true
		}
		if strings.HasPrefix(cleanPath, cleanPublicPath+"/") {
			return true
		}
	}
	return false
}
