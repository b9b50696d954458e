package common

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jmgilman/go/errors"
)

// PathParam extracts and decodes a URL parameter. Empty values and values
// containing whitespace or control characters are rejected.
func PathParam(r *http.Request, name string) (string, error) {
	decoded, err := url.PathUnescape(chi.URLParam(r, name))
	if err != nil {
		return "", errors.New(errors.CodeInvalidInput, fmt.Sprintf("invalid URL encoding in %s", name))
	}

	if strings.TrimSpace(decoded) == "" {
		return "", errors.New(errors.CodeInvalidInput, fmt.Sprintf("%s cannot be empty", name))
	}

	if strings.ContainsFunc(decoded, func(r rune) bool { return r <= ' ' || r == 0x7f }) {
		return "", errors.New(errors.CodeInvalidInput, fmt.Sprintf("%s cannot contain whitespace", name))
	}

	return decoded, nil
}
