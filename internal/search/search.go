// Package search matches entities against free text queries.
package search

import (
	"strings"

	"github.com/gobwas/glob"
)

// Request is a free text query with paging.
type Request struct {
	// Query is matched as a substring. "*" matches any run of characters and
	// "?" exactly one character.
	Query string `json:"query"`

	// IgnoreCase disables case sensitive matching.
	IgnoreCase bool `json:"ignoreCase"`

	// StartWith skips that many matches.
	StartWith int `json:"startWith,omitempty"`

	// MaxResults limits the number of matches; zero or negative means unlimited.
	MaxResults int `json:"maxResults,omitempty"`
}

// NewRequest creates a case insensitive request for query.
func NewRequest(query string) Request {
	return Request{Query: query, IgnoreCase: true}
}

// Matcher is a compiled Request query.
type Matcher struct {
	pattern    glob.Glob
	ignoreCase bool
}

// Compile builds the matcher of req. An empty query matches everything.
func (r Request) Compile() *Matcher {
	query := r.Query
	if r.IgnoreCase {
		query = strings.ToLower(query)
	}

	// only * and ? are wildcards; every other glob syntax character is literal
	var sb strings.Builder
	sb.WriteString("*")
	literal := 0
	for i, c := range query {
		if c != '*' && c != '?' {
			continue
		}
		sb.WriteString(glob.QuoteMeta(query[literal:i]))
		sb.WriteRune(c)
		literal = i + 1
	}
	sb.WriteString(glob.QuoteMeta(query[literal:]))
	sb.WriteString("*")

	return &Matcher{pattern: glob.MustCompile(sb.String()), ignoreCase: r.IgnoreCase}
}

// MatchesOne reports whether any of values matches.
func (m *Matcher) MatchesOne(values ...string) bool {
	for _, v := range values {
		if m.ignoreCase {
			v = strings.ToLower(v)
		}
		if m.pattern.Match(v) {
			return true
		}
	}
	return false
}

// Filter returns the items for which fields yields a matching value, honoring
// the request's StartWith and MaxResults. Order is preserved.
func Filter[T any](r Request, items []T, fields func(T) []string) []T {
	m := r.Compile()
	skip := max(r.StartWith, 0)

	var out []T
	for _, item := range items {
		if !m.MatchesOne(fields(item)...) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		out = append(out, item)
		if r.MaxResults > 0 && len(out) >= r.MaxResults {
			break
		}
	}
	return out
}
