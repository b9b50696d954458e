package backend

import (
	"slices"
	"strconv"
	"time"
)

// Tag is a named revision.
type Tag struct {
	Name     string `json:"name"`
	Revision string `json:"revision"`
}

// Tags is the result of TagsCommand.
type Tags struct {
	Tags []Tag `json:"tags"`
}

// Names returns the tag names in order.
func (t *Tags) Names() []string {
	if t == nil {
		return nil
	}
	names := make([]string, len(t.Tags))
	for i, tag := range t.Tags {
		names[i] = tag.Name
	}
	return names
}

// Clone returns a copy that shares no slice with t.
func (t *Tags) Clone() *Tags {
	return &Tags{Tags: slices.Clone(t.Tags)}
}

// Branch is a named line of development and its head revision.
type Branch struct {
	Name     string `json:"name"`
	Revision string `json:"revision"`
}

// Branches is the result of BranchesCommand.
type Branches struct {
	Branches []Branch `json:"branches"`
}

// Clone returns a copy that shares no slice with b.
func (b *Branches) Clone() *Branches {
	return &Branches{Branches: slices.Clone(b.Branches)}
}

// Person identifies the author of a changeset.
type Person struct {
	Name string `json:"name"`
	Mail string `json:"mail,omitempty"`
}

// Modifications lists the paths touched by a changeset.
type Modifications struct {
	Added    []string `json:"added,omitempty"`
	Modified []string `json:"modified,omitempty"`
	Removed  []string `json:"removed,omitempty"`
}

// IsEmpty reports whether no path was touched.
func (m Modifications) IsEmpty() bool {
	return len(m.Added) == 0 && len(m.Modified) == 0 && len(m.Removed) == 0
}

// Changeset is one revision of a repository.
type Changeset struct {
	ID            string        `json:"id"`
	Author        Person        `json:"author"`
	Date          time.Time     `json:"date"`
	Description   string        `json:"description"`
	Parents       []string      `json:"parents,omitempty"`
	Branches      []string      `json:"branches,omitempty"`
	Tags          []string      `json:"tags,omitempty"`
	Modifications Modifications `json:"modifications"`
}

func (c Changeset) clone() Changeset {
	c.Parents = slices.Clone(c.Parents)
	c.Branches = slices.Clone(c.Branches)
	c.Tags = slices.Clone(c.Tags)
	c.Modifications = Modifications{
		Added:    slices.Clone(c.Modifications.Added),
		Modified: slices.Clone(c.Modifications.Modified),
		Removed:  slices.Clone(c.Modifications.Removed),
	}
	return c
}

// LogRequest selects a window of the history.
type LogRequest struct {
	// Branch starts the walk at the head of this branch; empty means the default branch
	Branch string

	// Path restricts the history to changesets touching this file or directory
	Path string

	// StartChangeset starts the walk at this revision instead of the branch head
	StartChangeset string

	// EndChangeset stops the walk after this revision
	EndChangeset string

	// PagingStart skips this many changesets
	PagingStart int

	// PagingLimit returns at most this many changesets; zero or negative means all
	PagingLimit int
}

// Params returns the request fields in a fixed order, for cache keys.
func (r LogRequest) Params() []string {
	return []string{
		r.Branch,
		r.Path,
		r.StartChangeset,
		r.EndChangeset,
		strconv.Itoa(r.PagingStart),
		strconv.Itoa(r.PagingLimit),
	}
}

// ChangesetPagingResult is one page of changesets plus the total number of
// changesets matching the request.
type ChangesetPagingResult struct {
	Total      int         `json:"total"`
	Branch     string      `json:"branch,omitempty"`
	Changesets []Changeset `json:"changesets"`
}

// Clone returns a deep copy of r.
func (r *ChangesetPagingResult) Clone() *ChangesetPagingResult {
	out := *r
	if r.Changesets != nil {
		out.Changesets = make([]Changeset, len(r.Changesets))
		for i, c := range r.Changesets {
			out.Changesets[i] = c.clone()
		}
	}
	return &out
}
