// Package model defines the administrative entities managed by the server:
// groups, users and repositories.
package model

import (
	"maps"
	"slices"
	"time"
)

// Object is the constraint satisfied by the pointer type of every managed entity.
// Managers rely on it to stamp timestamps, resolve names and copy values across
// the store boundary.
type Object[T any] interface {
	*T

	// GetName returns the unique name of the entity within its collection.
	GetName() string

	// GetType returns the type tag of the entity.
	GetType() string

	// SetType sets the type tag of the entity.
	SetType(t string)

	// GetDescription returns the free-form description.
	GetDescription() string

	// SetCreationDate stamps the creation time.
	SetCreationDate(t time.Time)

	// SetLastModified stamps the last modification time.
	SetLastModified(t time.Time)

	// HasMember reports whether the entity references the given member.
	HasMember(member string) bool

	// Clone returns a deep copy.
	Clone() *T

	// CopyTo overwrites every field of dst with a deep copy of the receiver's fields.
	CopyTo(dst *T)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func cloneProperties(p map[string]string) map[string]string {
	if p == nil {
		return nil
	}
	return maps.Clone(p)
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}

func getProperty(p map[string]string, key string) (string, bool) {
	v, ok := p[key]
	return v, ok
}

func setProperty(p *map[string]string, key, value string) {
	if *p == nil {
		*p = make(map[string]string)
	}
	(*p)[key] = value
}

func removeProperty(p map[string]string, key string) {
	delete(p, key)
}
