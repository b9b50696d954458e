package model

import (
	"slices"
	"time"
)

// Group is a named set of members used to grant permissions collectively.
type Group struct {
	Name         string            `json:"name"`
	Type         string            `json:"type,omitempty"`
	Description  string            `json:"description,omitempty"`
	Members      []string          `json:"members,omitempty"`
	Properties   map[string]string `json:"properties,omitempty"`
	CreationDate *time.Time        `json:"creationDate,omitempty"`
	LastModified *time.Time        `json:"lastModified,omitempty"`
}

// GetName returns the group name
func (g *Group) GetName() string { return g.Name }

// GetType returns the group type
func (g *Group) GetType() string { return g.Type }

// SetType sets the group type
func (g *Group) SetType(t string) { g.Type = t }

// GetDescription returns the group description
func (g *Group) GetDescription() string { return g.Description }

// SetCreationDate stamps the creation time
func (g *Group) SetCreationDate(t time.Time) { g.CreationDate = &t }

// SetLastModified stamps the modification time
func (g *Group) SetLastModified(t time.Time) { g.LastModified = &t }

// HasMember reports whether member belongs to the group.
func (g *Group) HasMember(member string) bool {
	return slices.Contains(g.Members, member)
}

// AddMember adds member unless it is already present.
func (g *Group) AddMember(member string) {
	if !g.HasMember(member) {
		g.Members = append(g.Members, member)
	}
}

// RemoveMember removes member from the group.
func (g *Group) RemoveMember(member string) {
	g.Members = slices.DeleteFunc(g.Members, func(m string) bool { return m == member })
}

// GetProperty returns the value stored under key.
func (g *Group) GetProperty(key string) (string, bool) { return getProperty(g.Properties, key) }

// SetProperty stores value under key.
func (g *Group) SetProperty(key, value string) { setProperty(&g.Properties, key, value) }

// RemoveProperty deletes key.
func (g *Group) RemoveProperty(key string) { removeProperty(g.Properties, key) }

// Clone returns a deep copy of the group.
func (g *Group) Clone() *Group {
	c := &Group{}
	g.CopyTo(c)
	return c
}

// CopyTo overwrites dst with a deep copy of g.
func (g *Group) CopyTo(dst *Group) {
	dst.Name = g.Name
	dst.Type = g.Type
	dst.Description = g.Description
	dst.Members = cloneStrings(g.Members)
	dst.Properties = cloneProperties(g.Properties)
	dst.CreationDate = cloneTime(g.CreationDate)
	dst.LastModified = cloneTime(g.LastModified)
}
