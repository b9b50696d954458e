package model

import (
	"slices"
	"time"
)

// PermissionType is the level of access granted by a Permission.
type PermissionType string

const (
	// PermissionRead allows reading the repository
	PermissionRead PermissionType = "read"
	// PermissionWrite allows pushing to the repository
	PermissionWrite PermissionType = "write"
	// PermissionOwner allows administering the repository
	PermissionOwner PermissionType = "owner"
)

// Permission grants a user or a group access to a repository.
type Permission struct {
	Name            string         `json:"name"`
	Type            PermissionType `json:"type"`
	GroupPermission bool           `json:"groupPermission,omitempty"`
}

// Repository is a version-controlled repository hosted by one backend.
// Type holds the backend kind (e.g. "git").
type Repository struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Type         string            `json:"type"`
	Description  string            `json:"description,omitempty"`
	Contact      string            `json:"contact,omitempty"`
	URL          string            `json:"url,omitempty"`
	Public       bool              `json:"public"`
	Permissions  []Permission      `json:"permissions,omitempty"`
	Properties   map[string]string `json:"properties,omitempty"`
	CreationDate *time.Time        `json:"creationDate,omitempty"`
	LastModified *time.Time        `json:"lastModified,omitempty"`
}

// GetName returns the repository name
func (r *Repository) GetName() string { return r.Name }

// GetType returns the backend kind
func (r *Repository) GetType() string { return r.Type }

// SetType sets the backend kind
func (r *Repository) SetType(t string) { r.Type = t }

// GetDescription returns the repository description
func (r *Repository) GetDescription() string { return r.Description }

// SetCreationDate stamps the creation time
func (r *Repository) SetCreationDate(t time.Time) { r.CreationDate = &t }

// SetLastModified stamps the modification time
func (r *Repository) SetLastModified(t time.Time) { r.LastModified = &t }

// HasMember reports whether any permission is granted to member.
func (r *Repository) HasMember(member string) bool {
	return slices.ContainsFunc(r.Permissions, func(p Permission) bool { return p.Name == member })
}

// GetProperty returns the value stored under key.
func (r *Repository) GetProperty(key string) (string, bool) { return getProperty(r.Properties, key) }

// SetProperty stores value under key.
func (r *Repository) SetProperty(key, value string) { setProperty(&r.Properties, key, value) }

// RemoveProperty deletes key.
func (r *Repository) RemoveProperty(key string) { removeProperty(r.Properties, key) }

// Clone returns a deep copy of the repository.
func (r *Repository) Clone() *Repository {
	c := &Repository{}
	r.CopyTo(c)
	return c
}

// CopyTo overwrites dst with a deep copy of r.
func (r *Repository) CopyTo(dst *Repository) {
	dst.ID = r.ID
	dst.Name = r.Name
	dst.Type = r.Type
	dst.Description = r.Description
	dst.Contact = r.Contact
	dst.URL = r.URL
	dst.Public = r.Public
	if r.Permissions != nil {
		dst.Permissions = slices.Clone(r.Permissions)
	} else {
		dst.Permissions = nil
	}
	dst.Properties = cloneProperties(r.Properties)
	dst.CreationDate = cloneTime(r.CreationDate)
	dst.LastModified = cloneTime(r.LastModified)
}
