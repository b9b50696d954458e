package model

import "time"

// User is an account known to the server.
type User struct {
	Name         string            `json:"name"`
	Type         string            `json:"type,omitempty"`
	DisplayName  string            `json:"displayName,omitempty"`
	Mail         string            `json:"mail,omitempty"`
	Description  string            `json:"description,omitempty"`
	Admin        bool              `json:"admin"`
	Active       bool              `json:"active"`
	Properties   map[string]string `json:"properties,omitempty"`
	CreationDate *time.Time        `json:"creationDate,omitempty"`
	LastModified *time.Time        `json:"lastModified,omitempty"`
}

// GetName returns the user name
func (u *User) GetName() string { return u.Name }

// GetType returns the user type
func (u *User) GetType() string { return u.Type }

// SetType sets the user type
func (u *User) SetType(t string) { u.Type = t }

// GetDescription returns the description, falling back to the display name.
func (u *User) GetDescription() string {
	if u.Description == "" {
		return u.DisplayName
	}
	return u.Description
}

// SetCreationDate stamps the creation time
func (u *User) SetCreationDate(t time.Time) { u.CreationDate = &t }

// SetLastModified stamps the modification time
func (u *User) SetLastModified(t time.Time) { u.LastModified = &t }

// HasMember is always false: users do not reference members.
func (*User) HasMember(string) bool { return false }

// GetProperty returns the value stored under key.
func (u *User) GetProperty(key string) (string, bool) { return getProperty(u.Properties, key) }

// SetProperty stores value under key.
func (u *User) SetProperty(key, value string) { setProperty(&u.Properties, key, value) }

// RemoveProperty deletes key.
func (u *User) RemoveProperty(key string) { removeProperty(u.Properties, key) }

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	c := &User{}
	u.CopyTo(c)
	return c
}

// CopyTo overwrites dst with a deep copy of u.
func (u *User) CopyTo(dst *User) {
	dst.Name = u.Name
	dst.Type = u.Type
	dst.DisplayName = u.DisplayName
	dst.Mail = u.Mail
	dst.Description = u.Description
	dst.Admin = u.Admin
	dst.Active = u.Active
	dst.Properties = cloneProperties(u.Properties)
	dst.CreationDate = cloneTime(u.CreationDate)
	dst.LastModified = cloneTime(u.LastModified)
}
