package manager

import "errors"

var (
	// ErrAlreadyExists is returned when creating an entity whose name is taken.
	ErrAlreadyExists = errors.New("entity already exists")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrRepositoryNotFound is returned when a hook names an unregistered repository.
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrInvalidEntity is returned for nil entities or entities without a name.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrInvalidWindow is returned for a negative list offset.
	ErrInvalidWindow = errors.New("invalid list window")
)
