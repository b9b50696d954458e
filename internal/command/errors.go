package command

import "errors"

var (
	// ErrCommandNotSupported is returned when the backend of a repository lacks a command
	ErrCommandNotSupported = errors.New("command is not supported by the repository backend")

	// ErrUnknownRepositoryType is returned when no backend serves the repository type
	ErrUnknownRepositoryType = errors.New("unknown repository type")
)
