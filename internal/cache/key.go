package cache

import (
	"github.com/cespare/xxhash/v2"
)

// Key identifies a cached command result: the repository and a hash of the
// command parameters.
type Key struct {
	RepositoryID string
	Params       uint64
}

// NewKey returns the key of a command on repositoryID. Commands without
// parameters share Params 0.
func NewKey(repositoryID string, params ...string) Key {
	return Key{RepositoryID: repositoryID, Params: HashParams(params...)}
}

// HashParams hashes params in order; an empty list hashes to 0.
func HashParams(params ...string) uint64 {
	if len(params) == 0 {
		return 0
	}

	hasher := xxhash.New()
	for _, p := range params {
		_, _ = hasher.WriteString(p)
		_, _ = hasher.Write([]byte{0}) // Separator
	}
	return hasher.Sum64()
}
