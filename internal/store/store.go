// Package store provides the durable key-value store backing the agent's
// processed-transaction set, pending credit, and entitlement flags.
package store

import pkgerrors "coinflow/pkg/errors"

// ErrKeyNotFound is returned by Get for absent keys.
var ErrKeyNotFound = pkgerrors.ErrKeyNotFound

// Batch collects writes that must commit as one atomic unit.
type Batch interface {
	Put(key string, value []byte)
	Delete(key string)
}

// Store is the minimal durable storage boundary the agent depends on.
// Implementations must make WriteBatch all-or-nothing: a crash mid-commit
// leaves either every write or none of them.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	WriteBatch(fn func(b Batch) error) error
	// Keys returns all keys with the given prefix.
	Keys(prefix string) ([]string, error)
	Close() error
}
