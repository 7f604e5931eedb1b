// Package store persists small key/value records such as the ParameterKey
// and notification registrations across restarts.
package store

import (
	"fmt"
	"strings"
)

// Store is a key/value store. Get of a missing key returns nil and no error.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	// List returns all records whose key starts with prefix, in key order.
	List(prefix string) ([]Record, error)

	// Begin starts a write transaction. The returned Store only accepts
	// Put and Delete until Commit or Rollback.
	Begin() (Store, error)
	Commit() error
	Rollback() error

	Close() error
}

type Record struct {
	Key   string
	Value []byte
}

// Open opens a store from a URI:
//
//	mem://              volatile, for tests and diskless devices
//	badger:///var/lib/cwmpd
//	sqlite:///var/lib/cwmpd/state.db
func Open(uri string) (Store, error) {
	scheme, path, ok := strings.Cut(uri, "://")
	if !ok && uri != "" {
		return nil, fmt.Errorf("invalid store uri %q", uri)
	}

	switch scheme {
	case "", "mem":
		return NewMemoryStore(), nil
	case "badger":
		if path == "" {
			return nil, fmt.Errorf("badger store requires a directory")
		}
		return NewBadgerStore(path)
	case "sqlite":
		if path == "" {
			return nil, fmt.Errorf("sqlite store requires a file")
		}
		return NewSqliteStore(path)
	}
	return nil, fmt.Errorf("unsupported store scheme %q", scheme)
}
