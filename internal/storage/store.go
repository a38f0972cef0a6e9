// Package storage defines the persistence contract every service consumes:
// single-valued resources and keyed collections, with no backend
// distinguished at the call site. Two backends implement it: fsstore (a
// filesystem JSON tree) and sqlstore (a SQL-backed remote KV service).
package storage

import "context"

// Store is the storage contract. Every method is safe for concurrent use.
type Store interface {
	// Open performs one-time backend setup (connecting, creating the root
	// directory, running migrations); it blocks until the backend is
	// ready or returns an error.
	Open(ctx context.Context) error

	// GetResource fetches a single-valued resource. ok is false if absent.
	GetResource(ctx context.Context, name string) (value []byte, ok bool, err error)
	// SetResource writes a single-valued resource through to the backend.
	SetResource(ctx context.Context, name string, value []byte) error
	// ExistsResource reports whether a single-valued resource is present.
	ExistsResource(ctx context.Context, name string) (bool, error)

	// GetKey fetches one entry of a keyed collection. ok is false if absent.
	GetKey(ctx context.Context, collection, key string) (value []byte, ok bool, err error)
	// SetKey writes one entry of a keyed collection through to the backend.
	SetKey(ctx context.Context, collection, key string, value []byte) error
	// DeleteKey removes one entry; found reports whether it existed.
	DeleteKey(ctx context.Context, collection, key string) (found bool, err error)
	// ExistsKey reports whether a collection entry is present.
	ExistsKey(ctx context.Context, collection, key string) (bool, error)

	// Close releases backend resources (connections, file handles).
	Close() error
}
