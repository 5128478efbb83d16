// Package store defines the persistence interface collections write through
// to, and its implementations.
package store

import (
	"context"
	"errors"

	"github.com/stevemurr/memdb/value"
)

// ErrUnknownBackend is returned by New for an unrecognized backend name.
var ErrUnknownBackend = errors.New("unknown store backend")

// Store is the interface that all backing stores must implement.
// It operates on named collections, where each collection holds an ordered
// set of documents keyed by their "id" field.
type Store interface {
	// Load returns every document in a collection in insertion order.
	Load(ctx context.Context, collection string) ([]value.Document, error)

	// Put upserts documents by id. Existing documents keep their position;
	// new ones are appended in the order given.
	Put(ctx context.Context, collection string, docs ...value.Document) error

	// Delete removes documents by id and returns how many existed.
	Delete(ctx context.Context, collection string, ids ...string) (int, error)

	// Replace swaps the whole document set of a collection.
	Replace(ctx context.Context, collection string, docs []value.Document) error

	// ListCollections returns the names of all collections that contain data.
	ListCollections(ctx context.Context) ([]string, error)

	// GetSchema returns the JSON Schema for a collection, or nil.
	GetSchema(ctx context.Context, collection string) (map[string]any, error)

	// PutSchema stores a JSON Schema for a collection.
	PutSchema(ctx context.Context, collection string, schema map[string]any) error

	// DeleteSchema removes the schema for a collection. Returns true if it existed.
	DeleteSchema(ctx context.Context, collection string) (bool, error)

	// Close releases any resources held by the store.
	Close() error
}
