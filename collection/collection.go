// Package collection implements an ordered, schema-less document collection
// with query-driven retrieval and mutation.
//
// A Collection keeps its whole document set in memory and writes every
// mutation through to a store.Store before the change becomes visible.
// Queries always scan the full set; there are no indexes.
//
// Results are independent deep copies unless Options.Live is set, in which
// case the stored documents themselves are returned and mutating them
// mutates the collection.
package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/stevemurr/memdb/metrics"
	"github.com/stevemurr/memdb/schema"
	"github.com/stevemurr/memdb/store"
	"github.com/stevemurr/memdb/value"
)

var (
	// ErrInvalidSet is returned by Set for an unsupported call shape.
	ErrInvalidSet = errors.New("invalid set arguments")
	// ErrDuplicateID is returned when an insert reuses an existing id.
	ErrDuplicateID = errors.New("duplicate document id")
)

// Collection is a named, ordered set of documents backed by a store.
// It is safe for concurrent use.
type Collection struct {
	name  string
	store store.Store

	mu        sync.RWMutex
	docs      []value.Document
	validator *schema.Validator

	newID        func() string
	log          *slog.Logger
	metrics      *metrics.Metrics
	defaultLimit int
}

// Option configures a Collection.
type Option func(*Collection)

// WithIDGenerator sets the function used to assign ids to documents that
// have none. The default generates random UUIDs.
func WithIDGenerator(fn func() string) Option {
	return func(c *Collection) {
		if fn != nil {
			c.newID = fn
		}
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Collection) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics reports operations to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Collection) { c.metrics = m }
}

// WithDefaultLimit sets the limit applied when Options.Limit is nil.
// A negative n removes the default cap.
func WithDefaultLimit(n int) Option {
	return func(c *Collection) {
		if n != 0 {
			c.defaultLimit = n
		}
	}
}

// Open loads the named collection and its schema from st.
func Open(ctx context.Context, name string, st store.Store, opts ...Option) (*Collection, error) {
	c := &Collection{
		name:         name,
		store:        st,
		newID:        uuid.NewString,
		log:          slog.Default(),
		defaultLimit: DefaultLimit,
	}
	for _, opt := range opts {
		opt(c)
	}

	docs, err := st.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load collection %q: %w", name, err)
	}
	raw, err := st.GetSchema(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load schema for %q: %w", name, err)
	}
	v, err := schema.Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("schema for %q: %w", name, err)
	}

	c.docs = docs
	c.validator = v
	c.metrics.SetDocuments(name, len(docs))
	c.log.Debug("collection opened", "collection", name, "documents", len(docs))
	return c, nil
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Len returns the number of stored documents.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// All returns a deep copy of every stored document in insertion order.
func (c *Collection) All() []value.Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]value.Document, len(c.docs))
	for i, d := range c.docs {
		out[i] = d.Clone()
	}
	return out
}

// Schema returns a copy of the JSON Schema documents are validated against,
// or nil.
func (c *Collection) Schema() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validator.Raw()
}

// SetSchema compiles and stores a JSON Schema for the collection. Later
// inserts, updates and replaces are validated against it; documents already
// stored are not. A nil schema removes validation.
func (c *Collection) SetSchema(ctx context.Context, raw map[string]any) error {
	v, err := schema.Compile(raw)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if v == nil {
		if _, err := c.store.DeleteSchema(ctx, c.name); err != nil {
			return c.persistFailed("delete schema", err)
		}
	} else if err := c.store.PutSchema(ctx, c.name, raw); err != nil {
		return c.persistFailed("put schema", err)
	}
	c.validator = v
	return nil
}

func (c *Collection) persistFailed(op string, err error) error {
	c.log.Error("persist failed", "collection", c.name, "op", op, "error", err)
	return fmt.Errorf("%s %q: %w", op, c.name, err)
}
