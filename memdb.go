// Package memdb is an embedded, schema-less document database.
//
// A DB owns one store and hands out named collections backed by it:
//
//	cfg, _ := config.Load(config.DefaultPrefix, "")
//	db, _ := memdb.Open(ctx, cfg)
//	defer db.Close()
//	users, _ := db.Collection(ctx, "users")
//	users.Set(ctx, map[string]any{"name": "ann"})
package memdb

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stevemurr/memdb/collection"
	"github.com/stevemurr/memdb/config"
	"github.com/stevemurr/memdb/logger"
	"github.com/stevemurr/memdb/metrics"
	"github.com/stevemurr/memdb/store"
)

// DB is a set of collections sharing one store.
type DB struct {
	store   store.Store
	log     *slog.Logger
	metrics *metrics.Metrics
	limit   int

	mu          sync.Mutex
	collections map[string]*collection.Collection
}

// Option configures a DB.
type Option func(*DB)

// WithRegisterer registers collection metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(db *DB) { db.metrics = metrics.New(reg) }
}

// WithLogger overrides the logger built from the configuration.
func WithLogger(l *slog.Logger) Option {
	return func(db *DB) {
		if l != nil {
			db.log = l
		}
	}
}

// Open creates the configured store and returns a DB on top of it.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*DB, error) {
	db := &DB{
		log:         logger.New(cfg.Log),
		limit:       cfg.DefaultLimit,
		collections: make(map[string]*collection.Collection),
	}
	for _, opt := range opts {
		opt(db)
	}

	s, err := store.New(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to create store (backend=%s): %w", cfg.Store.Backend, err)
	}
	db.store = s
	db.log.Info("memdb opened", "store", cfg.Store.Backend, "data", cfg.Store.DataDir)
	return db, nil
}

// Collection returns the named collection, loading it on first use.
func (db *DB) Collection(ctx context.Context, name string) (*collection.Collection, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if c, ok := db.collections[name]; ok {
		return c, nil
	}
	c, err := collection.Open(ctx, name, db.store,
		collection.WithLogger(db.log),
		collection.WithMetrics(db.metrics),
		collection.WithDefaultLimit(db.limit),
	)
	if err != nil {
		return nil, err
	}
	db.collections[name] = c
	return c, nil
}

// Collections returns the names of the collections that hold data in the
// store or have been opened, sorted.
func (db *DB) Collections(ctx context.Context) ([]string, error) {
	names, err := db.store.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}
	db.mu.Lock()
	for n := range db.collections {
		if !seen[n] {
			names = append(names, n)
		}
	}
	db.mu.Unlock()
	sort.Strings(names)
	return names, nil
}

// Close releases the store.
func (db *DB) Close() error {
	return db.store.Close()
}
