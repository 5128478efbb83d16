package store

import (
	"context"
	"sort"
	"sync"

	"github.com/stevemurr/memdb/value"
)

// MemoryStore keeps everything in memory. Data is lost on restart.
// Safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]value.Document
	schemas     map[string]map[string]any
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string][]value.Document),
		schemas:     make(map[string]map[string]any),
	}
}

func cloneAll(docs []value.Document) []value.Document {
	out := make([]value.Document, len(docs))
	for i, d := range docs {
		out[i] = d.Clone()
	}
	return out
}

// upsert merges docs into coll by id and returns the resulting slice.
func upsert(coll []value.Document, docs []value.Document) []value.Document {
	pos := make(map[string]int, len(coll))
	for i, d := range coll {
		pos[d.ID()] = i
	}
	for _, d := range docs {
		if i, ok := pos[d.ID()]; ok {
			coll[i] = d
			continue
		}
		pos[d.ID()] = len(coll)
		coll = append(coll, d)
	}
	return coll
}

// without drops every document whose id is in ids and reports how many went.
func without(coll []value.Document, ids []string) ([]value.Document, int) {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	keep := make([]value.Document, 0, len(coll))
	for _, d := range coll {
		if _, ok := drop[d.ID()]; ok {
			continue
		}
		keep = append(keep, d)
	}
	return keep, len(coll) - len(keep)
}

func (m *MemoryStore) Load(_ context.Context, collection string) ([]value.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneAll(m.collections[collection]), nil
}

func (m *MemoryStore) Put(_ context.Context, collection string, docs ...value.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collection] = upsert(m.collections[collection], cloneAll(docs))
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, collection string, ids ...string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	coll, ok := m.collections[collection]
	if !ok {
		return 0, nil
	}
	keep, n := without(coll, ids)
	m.collections[collection] = keep
	return n, nil
}

func (m *MemoryStore) Replace(_ context.Context, collection string, docs []value.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collection] = cloneAll(docs)
	return nil
}

func (m *MemoryStore) ListCollections(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for name, docs := range m.collections {
		if len(docs) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) GetSchema(_ context.Context, collection string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schemas[collection]
	if !ok {
		return nil, nil
	}
	return copySchema(s)
}

func (m *MemoryStore) PutSchema(_ context.Context, collection string, schema map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, err := copySchema(schema)
	if err != nil {
		return err
	}
	m.schemas[collection] = cp
	return nil
}

func (m *MemoryStore) DeleteSchema(_ context.Context, collection string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schemas[collection]; !ok {
		return false, nil
	}
	delete(m.schemas, collection)
	return true, nil
}

func (m *MemoryStore) Close() error { return nil }
