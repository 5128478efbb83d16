package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/stevemurr/memdb/value"
)

// JsonFileStore stores each collection as a separate JSON file on disk.
//
// Layout:
//
//	data_dir/
//	  _schemas.json   # schema registry
//	  notes.json      # "notes" collection, a JSON array in insertion order
//	  tasks.json      # "tasks" collection
//
// Files are rewritten whole on every change, through a temporary file and
// a rename.
type JsonFileStore struct {
	mu  sync.RWMutex
	dir string
}

func NewJsonFileStore(dir string) (*JsonFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &JsonFileStore{dir: dir}, nil
}

func (s *JsonFileStore) collectionPath(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

func (s *JsonFileStore) schemasPath() string {
	return filepath.Join(s.dir, "_schemas.json")
}

func (s *JsonFileStore) readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (s *JsonFileStore) saveFile(path string, data any) error {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *JsonFileStore) loadCollection(collection string) ([]value.Document, error) {
	data, err := s.readFile(s.collectionPath(collection))
	if err != nil || len(data) == 0 {
		return nil, err
	}
	docs, err := value.DecodeDocuments(data)
	if err != nil {
		return nil, fmt.Errorf("collection %q: %w", collection, err)
	}
	return docs, nil
}

func (s *JsonFileStore) saveCollection(collection string, docs []value.Document) error {
	if docs == nil {
		docs = []value.Document{}
	}
	return s.saveFile(s.collectionPath(collection), docs)
}

func (s *JsonFileStore) loadSchemas() (map[string]any, error) {
	data, err := s.readFile(s.schemasPath())
	if err != nil || len(data) == 0 {
		return map[string]any{}, err
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("schemas: %w", err)
	}
	if result == nil {
		result = map[string]any{}
	}
	return result, nil
}

func (s *JsonFileStore) Load(_ context.Context, collection string) ([]value.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadCollection(collection)
}

func (s *JsonFileStore) Put(_ context.Context, collection string, docs ...value.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, err := s.loadCollection(collection)
	if err != nil {
		return err
	}
	return s.saveCollection(collection, upsert(coll, docs))
}

func (s *JsonFileStore) Delete(_ context.Context, collection string, ids ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	coll, err := s.loadCollection(collection)
	if err != nil {
		return 0, err
	}
	keep, n := without(coll, ids)
	if n == 0 {
		return 0, nil
	}
	return n, s.saveCollection(collection, keep)
}

func (s *JsonFileStore) Replace(_ context.Context, collection string, docs []value.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveCollection(collection, docs)
}

func (s *JsonFileStore) ListCollections(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		name = strings.TrimSuffix(name, ".json")
		docs, err := s.loadCollection(name)
		if err != nil {
			return nil, err
		}
		if len(docs) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *JsonFileStore) GetSchema(_ context.Context, collection string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	schemas, err := s.loadSchemas()
	if err != nil {
		return nil, err
	}
	if schema, ok := schemas[collection].(map[string]any); ok {
		return schema, nil
	}
	return nil, nil
}

func (s *JsonFileStore) PutSchema(_ context.Context, collection string, schema map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	schemas, err := s.loadSchemas()
	if err != nil {
		return err
	}
	schemas[collection] = schema
	return s.saveFile(s.schemasPath(), schemas)
}

func (s *JsonFileStore) DeleteSchema(_ context.Context, collection string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	schemas, err := s.loadSchemas()
	if err != nil {
		return false, err
	}
	if _, ok := schemas[collection]; !ok {
		return false, nil
	}
	delete(schemas, collection)
	return true, s.saveFile(s.schemasPath(), schemas)
}

func (s *JsonFileStore) Close() error { return nil }
