package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/stevemurr/memdb/value"
)

// SqliteStore stores all collections in a single SQLite database.
//
// Tables:
//
//	documents(collection, id, data)  PRIMARY KEY (collection, id)
//	schemas(collection, schema)      PRIMARY KEY (collection)
//
// Documents load in rowid order. Upserts keep the existing row, so a
// document keeps its position across updates.
type SqliteStore struct {
	mu sync.RWMutex
	db *sql.DB
}

func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	)`); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schemas (
		collection TEXT PRIMARY KEY,
		schema TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) Load(ctx context.Context, collection string) ([]value.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT data FROM documents WHERE collection = ? ORDER BY rowid", collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []value.Document
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		doc, err := decodeDoc(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SqliteStore) Put(ctx context.Context, collection string, docs ...value.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := insertDocs(ctx, tx, collection, docs); err != nil {
		return err
	}
	return tx.Commit()
}

func insertDocs(ctx context.Context, tx *sql.Tx, collection string, docs []value.Document) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)
		 ON CONFLICT(collection, id) DO UPDATE SET data = excluded.data`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, doc := range docs {
		raw, err := encodeDoc(doc)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, collection, doc.ID(), raw); err != nil {
			return err
		}
	}
	return nil
}

func (s *SqliteStore) Delete(ctx context.Context, collection string, ids ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	total := 0
	for _, id := range ids {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM documents WHERE collection = ? AND id = ?", collection, id)
		if err != nil {
			return 0, err
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}
	return total, tx.Commit()
}

func (s *SqliteStore) Replace(ctx context.Context, collection string, docs []value.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, "DELETE FROM documents WHERE collection = ?", collection); err != nil {
		return err
	}
	if err := insertDocs(ctx, tx, collection, docs); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SqliteStore) ListCollections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT collection FROM documents ORDER BY collection")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SqliteStore) GetSchema(ctx context.Context, collection string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var raw string
	err := s.db.QueryRowContext(ctx, "SELECT schema FROM schemas WHERE collection = ?", collection).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var schema map[string]any
	if err := json.Unmarshal([]byte(raw), &schema); err != nil {
		return nil, err
	}
	return schema, nil
}

func (s *SqliteStore) PutSchema(ctx context.Context, collection string, schema map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schemas (collection, schema) VALUES (?, ?)
		 ON CONFLICT(collection) DO UPDATE SET schema = excluded.schema`,
		collection, string(b),
	)
	return err
}

func (s *SqliteStore) DeleteSchema(ctx context.Context, collection string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, "DELETE FROM schemas WHERE collection = ?", collection)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
