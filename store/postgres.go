package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stevemurr/memdb/value"
)

// PostgresStore stores all collections in a PostgreSQL database.
//
// Tables:
//
//	memdb_documents(collection, id, seq, data)  PRIMARY KEY (collection, id)
//	memdb_schemas(collection, schema)           PRIMARY KEY (collection)
//
// seq is assigned on first insert and kept by upserts, so it records
// insertion order.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS memdb_documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			seq BIGSERIAL,
			data TEXT NOT NULL,
			PRIMARY KEY (collection, id)
		)`); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS memdb_schemas (
			collection TEXT PRIMARY KEY,
			schema TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create schemas table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, collection string) ([]value.Document, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT data FROM memdb_documents WHERE collection = $1 ORDER BY seq", collection)
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

const pgUpsert = `INSERT INTO memdb_documents (collection, id, data) VALUES ($1, $2, $3)
	ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data`

func pgInsertDocs(ctx context.Context, tx pgx.Tx, collection string, docs []value.Document) error {
	for _, doc := range docs {
		raw, err := encodeDoc(doc)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, pgUpsert, collection, doc.ID(), raw); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, collection string, docs ...value.Document) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := pgInsertDocs(ctx, tx, collection, docs); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Delete(ctx context.Context, collection string, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM memdb_documents WHERE collection = $1 AND id = ANY($2)", collection, ids)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Replace(ctx context.Context, collection string, docs []value.Document) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, "DELETE FROM memdb_documents WHERE collection = $1", collection); err != nil {
		return err
	}
	if err := pgInsertDocs(ctx, tx, collection, docs); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT DISTINCT collection FROM memdb_documents ORDER BY collection")
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

func (s *PostgresStore) GetSchema(ctx context.Context, collection string) (map[string]any, error) {
	var raw string
	err := s.pool.QueryRow(ctx, "SELECT schema FROM memdb_schemas WHERE collection = $1", collection).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
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

func (s *PostgresStore) PutSchema(ctx context.Context, collection string, schema map[string]any) error {
	b, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO memdb_schemas (collection, schema) VALUES ($1, $2)
		 ON CONFLICT (collection) DO UPDATE SET schema = EXCLUDED.schema`,
		collection, string(b),
	)
	return err
}

func (s *PostgresStore) DeleteSchema(ctx context.Context, collection string) (bool, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM memdb_schemas WHERE collection = $1", collection)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
