package collection_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/memdb/collection"
	"github.com/stevemurr/memdb/logger"
	"github.com/stevemurr/memdb/metrics"
	"github.com/stevemurr/memdb/query"
	"github.com/stevemurr/memdb/schema"
	"github.com/stevemurr/memdb/store"
	"github.com/stevemurr/memdb/value"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func open(t *testing.T, opts ...collection.Option) (*collection.Collection, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	opts = append([]collection.Option{
		collection.WithIDGenerator(sequentialIDs()),
		collection.WithLogger(logger.Discard()),
	}, opts...)
	c, err := collection.Open(context.Background(), "test", st, opts...)
	require.NoError(t, err)
	return c, st
}

func q(m map[string]any) query.Query { return query.MustParse(m) }

func field(docs []value.Document, name string) []any {
	out := make([]any, len(docs))
	for i, d := range docs {
		out[i] = value.ToAny(d[name])
	}
	return out
}

func TestOpenLoadsDocumentsAndSchema(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	require.NoError(t, st.Put(ctx, "users", value.Doc(map[string]any{"id": "u1", "name": "ann"})))
	require.NoError(t, st.PutSchema(ctx, "users", map[string]any{
		"type":     "object",
		"required": []any{"name"},
	}))

	c, err := collection.Open(ctx, "users", st, collection.WithLogger(logger.Discard()))
	require.NoError(t, err)
	assert.Equal(t, "users", c.Name())
	assert.Equal(t, 1, c.Len())
	assert.NotNil(t, c.Schema())

	_, err = c.Insert(ctx, value.Doc(map[string]any{"age": 3}))
	assert.ErrorIs(t, err, schema.ErrInvalidDocument)
}

func TestInsertAssignsIDs(t *testing.T) {
	ctx := context.Background()
	c, st := open(t)

	doc := value.Doc(map[string]any{"name": "a"})
	id, err := c.InsertOne(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, "id-1", id)
	assert.Equal(t, value.Text("id-1"), doc["id"], "id is written into the caller's document")

	explicit := value.Doc(map[string]any{"id": "custom", "name": "b"})
	id, err = c.InsertOne(ctx, explicit)
	require.NoError(t, err)
	assert.Equal(t, "custom", id)

	persisted, err := st.Load(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, []any{"id-1", "custom"}, field(persisted, "id"))
}

func TestInsertUsesUUIDByDefault(t *testing.T) {
	c, err := collection.Open(context.Background(), "test", store.NewMemoryStore(), collection.WithLogger(logger.Discard()))
	require.NoError(t, err)

	a, err := c.InsertOne(context.Background(), value.Document{})
	require.NoError(t, err)
	b, err := c.InsertOne(context.Background(), value.Document{})
	require.NoError(t, err)
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestInsertRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := open(t)

	doc := value.Doc(map[string]any{"name": "x", "nested": map[string]any{"k": []any{1, "two"}}})
	id, err := c.InsertOne(ctx, doc)
	require.NoError(t, err)

	got := c.Get(q(map[string]any{"id": id}), collection.Options{})
	require.Len(t, got, 1)
	if diff := cmp.Diff(doc, got[0]); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestInsertStoresOwnCopy(t *testing.T) {
	ctx := context.Background()
	c, _ := open(t)

	doc := value.Doc(map[string]any{"n": 1, "gone": nil})
	doc["gone"] = value.Unset
	_, err := c.Insert(ctx, doc)
	require.NoError(t, err)

	doc["n"] = value.Number(2)
	all := c.All()
	require.Len(t, all, 1)
	assert.Equal(t, value.Number(1), all[0]["n"])
	_, ok := all[0]["gone"]
	assert.False(t, ok, "unset fields are not stored")
}

func TestInsertDuplicateID(t *testing.T) {
	ctx := context.Background()
	c, _ := open(t)

	_, err := c.Insert(ctx, value.Doc(map[string]any{"id": "a"}))
	require.NoError(t, err)

	_, err = c.Insert(ctx, value.Doc(map[string]any{"id": "a"}))
	assert.ErrorIs(t, err, collection.ErrDuplicateID)

	_, err = c.Insert(ctx, value.Doc(map[string]any{"id": "b"}), value.Doc(map[string]any{"id": "b"}))
	assert.ErrorIs(t, err, collection.ErrDuplicateID)
	assert.Equal(t, 1, c.Len(), "a rejected batch inserts nothing")
}

func TestUpdateShallowMerge(t *testing.T) {
	ctx := context.Background()
	c, st := open(t)

	_, err := c.Insert(ctx,
		value.Doc(map[string]any{"a": 1, "b": 2, "nested": map[string]any{"x": 1, "y": 2}}),
		value.Doc(map[string]any{"a": 2, "b": 3}),
	)
	require.NoError(t, err)

	n, err := c.Update(ctx, q(map[string]any{"a": 1}), value.Mapping{
		"b":      value.Unset,
		"c":      value.Text("new"),
		"nested": value.Doc(map[string]any{"x": 9}),
		"id":     value.Text("ignored"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := c.Get(q(map[string]any{"a": 1}), collection.Options{})
	require.Len(t, got, 1)
	want := value.Doc(map[string]any{"id": "id-1", "a": 1, "c": "new", "nested": map[string]any{"x": 9}})
	if diff := cmp.Diff(want, got[0]); diff != "" {
		t.Fatalf("update mismatch (-want +got):\n%s", diff)
	}

	assert.Empty(t, c.Get(q(map[string]any{"b": map[string]any{"$exists": true}, "a": 1}), collection.Options{}))

	persisted, err := st.Load(ctx, "test")
	require.NoError(t, err)
	if diff := cmp.Diff(want, persisted[0]); diff != "" {
		t.Fatalf("persisted mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateNoMatch(t *testing.T) {
	ctx := context.Background()
	c, _ := open(t)
	_, err := c.Insert(ctx, value.Doc(map[string]any{"a": 1}))
	require.NoError(t, err)

	n, err := c.Update(ctx, q(map[string]any{"a": 99}), value.Mapping{"b": value.Number(1)})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdateValidatesSchema(t *testing.T) {
	ctx := context.Background()
	c, _ := open(t)
	require.NoError(t, c.SetSchema(ctx, map[string]any{
		"type":       "object",
		"properties": map[string]any{"age": map[string]any{"type": "number"}},
	}))
	_, err := c.Insert(ctx, value.Doc(map[string]any{"age": 1}))
	require.NoError(t, err)

	_, err = c.Update(ctx, query.All, value.Mapping{"age": value.Text("old")})
	assert.ErrorIs(t, err, schema.ErrInvalidDocument)
	assert.Equal(t, value.Number(1), c.All()[0]["age"])

	require.NoError(t, c.SetSchema(ctx, nil))
	_, err = c.Update(ctx, query.All, value.Mapping{"age": value.Text("old")})
	assert.NoError(t, err)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	c, st := open(t)
	_, err := c.Insert(ctx,
		value.Doc(map[string]any{"n": 1}),
		value.Doc(map[string]any{"n": 2}),
		value.Doc(map[string]any{"n": 3}),
	)
	require.NoError(t, err)

	n, err := c.Delete(ctx, q(map[string]any{"n": map[string]any{"$gte": 2}}))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.Delete(ctx, q(map[string]any{"n": 42}))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 1, c.Len())

	persisted, err := st.Load(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, []any{1.0}, field(persisted, "n"))

	n, err = c.Delete(ctx, query.All)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, c.Len())
}

func TestDeleteKeepsEarlierSnapshots(t *testing.T) {
	ctx := context.Background()
	c, _ := open(t)
	_, err := c.Insert(ctx, value.Doc(map[string]any{"n": 1}), value.Doc(map[string]any{"n": 2}))
	require.NoError(t, err)

	copies := c.Get(query.All, collection.Options{})
	live := c.Get(query.All, collection.Options{Live: true})

	_, err = c.Delete(ctx, q(map[string]any{"n": 1}))
	require.NoError(t, err)

	assert.Equal(t, []any{1.0, 2.0}, field(copies, "n"))
	assert.Equal(t, []any{1.0, 2.0}, field(live, "n"))
}

func TestReplace(t *testing.T) {
	ctx := context.Background()
	c, st := open(t)
	_, err := c.Insert(ctx, value.Doc(map[string]any{"n": 1}))
	require.NoError(t, err)

	docs := []value.Document{value.Doc(map[string]any{"n": 7}), value.Doc(map[string]any{"id": "keep", "n": 8})}
	require.NoError(t, c.Replace(ctx, docs))
	assert.Equal(t, value.Text("id-2"), docs[0]["id"])

	assert.Equal(t, []any{"id-2", "keep"}, field(c.All(), "id"))
	persisted, err := st.Load(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, []any{7.0, 8.0}, field(persisted, "n"))
}

func TestLiveHandles(t *testing.T) {
	ctx := context.Background()
	c, _ := open(t)
	_, err := c.Insert(ctx, value.Doc(map[string]any{"n": 1}))
	require.NoError(t, err)

	cp := c.Get(query.All, collection.Options{})
	cp[0]["n"] = value.Number(100)
	assert.Equal(t, 0, c.Count(q(map[string]any{"n": 100})), "copies do not write through")

	live := c.Get(query.All, collection.Options{Live: true})
	live[0]["n"] = value.Number(100)
	assert.Equal(t, 1, c.Count(q(map[string]any{"n": 100})), "live handles write through")

	_, err = c.Update(ctx, query.All, value.Mapping{"m": value.Number(5)})
	require.NoError(t, err)
	assert.Equal(t, value.Number(5), live[0]["m"], "updates are visible through live handles")
}

type failingStore struct {
	*store.MemoryStore
}

var errDisk = errors.New("disk full")

func (failingStore) Put(context.Context, string, ...value.Document) error { return errDisk }

func (failingStore) Delete(context.Context, string, ...string) (int, error) { return 0, errDisk }

func (failingStore) Replace(context.Context, string, []value.Document) error { return errDisk }

func TestPersistFailureLeavesMemoryUnchanged(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	require.NoError(t, mem.Put(ctx, "test", value.Doc(map[string]any{"id": "a", "n": 1})))

	c, err := collection.Open(ctx, "test", failingStore{mem}, collection.WithLogger(logger.Discard()))
	require.NoError(t, err)

	_, err = c.Insert(ctx, value.Doc(map[string]any{"n": 2}))
	assert.ErrorIs(t, err, errDisk)

	_, err = c.Update(ctx, query.All, value.Mapping{"n": value.Number(3)})
	assert.ErrorIs(t, err, errDisk)

	_, err = c.Delete(ctx, query.All)
	assert.ErrorIs(t, err, errDisk)

	err = c.Replace(ctx, nil)
	assert.ErrorIs(t, err, errDisk)

	all := c.All()
	require.Len(t, all, 1)
	assert.Equal(t, value.Number(1), all[0]["n"])
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c, _ := open(t, collection.WithMetrics(m))

	_, err := c.Insert(ctx, value.Doc(map[string]any{"n": 1}), value.Doc(map[string]any{"n": 2}))
	require.NoError(t, err)
	_, err = c.Delete(ctx, q(map[string]any{"n": 1}))
	require.NoError(t, err)
	c.Get(query.All, collection.Options{})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("test", "insert", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("test", "get", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AffectedTotal.WithLabelValues("test", "insert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Documents.WithLabelValues("test")))
}

func TestDocumentsWithoutIDCanBeDeleted(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	require.NoError(t, mem.Replace(ctx, "test", []value.Document{
		value.Doc(map[string]any{"n": 1}),
		value.Doc(map[string]any{"id": "b", "n": 2}),
	}))
	c, err := collection.Open(ctx, "test", mem, collection.WithLogger(logger.Discard()))
	require.NoError(t, err)

	n, err := c.Delete(ctx, q(map[string]any{"n": 1}))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	persisted, err := mem.Load(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, []any{"b"}, field(persisted, "id"))
}

func TestDocumentsWithoutIDCanBeUpdated(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	require.NoError(t, mem.Replace(ctx, "test", []value.Document{
		value.Doc(map[string]any{"n": 1}),
		value.Doc(map[string]any{"n": 2}),
		value.Doc(map[string]any{"id": "c", "n": 3}),
	}))
	c, err := collection.Open(ctx, "test", mem, collection.WithLogger(logger.Discard()))
	require.NoError(t, err)

	n, err := c.Update(ctx, q(map[string]any{"n": map[string]any{"$lt": 3}}), value.Mapping{"tag": value.Text("x")})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	persisted, err := mem.Load(ctx, "test")
	require.NoError(t, err)
	if diff := cmp.Diff(c.All(), persisted); diff != "" {
		t.Fatalf("store diverged from memory (-memory +store):\n%s", diff)
	}
	assert.Equal(t, []any{"x", "x", nil}, field(persisted, "tag"))
}

func TestNonFiniteNumbersRejected(t *testing.T) {
	ctx := context.Background()
	c, st := open(t)

	_, err := c.Insert(ctx, value.Document{"n": value.Number(math.NaN())})
	assert.ErrorIs(t, err, value.ErrNonFinite)

	_, err = c.Insert(ctx, value.Document{"list": value.Sequence{value.Number(math.Inf(-1))}})
	assert.ErrorIs(t, err, value.ErrNonFinite)

	_, err = c.Insert(ctx, value.Doc(map[string]any{"n": 1}))
	require.NoError(t, err)
	_, err = c.Update(ctx, query.All, value.Mapping{"n": value.Number(math.Inf(1))})
	assert.ErrorIs(t, err, value.ErrNonFinite)

	persisted, err := st.Load(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, []any{1.0}, field(persisted, "n"))
}

func TestSchemaReturnsCopy(t *testing.T) {
	ctx := context.Background()
	c, _ := open(t)
	require.NoError(t, c.SetSchema(ctx, map[string]any{
		"type":     "object",
		"required": []any{"name"},
	}))

	got := c.Schema()
	got["required"] = []any{}
	delete(got, "type")

	assert.Equal(t, []any{"name"}, c.Schema()["required"])
	_, err := c.Insert(ctx, value.Doc(map[string]any{"age": 1}))
	assert.ErrorIs(t, err, schema.ErrInvalidDocument)
}
