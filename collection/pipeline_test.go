package collection_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/memdb/collection"
	"github.com/stevemurr/memdb/query"
	"github.com/stevemurr/memdb/value"
)

func seed(t *testing.T, c *collection.Collection, docs ...map[string]any) {
	t.Helper()
	in := make([]value.Document, len(docs))
	for i, d := range docs {
		in[i] = value.Doc(d)
	}
	_, err := c.Insert(context.Background(), in...)
	require.NoError(t, err)
}

func TestGetPreservesInsertionOrder(t *testing.T) {
	c, _ := open(t)
	seed(t, c, map[string]any{"n": 3}, map[string]any{"n": 1}, map[string]any{"n": 2})

	got := c.Get(query.All, collection.Options{})
	assert.Equal(t, []any{3.0, 1.0, 2.0}, field(got, "n"))
}

func TestSortSkipLimit(t *testing.T) {
	c, _ := open(t)
	for n := 1; n <= 5; n++ {
		seed(t, c, map[string]any{"n": n})
	}

	got := c.Get(query.All, collection.Options{
		Sort:  []collection.SortKey{collection.Desc("n")},
		Skip:  2,
		Limit: collection.Limit(2),
	})
	assert.Equal(t, []any{3.0, 2.0}, field(got, "n"))

	assert.Empty(t, c.Get(query.All, collection.Options{Skip: 10}))
	assert.Len(t, c.Get(query.All, collection.Options{Skip: -1}), 5)
}

func TestSortIsStable(t *testing.T) {
	c, _ := open(t)
	seed(t, c,
		map[string]any{"a": 1, "tag": "x"},
		map[string]any{"a": 0, "tag": "z"},
		map[string]any{"a": 1, "tag": "y"},
	)

	got := c.Get(query.All, collection.Options{Sort: []collection.SortKey{collection.Asc("a")}})
	assert.Equal(t, []any{"z", "x", "y"}, field(got, "tag"))
}

func TestSortMultipleKeys(t *testing.T) {
	c, _ := open(t)
	seed(t, c,
		map[string]any{"g": "b", "n": 1},
		map[string]any{"g": "a", "n": 1},
		map[string]any{"g": "a", "n": 2},
	)

	got := c.Get(query.All, collection.Options{Sort: []collection.SortKey{collection.Asc("g"), collection.Desc("n")}})
	assert.Equal(t, []any{"a", "a", "b"}, field(got, "g"))
	assert.Equal(t, []any{2.0, 1.0, 1.0}, field(got, "n"))
}

func TestSortMissingLast(t *testing.T) {
	c, _ := open(t)
	seed(t, c,
		map[string]any{"tag": "none"},
		map[string]any{"tag": "two", "n": 2},
		map[string]any{"tag": "one", "n": 1},
	)

	got := c.Get(query.All, collection.Options{Sort: []collection.SortKey{collection.Asc("n")}})
	assert.Equal(t, []any{"one", "two", "none"}, field(got, "tag"))
}

func TestSortByDate(t *testing.T) {
	c, _ := open(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seed(t, c,
		map[string]any{"tag": "late", "at": base.Add(time.Hour)},
		map[string]any{"tag": "early", "at": base},
	)

	got := c.Get(query.All, collection.Options{Sort: []collection.SortKey{collection.Asc("at")}})
	assert.Equal(t, []any{"early", "late"}, field(got, "tag"))
}

func TestDefaultLimit(t *testing.T) {
	c, _ := open(t)
	docs := make([]value.Document, 1005)
	for i := range docs {
		docs[i] = value.Document{"n": value.Number(i)}
	}
	_, err := c.Insert(context.Background(), docs...)
	require.NoError(t, err)

	assert.Len(t, c.Get(query.All, collection.Options{}), collection.DefaultLimit)
	assert.Len(t, c.Get(query.All, collection.Options{Limit: collection.Limit(collection.Unlimited)}), 1005)
	assert.Equal(t, 1005, c.Count(query.All))

	small, _ := open(t, collection.WithDefaultLimit(10))
	_, err = small.Insert(context.Background(), docs[:12]...)
	require.NoError(t, err)
	assert.Len(t, small.Get(query.All, collection.Options{}), 10)
	assert.Len(t, small.Get(query.All, collection.Options{Limit: collection.Limit(1)}), 1)
}

func TestLimitZeroReturnsNothing(t *testing.T) {
	c, _ := open(t)
	seed(t, c, map[string]any{"n": 1}, map[string]any{"n": 2})

	assert.Empty(t, c.Get(query.All, collection.Options{Limit: collection.Limit(0)}))
	assert.Len(t, c.Get(query.All, collection.Options{}), 2)

	called := false
	err := c.Stream(query.All, collection.Options{Limit: collection.Limit(0)}, func([]value.Document) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestCountMatchesGet(t *testing.T) {
	c, _ := open(t)
	for n := 0; n < 50; n++ {
		seed(t, c, map[string]any{"n": n, "even": n%2 == 0})
	}

	queries := []query.Query{
		query.All,
		q(map[string]any{"even": true}),
		q(map[string]any{"n": map[string]any{"$gte": 10, "$lt": 20}}),
		q(map[string]any{"missing": map[string]any{"$exists": true}}),
	}
	for _, qq := range queries {
		assert.Equal(t, len(c.Get(qq, collection.Options{Limit: collection.Limit(collection.Unlimited)})), c.Count(qq))
	}
}

func TestProjection(t *testing.T) {
	c, _ := open(t)
	seed(t, c, map[string]any{"a": 1, "b": 2, "c": 3})

	inc := c.Get(query.All, collection.Options{Fields: collection.Projection{"a": true}})
	require.Len(t, inc, 1)
	assert.Equal(t, value.Doc(map[string]any{"id": "id-1", "a": 1}), inc[0])

	incNoID := c.Get(query.All, collection.Options{Fields: collection.Projection{"a": true, "id": false}})
	assert.Equal(t, value.Doc(map[string]any{"id": "id-1", "a": 1}), incNoID[0], "id is always kept in inclusive mode")

	exc := c.Get(query.All, collection.Options{Fields: collection.Projection{"b": false}})
	assert.Equal(t, value.Doc(map[string]any{"id": "id-1", "a": 1, "c": 3}), exc[0])

	missing := c.Get(query.All, collection.Options{Fields: collection.Projection{"zzz": true}})
	assert.Equal(t, value.Doc(map[string]any{"id": "id-1"}), missing[0])
}

func TestProjectionDoesNotShareNestedValues(t *testing.T) {
	c, _ := open(t)
	seed(t, c, map[string]any{"nested": map[string]any{"k": 1}})

	got := c.Get(query.All, collection.Options{Fields: collection.Projection{"nested": true}})
	got[0]["nested"].(value.Mapping)["k"] = value.Number(2)

	assert.Equal(t, 1, c.Count(q(map[string]any{"nested": map[string]any{"$eq": map[string]any{"k": 1}}})))
}

func TestStreamBatches(t *testing.T) {
	c, _ := open(t)
	for n := 1; n <= 7; n++ {
		seed(t, c, map[string]any{"n": n})
	}

	var sizes []int
	var seen []any
	err := c.Stream(query.All, collection.Options{Batch: 3}, func(batch []value.Document) error {
		sizes = append(sizes, len(batch))
		seen = append(seen, field(batch, "n")...)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 1}, sizes)
	assert.Len(t, seen, 7)

	sizes = nil
	err = c.Stream(query.All, collection.Options{Skip: 1, Limit: collection.Limit(4)}, func(batch []value.Document) error {
		sizes = append(sizes, len(batch))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{4}, sizes, "batch zero delivers one chunk")
}

func TestStreamNoMatches(t *testing.T) {
	c, _ := open(t)
	called := false
	err := c.Stream(query.All, collection.Options{}, func([]value.Document) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestStreamStopsOnError(t *testing.T) {
	c, _ := open(t)
	for n := 1; n <= 4; n++ {
		seed(t, c, map[string]any{"n": n})
	}
	stop := errors.New("stop")
	calls := 0
	err := c.Stream(query.All, collection.Options{Batch: 1}, func([]value.Document) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestStreamCallbackMayMutate(t *testing.T) {
	c, _ := open(t)
	seed(t, c, map[string]any{"n": 1}, map[string]any{"n": 2})

	err := c.Stream(query.All, collection.Options{Batch: 1}, func(batch []value.Document) error {
		_, err := c.Update(context.Background(), q(map[string]any{"id": batch[0].ID()}), value.Mapping{"seen": value.Bool(true)})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Count(q(map[string]any{"seen": true})))
}

func TestPrototypeKeyIgnored(t *testing.T) {
	c, _ := open(t)
	seed(t, c, map[string]any{"a": 1}, map[string]any{"a": 2})

	got := c.Get(q(map[string]any{"__proto__": map[string]any{"polluted": true}}), collection.Options{})
	assert.Len(t, got, 2)

	fresh := value.Document{}
	_, ok := fresh["polluted"]
	assert.False(t, ok)
	assert.Zero(t, c.Count(q(map[string]any{"polluted": true})))
}

func TestRegexOverCollection(t *testing.T) {
	c, _ := open(t)
	seed(t, c, map[string]any{"s": "apple"}, map[string]any{"s": "banana"}, map[string]any{"s": 42})

	assert.Equal(t, 1, c.Count(q(map[string]any{"s": map[string]any{"$regex": "^ap"}})))
	assert.Zero(t, c.Count(q(map[string]any{"s": map[string]any{"$regex": "[unclosed"}})))
	assert.Equal(t, 2, c.Count(q(map[string]any{"s": map[string]any{"$regex": "a"}})), "non-string values never match")
}
