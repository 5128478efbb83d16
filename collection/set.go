package collection

import (
	"context"
	"fmt"

	"github.com/stevemurr/memdb/query"
	"github.com/stevemurr/memdb/value"
)

type remove struct{}

// Remove passed as the change to Set deletes the matching documents.
var Remove = remove{}

// SetResult reports what a Set call did.
type SetResult struct {
	// Docs holds copies of the inserted documents.
	Docs []value.Document
	// ID is the id of a single inserted document.
	ID string
	// N is the number of documents inserted, updated or deleted.
	N int
}

// Set is the combined mutation entry point. Its behavior depends on the
// call shape:
//
//	Set(ctx, []doc)              insert every document
//	Set(ctx, doc)                insert one document
//	Set(ctx, query, Remove)      delete the matching documents
//	Set(ctx, query, patch)       shallow-merge patch into the matches
//
// Documents and patches may be value.Mapping or map[string]any; a query is
// anything query.Parse accepts. A nil change is treated as Remove, so
// Set(ctx, nil, nil) clears the collection. When a map[string]any document
// without an id is inserted, the assigned id is written back into it.
func (c *Collection) Set(ctx context.Context, target any, change ...any) (SetResult, error) {
	switch len(change) {
	case 0:
		return c.setInsert(ctx, target)
	case 1:
	default:
		return SetResult{}, fmt.Errorf("%w: %d change arguments", ErrInvalidSet, len(change))
	}

	q, err := query.Parse(target)
	if err != nil {
		return SetResult{}, err
	}
	switch ch := change[0].(type) {
	case nil, remove:
		n, err := c.Delete(ctx, q)
		return SetResult{N: n}, err
	case value.Mapping:
		n, err := c.Update(ctx, q, ch)
		return SetResult{N: n}, err
	case map[string]any:
		patch, err := value.MappingFrom(ch)
		if err != nil {
			return SetResult{}, fmt.Errorf("%w: %v", ErrInvalidSet, err)
		}
		n, err := c.Update(ctx, q, patch)
		return SetResult{N: n}, err
	}
	return SetResult{}, fmt.Errorf("%w: change of type %T", ErrInvalidSet, change[0])
}

func (c *Collection) setInsert(ctx context.Context, target any) (SetResult, error) {
	switch t := target.(type) {
	case value.Mapping:
		docs, err := c.Insert(ctx, t)
		if err != nil {
			return SetResult{}, err
		}
		return SetResult{Docs: docs, ID: docs[0].ID(), N: 1}, nil
	case map[string]any:
		docs, err := c.insertNative(ctx, []map[string]any{t})
		if err != nil {
			return SetResult{}, err
		}
		return SetResult{Docs: docs, ID: docs[0].ID(), N: 1}, nil
	case []value.Document:
		docs, err := c.Insert(ctx, t...)
		if err != nil {
			return SetResult{}, err
		}
		return SetResult{Docs: docs, N: len(docs)}, nil
	case []map[string]any:
		docs, err := c.insertNative(ctx, t)
		if err != nil {
			return SetResult{}, err
		}
		return SetResult{Docs: docs, N: len(docs)}, nil
	case []any:
		natives := make([]map[string]any, len(t))
		for i, e := range t {
			m, ok := e.(map[string]any)
			if !ok {
				return c.setInsertMixed(ctx, t)
			}
			natives[i] = m
		}
		docs, err := c.insertNative(ctx, natives)
		if err != nil {
			return SetResult{}, err
		}
		return SetResult{Docs: docs, N: len(docs)}, nil
	case value.Sequence:
		return c.setInsertMixed(ctx, anySlice(t))
	}
	return SetResult{}, fmt.Errorf("%w: cannot insert %T", ErrInvalidSet, target)
}

// setInsertMixed inserts a list whose elements are value.Mapping or
// map[string]any.
func (c *Collection) setInsertMixed(ctx context.Context, list []any) (SetResult, error) {
	docs := make([]value.Document, len(list))
	for i, e := range list {
		switch d := e.(type) {
		case value.Mapping:
			docs[i] = d
		case map[string]any:
			m, err := value.MappingFrom(d)
			if err != nil {
				return SetResult{}, fmt.Errorf("%w: element %d: %v", ErrInvalidSet, i, err)
			}
			docs[i] = m
		default:
			return SetResult{}, fmt.Errorf("%w: element %d is %T", ErrInvalidSet, i, e)
		}
	}
	out, err := c.Insert(ctx, docs...)
	if err != nil {
		return SetResult{}, err
	}
	for i, e := range list {
		if m, ok := e.(map[string]any); ok {
			writeBackNative(m, out[i])
		}
	}
	return SetResult{Docs: out, N: len(out)}, nil
}

func (c *Collection) insertNative(ctx context.Context, natives []map[string]any) ([]value.Document, error) {
	docs := make([]value.Document, len(natives))
	for i, n := range natives {
		m, err := value.MappingFrom(n)
		if err != nil {
			return nil, fmt.Errorf("%w: document %d: %v", ErrInvalidSet, i, err)
		}
		docs[i] = m
	}
	out, err := c.Insert(ctx, docs...)
	if err != nil {
		return nil, err
	}
	for i, n := range natives {
		writeBackNative(n, out[i])
	}
	return out, nil
}

func writeBackNative(m map[string]any, stored value.Document) {
	if m == nil {
		return
	}
	if v, err := value.FromAny(m[value.IDField]); err == nil && (value.Mapping{value.IDField: v}).HasID() {
		return
	}
	m[value.IDField] = value.ToAny(stored[value.IDField])
}

func anySlice(s value.Sequence) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
