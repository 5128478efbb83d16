package collection

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/stevemurr/memdb/query"
	"github.com/stevemurr/memdb/value"
)

// Insert appends docs to the collection. Documents without an id get one
// from the id generator, and the id is also written into the caller's
// document. The collection stores its own copy with Unset fields dropped;
// the returned documents are copies of what was stored.
func (c *Collection) Insert(ctx context.Context, docs ...value.Document) (out []value.Document, err error) {
	start := time.Now()
	defer func() { c.metrics.Observe(c.name, "insert", start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	stored, err := c.prepare(docs, c.idSet())
	if err != nil {
		return nil, err
	}
	if len(stored) == 0 {
		return nil, nil
	}
	if err := c.store.Put(ctx, c.name, stored...); err != nil {
		return nil, c.persistFailed("insert", err)
	}

	c.docs = append(c.docs, stored...)
	writeBackIDs(docs, stored)

	out = make([]value.Document, len(stored))
	for i, d := range stored {
		out[i] = d.Clone()
	}
	c.metrics.Affected(c.name, "insert", len(stored))
	c.metrics.SetDocuments(c.name, len(c.docs))
	c.log.Debug("insert", "collection", c.name, "n", len(stored))
	return out, nil
}

// InsertOne inserts a single document and returns its id.
func (c *Collection) InsertOne(ctx context.Context, doc value.Document) (string, error) {
	out, err := c.Insert(ctx, doc)
	if err != nil {
		return "", err
	}
	return out[0].ID(), nil
}

// Update shallow-merges patch into every document matching q and returns
// how many matched. A patch value of value.Unset removes the field; nested
// mappings are replaced, never merged. The id field of a patch is ignored.
// Matching nothing is not an error.
func (c *Collection) Update(ctx context.Context, q query.Query, patch value.Mapping) (n int, err error) {
	start := time.Now()
	defer func() { c.metrics.Observe(c.name, "update", start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	var matched []int
	anonymous := false
	for i, d := range c.docs {
		if q.Match(d) {
			matched = append(matched, i)
			anonymous = anonymous || !d.HasID()
		}
	}
	if len(matched) == 0 {
		return 0, nil
	}

	if _, ok := patch[value.IDField]; ok {
		p := make(value.Mapping, len(patch))
		for k, v := range patch {
			if k != value.IDField {
				p[k] = v
			}
		}
		patch = p
	}
	if len(patch) == 0 {
		return len(matched), nil
	}
	if err := value.CheckFinite(patch); err != nil {
		return 0, fmt.Errorf("update: %w", err)
	}

	next := make([]value.Document, len(matched))
	for i, idx := range matched {
		d := c.docs[idx]
		next[i] = d.Clone()
		applyPatch(next[i], patch)
		if err := c.validator.Validate(next[i]); err != nil {
			return 0, fmt.Errorf("update %q: %w", d.ID(), err)
		}
	}

	// Documents loaded without an id all share the empty key, so the only
	// way to write them is as part of the full set.
	if anonymous {
		full := slices.Clone(c.docs)
		for i, idx := range matched {
			full[idx] = next[i]
		}
		err = c.store.Replace(ctx, c.name, full)
	} else {
		err = c.store.Put(ctx, c.name, next...)
	}
	if err != nil {
		return 0, c.persistFailed("update", err)
	}

	// Apply in place so live handles observe the change.
	for _, idx := range matched {
		applyPatch(c.docs[idx], patch)
	}
	c.metrics.Affected(c.name, "update", len(matched))
	c.log.Debug("update", "collection", c.name, "n", len(matched))
	return len(matched), nil
}

// Delete removes every document matching q and returns how many were
// removed. The empty query removes everything. Slices returned by earlier
// calls are left untouched.
func (c *Collection) Delete(ctx context.Context, q query.Query) (n int, err error) {
	start := time.Now()
	defer func() { c.metrics.Observe(c.name, "delete", start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	keep := make([]value.Document, 0, len(c.docs))
	var ids []string
	anonymous := false
	for _, d := range c.docs {
		if !q.Match(d) {
			keep = append(keep, d)
			continue
		}
		if d.HasID() {
			ids = append(ids, d.ID())
		} else {
			anonymous = true
		}
	}
	n = len(c.docs) - len(keep)
	if n == 0 {
		return 0, nil
	}

	// Documents loaded without an id can only be removed by rewriting the set.
	if q.IsEmpty() || anonymous {
		err = c.store.Replace(ctx, c.name, keep)
	} else {
		_, err = c.store.Delete(ctx, c.name, ids...)
	}
	if err != nil {
		return 0, c.persistFailed("delete", err)
	}

	c.docs = keep
	c.metrics.Affected(c.name, "delete", n)
	c.metrics.SetDocuments(c.name, len(c.docs))
	c.log.Debug("delete", "collection", c.name, "n", n)
	return n, nil
}

// Replace swaps the whole document set for docs, assigning ids the way
// Insert does.
func (c *Collection) Replace(ctx context.Context, docs []value.Document) (err error) {
	start := time.Now()
	defer func() { c.metrics.Observe(c.name, "replace", start, err) }()

	c.mu.Lock()
	defer c.mu.Unlock()

	stored, err := c.prepare(docs, map[string]bool{})
	if err != nil {
		return err
	}
	if err := c.store.Replace(ctx, c.name, stored); err != nil {
		return c.persistFailed("replace", err)
	}

	c.docs = stored
	writeBackIDs(docs, stored)
	c.metrics.Affected(c.name, "replace", len(stored))
	c.metrics.SetDocuments(c.name, len(c.docs))
	c.log.Debug("replace", "collection", c.name, "n", len(stored))
	return nil
}

// prepare copies docs for storage, assigns missing ids, validates them and
// rejects ids already present in seen or repeated within docs.
func (c *Collection) prepare(docs []value.Document, seen map[string]bool) ([]value.Document, error) {
	stored := make([]value.Document, 0, len(docs))
	for _, d := range docs {
		s := d.WithoutUnset()
		if !s.HasID() {
			s[value.IDField] = value.Text(c.newID())
		}
		id := s.ID()
		if seen[id] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, id)
		}
		seen[id] = true
		if err := value.CheckFinite(s); err != nil {
			return nil, fmt.Errorf("document %q: %w", id, err)
		}
		if err := c.validator.Validate(s); err != nil {
			return nil, fmt.Errorf("document %q: %w", id, err)
		}
		stored = append(stored, s)
	}
	return stored, nil
}

// idSet returns the ids of all stored documents. The caller must hold c.mu.
func (c *Collection) idSet() map[string]bool {
	ids := make(map[string]bool, len(c.docs))
	for _, d := range c.docs {
		if d.HasID() {
			ids[d.ID()] = true
		}
	}
	return ids
}

func writeBackIDs(docs, stored []value.Document) {
	for i, d := range docs {
		if d != nil && !d.HasID() {
			d[value.IDField] = stored[i][value.IDField]
		}
	}
}

func applyPatch(doc value.Document, patch value.Mapping) {
	for k, v := range patch {
		if value.IsUnset(v) {
			delete(doc, k)
			continue
		}
		doc[k] = value.Clone(v)
	}
}
