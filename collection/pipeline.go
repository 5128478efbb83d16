package collection

import (
	"slices"
	"time"

	"github.com/stevemurr/memdb/query"
	"github.com/stevemurr/memdb/value"
)

const (
	// DefaultLimit caps results when Options.Limit is nil.
	DefaultLimit = 1000
	// Unlimited disables the result cap.
	Unlimited = -1
)

// Direction is a sort direction.
type Direction int

const (
	Ascending  Direction = 1
	Descending Direction = -1
)

// SortKey orders results by one field.
type SortKey struct {
	Field string
	Dir   Direction
}

// Asc sorts by field in ascending order.
func Asc(field string) SortKey { return SortKey{Field: field, Dir: Ascending} }

// Desc sorts by field in descending order.
func Desc(field string) SortKey { return SortKey{Field: field, Dir: Descending} }

// Limit returns a pointer to n for Options.Limit.
func Limit(n int) *int { return &n }

// Projection selects result fields. If any field maps to true only those
// fields and id are kept; otherwise fields mapped to false are dropped.
type Projection map[string]bool

// Options shape a result set.
type Options struct {
	// Sort keys are applied in order; the first non-zero comparison wins.
	Sort []SortKey
	Skip int
	// Limit caps the result count; nil means the collection default.
	// Use Limit(n) to set it and Limit(Unlimited) to lift the cap.
	Limit  *int
	Fields Projection
	// Batch is the chunk size for Stream. Zero delivers a single chunk.
	Batch int
	// Live returns the stored documents instead of copies.
	Live bool
}

// Get returns the documents matching q, shaped by opts.
func (c *Collection) Get(q query.Query, opts Options) []value.Document {
	start := time.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	defer c.metrics.Observe(c.name, "get", start, nil)

	res := c.window(c.sorted(c.scan(q), opts.Sort), opts)
	out := make([]value.Document, len(res))
	for i, d := range res {
		switch {
		case opts.Fields != nil:
			out[i] = project(d, opts.Fields, opts.Live)
		case opts.Live:
			out[i] = d
		default:
			out[i] = d.Clone()
		}
	}
	return out
}

// Count returns how many documents match q without building a result set.
func (c *Collection) Count(q query.Query) int {
	start := time.Now()
	c.mu.RLock()
	defer c.mu.RUnlock()
	defer c.metrics.Observe(c.name, "count", start, nil)

	n := 0
	for _, d := range c.docs {
		if q.Match(d) {
			n++
		}
	}
	return n
}

// Stream delivers the documents matching q to fn in sequential chunks of
// opts.Batch documents, after sorting and pagination. Projection is not
// applied. The collection is not locked while fn runs, so fn may call back
// into it. Stream stops at and returns the first error from fn.
func (c *Collection) Stream(q query.Query, opts Options, fn func([]value.Document) error) (err error) {
	start := time.Now()
	defer func() { c.metrics.Observe(c.name, "stream", start, err) }()

	c.mu.RLock()
	res := c.window(c.sorted(c.scan(q), opts.Sort), opts)
	if !opts.Live {
		for i, d := range res {
			res[i] = d.Clone()
		}
	}
	c.mu.RUnlock()

	size := opts.Batch
	if size <= 0 {
		size = len(res)
	}
	if size == 0 {
		return nil
	}
	for chunk := range slices.Chunk(res, size) {
		if err := fn(chunk); err != nil {
			return err
		}
	}
	return nil
}

// scan returns the stored documents matching q in store order.
// The caller must hold c.mu.
func (c *Collection) scan(q query.Query) []value.Document {
	var res []value.Document
	for _, d := range c.docs {
		if q.Match(d) {
			res = append(res, d)
		}
	}
	return res
}

func (c *Collection) sorted(res []value.Document, keys []SortKey) []value.Document {
	if len(keys) == 0 {
		return res
	}
	slices.SortStableFunc(res, func(a, b value.Document) int {
		for _, k := range keys {
			r := value.Compare(a[k.Field], b[k.Field])
			if r == 0 {
				continue
			}
			if k.Dir == Descending {
				return -r
			}
			return r
		}
		return 0
	})
	return res
}

func (c *Collection) window(res []value.Document, opts Options) []value.Document {
	skip := max(opts.Skip, 0)
	if skip >= len(res) {
		return nil
	}
	res = res[skip:]

	limit := c.defaultLimit
	if opts.Limit != nil {
		limit = *opts.Limit
	}
	if limit >= 0 && limit < len(res) {
		res = res[:limit]
	}
	return res
}

func project(doc value.Document, fields Projection, live bool) value.Document {
	copyOf := value.Clone
	if live {
		copyOf = func(v value.Value) value.Value { return v }
	}

	inclusive := false
	for _, keep := range fields {
		if keep {
			inclusive = true
			break
		}
	}

	out := make(value.Document)
	if inclusive {
		for f, keep := range fields {
			if v, ok := doc[f]; keep && ok {
				out[f] = copyOf(v)
			}
		}
		if id, ok := doc[value.IDField]; ok {
			out[value.IDField] = copyOf(id)
		}
		return out
	}
	for f, v := range doc {
		if keep, listed := fields[f]; listed && !keep {
			continue
		}
		out[f] = copyOf(v)
	}
	return out
}
