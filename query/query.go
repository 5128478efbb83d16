// Package query implements the predicate evaluator and query matcher.
//
// A query is a mapping from field name to either a literal (equality
// shorthand) or an operator object, plus the logical combinators $and, $or
// and $not:
//
//	{"age": {"$gt": 25}, "status": "active"}
//	{"$or": [{"tag": "a"}, {"tag": {"$exists": false}}]}
//
// Parse compiles such a mapping into a Query once; Query.Match evaluates it
// against a document without side effects.
package query

import (
	"errors"
	"fmt"

	"github.com/stevemurr/memdb/value"
)

// ErrInvalidQuery is returned by Parse for structurally malformed queries.
var ErrInvalidQuery = errors.New("invalid query")

// Operator is a query operator or logical combinator key.
type Operator string

const (
	OpEq     Operator = "$eq"
	OpNe     Operator = "$ne"
	OpGt     Operator = "$gt"
	OpGte    Operator = "$gte"
	OpLt     Operator = "$lt"
	OpLte    Operator = "$lte"
	OpIn     Operator = "$in"
	OpNin    Operator = "$nin"
	OpRegex  Operator = "$regex"
	OpExists Operator = "$exists"

	OpAnd Operator = "$and"
	OpOr  Operator = "$or"
	OpNot Operator = "$not"
)

// protoKey is skipped wherever it appears as a query or operator key.
const protoKey = "__proto__"

// Query is a compiled query. The zero Query matches every document.
// A Query is immutable and safe for concurrent use.
type Query struct {
	clauses []clause
}

// All matches every document.
var All = Query{}

type clause interface {
	match(doc value.Document) bool
}

// Match reports whether doc satisfies every clause of the query.
func (q Query) Match(doc value.Document) bool {
	for _, c := range q.clauses {
		if !c.match(doc) {
			return false
		}
	}
	return true
}

// IsEmpty reports whether the query has no constraints.
func (q Query) IsEmpty() bool {
	return len(q.clauses) == 0
}

type andClause []Query

func (a andClause) match(doc value.Document) bool {
	for _, sub := range a {
		if !sub.Match(doc) {
			return false
		}
	}
	return true
}

type orClause []Query

func (o orClause) match(doc value.Document) bool {
	for _, sub := range o {
		if sub.Match(doc) {
			return true
		}
	}
	return false
}

type notClause struct {
	sub Query
}

func (n notClause) match(doc value.Document) bool {
	return !n.sub.Match(doc)
}

// Parse compiles q into a Query. q may be nil, a Query, a map[string]any or
// a value.Mapping. Only the map's own keys are considered, and a key named
// "__proto__" contributes no constraint.
func Parse(q any) (Query, error) {
	switch x := q.(type) {
	case nil:
		return All, nil
	case Query:
		return x, nil
	case *Query:
		if x == nil {
			return All, nil
		}
		return *x, nil
	case map[string]any:
		return parseMap(x)
	case value.Mapping:
		return parseMap(mappingToMap(x))
	}
	return Query{}, fmt.Errorf("%w: unsupported query type %T", ErrInvalidQuery, q)
}

// MustParse is like Parse but panics on error.
func MustParse(q any) Query {
	out, err := Parse(q)
	if err != nil {
		panic(err)
	}
	return out
}

func parseMap(m map[string]any) (Query, error) {
	var q Query
	for key, raw := range m {
		switch Operator(key) {
		case protoKey:
			continue
		case OpAnd, OpOr:
			subs, err := parseList(key, raw)
			if err != nil {
				return Query{}, err
			}
			if Operator(key) == OpAnd {
				q.clauses = append(q.clauses, andClause(subs))
			} else {
				q.clauses = append(q.clauses, orClause(subs))
			}
		case OpNot:
			sub, err := parseSub(raw)
			if err != nil {
				return Query{}, fmt.Errorf("%s: %w", key, err)
			}
			q.clauses = append(q.clauses, notClause{sub: sub})
		default:
			p, err := parsePredicate(key, raw)
			if err != nil {
				return Query{}, err
			}
			q.clauses = append(q.clauses, p)
		}
	}
	return q, nil
}

func parseSub(raw any) (Query, error) {
	switch raw.(type) {
	case map[string]any, value.Mapping, Query, *Query:
		return Parse(raw)
	}
	return Query{}, fmt.Errorf("%w: expected a query object, got %T", ErrInvalidQuery, raw)
}

func parseList(key string, raw any) ([]Query, error) {
	var items []any
	switch x := raw.(type) {
	case []any:
		items = x
	case []map[string]any:
		for _, e := range x {
			items = append(items, e)
		}
	case value.Sequence:
		for _, e := range x {
			items = append(items, e)
		}
	case []Query:
		return x, nil
	default:
		return nil, fmt.Errorf("%w: value for %s must be a list, got %T", ErrInvalidQuery, key, raw)
	}
	out := make([]Query, 0, len(items))
	for i, item := range items {
		sub, err := parseSub(item)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
		}
		out = append(out, sub)
	}
	return out, nil
}

func mappingToMap(m value.Mapping) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
