package query

import (
	"fmt"
	"regexp"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/stevemurr/memdb/value"
)

// RegexTimeout bounds a single $regex evaluation. A pattern that runs out of
// time fails the predicate.
var RegexTimeout = time.Second

// predicate is the compiled condition on one field.
type predicate struct {
	field string
	// literal is set for the equality shorthand; conds is nil then.
	literal value.Value
	conds   []condition
}

type condition struct {
	op      Operator
	operand value.Value
	set     []value.Value
	pattern matcher
	exists  bool
}

// matcher is satisfied by *regexp.Regexp and by ecmaPattern.
type matcher interface {
	MatchString(s string) bool
}

type ecmaPattern struct {
	re *regexp2.Regexp
}

func (p ecmaPattern) MatchString(s string) bool {
	ok, err := p.re.MatchString(s)
	return err == nil && ok
}

// never is the pattern of a $regex operand that failed to compile.
type never struct{}

func (never) MatchString(string) bool { return false }

func parsePredicate(field string, raw any) (predicate, error) {
	var ops map[string]any
	switch x := raw.(type) {
	case map[string]any:
		ops = x
	case value.Mapping:
		ops = mappingToMap(x)
	default:
		lit, err := value.FromAny(raw)
		if err != nil {
			return predicate{}, fmt.Errorf("%w: field %q: %v", ErrInvalidQuery, field, err)
		}
		return predicate{field: field, literal: lit}, nil
	}

	p := predicate{field: field, conds: make([]condition, 0, len(ops))}
	for key, operand := range ops {
		op := Operator(key)
		c := condition{op: op}
		switch op {
		case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte:
			v, err := value.FromAny(operand)
			if err != nil {
				return predicate{}, fmt.Errorf("%w: %s.%s: %v", ErrInvalidQuery, field, op, err)
			}
			c.operand = v
		case OpIn, OpNin:
			v, err := value.FromAny(operand)
			if err != nil {
				return predicate{}, fmt.Errorf("%w: %s.%s: %v", ErrInvalidQuery, field, op, err)
			}
			if seq, ok := v.(value.Sequence); ok {
				c.set = seq
			} else {
				c.set = []value.Value{v}
			}
		case OpRegex:
			c.pattern = compilePattern(operand)
		case OpExists:
			b, ok := operand.(bool)
			if !ok {
				vb, isBool := operand.(value.Bool)
				if !isBool {
					// Only a boolean operand constrains presence.
					continue
				}
				b = bool(vb)
			}
			c.exists = b
		default:
			// Unknown operators, including "__proto__", add no constraint.
			continue
		}
		p.conds = append(p.conds, c)
	}
	return p, nil
}

// compilePattern accepts a compiled *regexp.Regexp or *regexp2.Regexp as is
// and compiles string operands with ECMAScript semantics.
func compilePattern(operand any) matcher {
	switch x := operand.(type) {
	case *regexp.Regexp:
		if x != nil {
			return x
		}
	case *regexp2.Regexp:
		if x != nil {
			return ecmaPattern{re: x}
		}
	case string:
		return compileString(x)
	case value.Text:
		return compileString(string(x))
	}
	return never{}
}

func compileString(expr string) matcher {
	re, err := regexp2.Compile(expr, regexp2.ECMAScript)
	if err != nil {
		return never{}
	}
	re.MatchTimeout = RegexTimeout
	return ecmaPattern{re: re}
}

func (p predicate) match(doc value.Document) bool {
	v, has := doc[p.field]
	if has && v == nil {
		has = false
	}
	if p.conds == nil {
		return has && value.Equal(v, p.literal)
	}
	for _, c := range p.conds {
		if !c.test(v, has) {
			return false
		}
	}
	return true
}

func (c condition) test(v value.Value, has bool) bool {
	switch c.op {
	case OpEq:
		return has && value.Equal(v, c.operand)
	case OpNe:
		return !has || !value.Equal(v, c.operand)
	case OpGt, OpGte, OpLt, OpLte:
		if !has {
			return false
		}
		cmp, ok := value.Order(v, c.operand)
		if !ok {
			return false
		}
		switch c.op {
		case OpGt:
			return cmp > 0
		case OpGte:
			return cmp >= 0
		case OpLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	case OpIn:
		return has && contains(c.set, v)
	case OpNin:
		return !has || !contains(c.set, v)
	case OpRegex:
		s, ok := v.(value.Text)
		return has && ok && c.pattern.MatchString(string(s))
	case OpExists:
		return has == c.exists
	}
	return true
}

func contains(set []value.Value, v value.Value) bool {
	for _, e := range set {
		if value.Equal(v, e) {
			return true
		}
	}
	return false
}
