// Package value defines the closed set of values a document field can hold,
// together with the normalization, ordering and equality rules the query
// engine uses for filtering and sorting.
package value

import (
	"strconv"
	"time"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindText
	KindInstant
	KindSequence
	KindMapping
	KindUnset
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindText:
		return "text"
	case KindInstant:
		return "instant"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	case KindUnset:
		return "unset"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a sealed interface. Only Null, Bool, Number, Text, Instant,
// Sequence, Mapping and the Unset marker implement it.
//
// A nil Value stands for a missing field.
type Value interface {
	Kind() Kind
	value()
}

// Null is an explicit null. It is a present value, unlike a missing field.
type Null struct{}

// Bool is a boolean value.
type Bool bool

// Number is a numeric value. All numbers are float64, as in JSON.
type Number float64

// Text is a string value.
type Text string

// Instant is a point in time in milliseconds since the Unix epoch.
type Instant int64

// Sequence is an ordered list of values.
type Sequence []Value

// Mapping is a map from field name to value.
type Mapping map[string]Value

type unset struct{}

// Unset marks a field for removal in an update patch. It is never stored.
var Unset Value = unset{}

func (Null) Kind() Kind     { return KindNull }
func (Bool) Kind() Kind     { return KindBool }
func (Number) Kind() Kind   { return KindNumber }
func (Text) Kind() Kind     { return KindText }
func (Instant) Kind() Kind  { return KindInstant }
func (Sequence) Kind() Kind { return KindSequence }
func (Mapping) Kind() Kind  { return KindMapping }
func (unset) Kind() Kind    { return KindUnset }

func (Null) value()     {}
func (Bool) value()     {}
func (Number) value()   {}
func (Text) value()     {}
func (Instant) value()  {}
func (Sequence) value() {}
func (Mapping) value()  {}
func (unset) value()    {}

// InstantOf converts t to an Instant, truncating to the millisecond.
func InstantOf(t time.Time) Instant {
	return Instant(t.UnixMilli())
}

// Time returns the instant as a UTC time.Time.
func (i Instant) Time() time.Time {
	return time.UnixMilli(int64(i)).UTC()
}

// IsUnset reports whether v is the patch removal marker.
func IsUnset(v Value) bool {
	return v != nil && v.Kind() == KindUnset
}

// Clone returns a deep copy of v. Scalars are returned as is.
func Clone(v Value) Value {
	switch x := v.(type) {
	case Sequence:
		return x.Clone()
	case Mapping:
		return x.Clone()
	}
	return v
}

// Clone returns a deep copy of the sequence.
func (s Sequence) Clone() Sequence {
	if s == nil {
		return nil
	}
	out := make(Sequence, len(s))
	for i, v := range s {
		out[i] = Clone(v)
	}
	return out
}

// Clone returns a deep copy of the mapping.
func (m Mapping) Clone() Mapping {
	if m == nil {
		return nil
	}
	out := make(Mapping, len(m))
	for k, v := range m {
		out[k] = Clone(v)
	}
	return out
}

// Get returns the value stored under key and whether the key is present.
func (m Mapping) Get(key string) (Value, bool) {
	v, ok := m[key]
	return v, ok
}
