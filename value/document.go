package value

import "strconv"

// IDField is the reserved field holding a document's unique identifier.
const IDField = "id"

// Document is one schema-less record.
type Document = Mapping

// HasID reports whether the document carries a usable identifier. A missing
// id, null, false, zero and the empty string all count as no identifier.
func (m Mapping) HasID() bool {
	v, ok := m[IDField]
	if !ok || v == nil {
		return false
	}
	switch x := v.(type) {
	case Null, unset:
		return false
	case Bool:
		return bool(x)
	case Number:
		return x != 0
	case Text:
		return x != ""
	}
	return true
}

// ID returns the identifier as a string, or "" when the document has none.
// Numeric identifiers are formatted the way JSON would print them.
func (m Mapping) ID() string {
	if !m.HasID() {
		return ""
	}
	switch x := m[IDField].(type) {
	case Text:
		return string(x)
	case Number:
		return strconv.FormatFloat(float64(x), 'f', -1, 64)
	case Instant:
		return strconv.FormatInt(int64(x), 10)
	case Bool:
		return strconv.FormatBool(bool(x))
	}
	return ""
}

// WithoutUnset returns a deep copy of m with every Unset field dropped.
func (m Mapping) WithoutUnset() Mapping {
	out := make(Mapping, len(m))
	for k, v := range m {
		if IsUnset(v) {
			continue
		}
		out[k] = Clone(v)
	}
	return out
}
