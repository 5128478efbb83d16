package value

import "unicode/utf16"

// Normalize maps v to its canonical comparable form. Instants reduce to their
// epoch-millisecond Number; every other value is returned unchanged.
func Normalize(v Value) Value {
	if i, ok := v.(Instant); ok {
		return Number(i)
	}
	return v
}

// Compare is the three-way comparison used for sorting. A nil (missing)
// value sorts after any present value; two missing values are equal.
// Values of different kinds after normalization compare as equal, so the
// relative order of mixed-kind values is left to the stable sort.
func Compare(a, b Value) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	c, _ := Order(a, b)
	return c
}

// Order compares two present values after normalization. ok is false when
// the values have no defined order: different kinds, mappings, or sequences
// containing such pairs. Range operators treat !ok as a failed predicate.
func Order(a, b Value) (c int, ok bool) {
	a, b = Normalize(a), Normalize(b)
	if a == nil || b == nil || a.Kind() != b.Kind() {
		return 0, false
	}
	switch x := a.(type) {
	case Null:
		return 0, true
	case Bool:
		y := b.(Bool)
		switch {
		case x == y:
			return 0, true
		case !bool(x):
			return -1, true
		default:
			return 1, true
		}
	case Number:
		y := b.(Number)
		switch {
		case x < y:
			return -1, true
		case x > y:
			return 1, true
		case x == y:
			return 0, true
		}
		// NaN on either side.
		return 0, false
	case Text:
		return compareUTF16(string(x), string(b.(Text))), true
	case Sequence:
		y := b.(Sequence)
		n := min(len(x), len(y))
		for i := 0; i < n; i++ {
			c, ok := Order(x[i], y[i])
			if !ok {
				return 0, false
			}
			if c != 0 {
				return c, true
			}
		}
		switch {
		case len(x) < len(y):
			return -1, true
		case len(x) > len(y):
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// compareUTF16 orders strings by UTF-16 code units, which differs from Go's
// byte-wise UTF-8 order for characters outside the Basic Multilingual Plane.
func compareUTF16(a, b string) int {
	if a == b {
		return 0
	}
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// Equal is the strict equality used by $eq, $ne, $in, $nin and literal
// conditions. Values of different kinds are never equal, so an Instant never
// equals the Number of its milliseconds. Two instants are equal iff their
// milliseconds match; sequences and mappings compare structurally.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case Sequence:
		y := b.(Sequence)
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case Mapping:
		y := b.(Mapping)
		if len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	case Null, unset:
		return true
	}
	// Bool, Number, Text and Instant are comparable scalars. NaN != NaN.
	return a == b
}
