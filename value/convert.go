package value

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"time"
)

var (
	// ErrUnsupportedType is returned when a Go value has no Value representation.
	ErrUnsupportedType = errors.New("unsupported value type")
	// ErrNonFinite is returned by CheckFinite for NaN and infinite numbers,
	// which have no JSON encoding.
	ErrNonFinite = errors.New("non-finite number")
)

// CheckFinite returns ErrNonFinite if v holds NaN or an infinity at any
// depth. Query operands may be non-finite; stored documents may not.
func CheckFinite(v Value) error {
	switch x := v.(type) {
	case Number:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return fmt.Errorf("%w: %v", ErrNonFinite, float64(x))
		}
	case Sequence:
		for i, e := range x {
			if err := CheckFinite(e); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
	case Mapping:
		for k, e := range x {
			if err := CheckFinite(e); err != nil {
				return fmt.Errorf("field %q: %w", k, err)
			}
		}
	}
	return nil
}

// FromAny converts a native Go value into a Value.
//
// nil becomes Null, booleans Bool, every integer and float kind Number,
// strings Text, time.Time Instant, slices and arrays Sequence, and maps with
// string keys Mapping. Values that already implement Value are returned as
// is.
func FromAny(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return Text(x), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(x), nil
	case int:
		return Number(x), nil
	case int64:
		return Number(x), nil
	case int32:
		return Number(x), nil
	case uint:
		return Number(x), nil
	case uint64:
		return Number(x), nil
	case uint32:
		return Number(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: json number %q", ErrUnsupportedType, x)
		}
		return Number(f), nil
	case time.Time:
		return InstantOf(x), nil
	case *time.Time:
		if x == nil {
			return Null{}, nil
		}
		return InstantOf(*x), nil
	case []any:
		seq := make(Sequence, len(x))
		for i, e := range x {
			ev, err := FromAny(e)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			seq[i] = ev
		}
		return seq, nil
	case map[string]any:
		return MappingFrom(x)
	}
	return fromReflect(reflect.ValueOf(v))
}

func fromReflect(rv reflect.Value) (Value, error) {
	switch rv.Kind() {
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.String:
		return Text(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Number(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return Number(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return Number(rv.Float()), nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null{}, nil
		}
		return FromAny(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Null{}, nil
		}
		seq := make(Sequence, rv.Len())
		for i := range rv.Len() {
			ev, err := FromAny(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			seq[i] = ev
		}
		return seq, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		if rv.IsNil() {
			return Null{}, nil
		}
		m := make(Mapping, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			ev, err := FromAny(iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			m[k] = ev
		}
		return m, nil
	}
	if !rv.IsValid() {
		return Null{}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, rv.Type())
}

// MappingFrom converts a map of native Go values into a Mapping.
func MappingFrom(m map[string]any) (Mapping, error) {
	out := make(Mapping, len(m))
	for k, v := range m {
		ev, err := FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = ev
	}
	return out, nil
}

// Must is FromAny for values known to be representable. It panics otherwise.
func Must(v any) Value {
	out, err := FromAny(v)
	if err != nil {
		panic(err)
	}
	return out
}

// Doc builds a Document from native Go values and panics on unsupported
// types. It is meant for literals in code and tests.
func Doc(m map[string]any) Document {
	out, err := MappingFrom(m)
	if err != nil {
		panic(err)
	}
	return out
}

// ToAny converts v back into native Go values: nil, bool, float64, string,
// time.Time, []any and map[string]any. Unset and missing values become nil.
func ToAny(v Value) any {
	switch x := v.(type) {
	case Bool:
		return bool(x)
	case Number:
		return float64(x)
	case Text:
		return string(x)
	case Instant:
		return x.Time()
	case Sequence:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = ToAny(e)
		}
		return out
	case Mapping:
		return x.Map()
	}
	return nil
}

// Map converts the mapping into a map of native Go values.
func (m Mapping) Map() map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = ToAny(v)
	}
	return out
}
