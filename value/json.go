package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

const (
	// dateKey is the single key of the JSON object an Instant encodes to.
	dateKey = "$date"
	// mappingKey wraps a mapping whose own shape would otherwise read back
	// as an Instant or as another wrapper.
	mappingKey = "$mapping"
)

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// MarshalJSON implements json.Marshaler for the Unset marker.
func (unset) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// MarshalJSON encodes an Instant as {"$date": <epoch-ms>} so it survives a
// round trip through JSON without turning into a plain number or string.
func (i Instant) MarshalJSON() ([]byte, error) {
	return []byte(`{"` + dateKey + `":` + strconv.FormatInt(int64(i), 10) + `}`), nil
}

// MarshalJSON encodes the mapping as a JSON object. A mapping whose only key
// is "$date" or "$mapping" is wrapped as {"$mapping": {...}} so it decodes
// back to a mapping.
func (m Mapping) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}
	if m.reserved() {
		return json.Marshal(map[string]map[string]Value{mappingKey: m})
	}
	return json.Marshal(map[string]Value(m))
}

func (m Mapping) reserved() bool {
	if len(m) != 1 {
		return false
	}
	_, date := m[dateKey]
	_, wrapped := m[mappingKey]
	return date || wrapped
}

// UnmarshalJSON implements json.Unmarshaler for Mapping.
func (m *Mapping) UnmarshalJSON(data []byte) error {
	v, err := FromJSON(data)
	if err != nil {
		return err
	}
	switch x := v.(type) {
	case Null:
		*m = nil
	case Mapping:
		*m = x
	default:
		return fmt.Errorf("value: cannot decode %s into mapping", v.Kind())
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for Sequence.
func (s *Sequence) UnmarshalJSON(data []byte) error {
	v, err := FromJSON(data)
	if err != nil {
		return err
	}
	switch x := v.(type) {
	case Null:
		*s = nil
	case Sequence:
		*s = x
	default:
		return fmt.Errorf("value: cannot decode %s into sequence", v.Kind())
	}
	return nil
}

// FromJSON decodes a single JSON value. Numbers become Number and objects of
// the form {"$date": <epoch-ms or RFC 3339 string>} become Instant.
func FromJSON(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("value: trailing data after JSON value")
	}
	return fromDecoded(raw)
}

func fromDecoded(raw any) (Value, error) {
	switch x := raw.(type) {
	case []any:
		seq := make(Sequence, len(x))
		for i, e := range x {
			v, err := fromDecoded(e)
			if err != nil {
				return nil, err
			}
			seq[i] = v
		}
		return seq, nil
	case map[string]any:
		if inst, ok := decodeInstant(x); ok {
			return inst, nil
		}
		obj := x
		if inner, ok := x[mappingKey].(map[string]any); ok && len(x) == 1 {
			obj = inner
		}
		m, err := decodeFields(obj)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	return FromAny(raw)
}

func decodeFields(obj map[string]any) (Mapping, error) {
	m := make(Mapping, len(obj))
	for k, e := range obj {
		v, err := fromDecoded(e)
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

func decodeInstant(obj map[string]any) (Instant, bool) {
	if len(obj) != 1 {
		return 0, false
	}
	switch d := obj[dateKey].(type) {
	case json.Number:
		ms, err := d.Int64()
		if err != nil {
			f, ferr := d.Float64()
			if ferr != nil {
				return 0, false
			}
			ms = int64(f)
		}
		return Instant(ms), true
	case string:
		t, err := time.Parse(time.RFC3339Nano, d)
		if err != nil {
			return 0, false
		}
		return InstantOf(t), true
	}
	return 0, false
}

// DecodeDocuments decodes a JSON array of objects.
func DecodeDocuments(data []byte) ([]Document, error) {
	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}
