// Package schema provides JSON Schema validation for collection documents.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/stevemurr/memdb/value"
)

var (
	// ErrInvalidSchema is returned when a schema document does not compile.
	ErrInvalidSchema = errors.New("invalid json schema")
	// ErrInvalidDocument is returned when a document fails validation.
	ErrInvalidDocument = errors.New("document invalid against schema")
)

// Validator checks documents against a compiled JSON Schema.
// A nil *Validator accepts every document.
type Validator struct {
	raw    map[string]any
	schema *gojsonschema.Schema
}

// Compile compiles a JSON Schema given as a decoded JSON object.
// A nil schema compiles to a nil Validator.
func Compile(raw map[string]any) (*Validator, error) {
	if raw == nil {
		return nil, nil
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}
	return &Validator{raw: cloneObject(raw), schema: s}, nil
}

// Raw returns a copy of the schema the validator was compiled from.
func (v *Validator) Raw() map[string]any {
	if v == nil {
		return nil
	}
	return cloneObject(v.raw)
}

func cloneObject(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneAny(v)
	}
	return out
}

func cloneAny(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneObject(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneAny(e)
		}
		return out
	}
	return v
}

// Validate checks doc against the schema. Instants are presented to the
// schema as RFC 3339 strings, so "format": "date-time" applies to them.
func (v *Validator) Validate(doc value.Document) error {
	if v == nil {
		return nil
	}
	result, err := v.schema.Validate(gojsonschema.NewGoLoader(doc.Map()))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	errs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(errs, "; "))
}
