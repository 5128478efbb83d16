package store

import (
	"encoding/json"
	"fmt"

	"github.com/stevemurr/memdb/value"
)

// copySchema returns a deep copy of a schema by round-tripping through JSON.
func copySchema(src map[string]any) (map[string]any, error) {
	if src == nil {
		return nil, nil
	}
	b, err := json.Marshal(src)
	if err != nil {
		return nil, fmt.Errorf("encode schema: %w", err)
	}
	var dst map[string]any
	if err := json.Unmarshal(b, &dst); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	return dst, nil
}

func encodeDoc(doc value.Document) (string, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode document %q: %w", doc.ID(), err)
	}
	return string(b), nil
}

func decodeDoc(raw string) (value.Document, error) {
	var doc value.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}
