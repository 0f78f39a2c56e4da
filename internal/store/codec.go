package store

import (
	"encoding/json"
	"fmt"
)

// EncodeVector serializes an embedding for a TEXT column. JSON keeps the
// column readable and portable across drivers.
func EncodeVector(v []float32) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode vector: %w", err)
	}
	return string(b), nil
}

// DecodeVector parses a TEXT column back into an embedding.
func DecodeVector(s string) ([]float32, error) {
	if s == "" {
		return nil, nil
	}
	var v []float32
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("decode vector: %w", err)
	}
	return v, nil
}
