// Package marshal adapts domain values to their column types.
package marshal

import (
	"encoding/json"
	"fmt"
)

// JSONMap carries a free-form options/attributes map into a jsonb
// column and back.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (interface{}, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]interface{}(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *JSONMap) Scan(src interface{}) error {
	b, err := asBytes("JSONMap", src)
	if err != nil {
		return err
	}
	parsed := map[string]interface{}{}
	if err := json.Unmarshal(b, &parsed); err != nil {
		return err
	}
	*m = parsed
	return nil
}

// JSONMatrix carries coordinates, lattices and force sets into a
// jsonb column and back.
type JSONMatrix [][]float64

func (m JSONMatrix) Value() (interface{}, error) {
	if m == nil {
		return "[]", nil
	}
	b, err := json.Marshal([][]float64(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *JSONMatrix) Scan(src interface{}) error {
	b, err := asBytes("JSONMatrix", src)
	if err != nil {
		return err
	}
	parsed := [][]float64{}
	if err := json.Unmarshal(b, &parsed); err != nil {
		return err
	}
	*m = parsed
	return nil
}

func asBytes(name string, src interface{}) ([]byte, error) {
	switch v := src.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("%s.Scan: unexpected type: %T", name, src)
	}
}
