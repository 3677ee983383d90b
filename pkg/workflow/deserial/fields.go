package deserial

import (
	"fmt"

	"github.com/google/uuid"
)

// field accessors over a decoded payload dict.
//
// Payloads come from JSON (or YAML) decoding into map[string]interface{},
// so numbers may arrive as float64, int, or int64 depending on the
// decoder. Each accessor reports (value, present, error); a missing key
// is not an error, a present key of the wrong type is ErrValidation.

func errFieldType(key string, want string, got interface{}) error {
	return fmt.Errorf("%w: field %q should be %s, got %T", ErrValidation, key, want, got)
}

func stringField(fields map[string]interface{}, key string) (string, bool, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return "", false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", true, errFieldType(key, "string", raw)
	}
	return s, true, nil
}

func boolField(fields map[string]interface{}, key string) (bool, bool, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return false, false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, true, errFieldType(key, "bool", raw)
	}
	return b, true, nil
}

func asNumber(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

func intField(fields map[string]interface{}, key string) (int, bool, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	f, ok := asNumber(raw)
	if !ok || f != float64(int(f)) {
		return 0, true, errFieldType(key, "integer", raw)
	}
	return int(f), true, nil
}

func floatField(fields map[string]interface{}, key string) (float64, bool, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return 0, false, nil
	}
	f, ok := asNumber(raw)
	if !ok {
		return 0, true, errFieldType(key, "number", raw)
	}
	return f, true, nil
}

func uuidField(fields map[string]interface{}, key string) (uuid.UUID, bool, error) {
	s, ok, err := stringField(fields, key)
	if err != nil || !ok {
		return uuid.UUID{}, ok, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, true, fmt.Errorf("%w: field %q is not a uuid: %s", ErrValidation, key, s)
	}
	return id, true, nil
}

func mapField(fields map[string]interface{}, key string) (map[string]interface{}, bool, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return nil, false, nil
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, true, errFieldType(key, "object", raw)
	}
	return m, true, nil
}

func stringsField(fields map[string]interface{}, key string) ([]string, bool, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return nil, false, nil
	}
	// AsDict of a persisted entity holds []string as-is.
	if items, ok := raw.([]string); ok {
		return items, true, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, true, errFieldType(key, "array of strings", raw)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, true, errFieldType(key, "array of strings", item)
		}
		out = append(out, s)
	}
	return out, true, nil
}

func vectorField(fields map[string]interface{}, key string) ([]float64, bool, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return nil, false, nil
	}
	vec, err := asVector(key, raw)
	if err != nil {
		return nil, true, err
	}
	return vec, true, nil
}

func matrixField(fields map[string]interface{}, key string) ([][]float64, bool, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return nil, false, nil
	}
	rows, ok := raw.([]interface{})
	if !ok {
		return nil, true, errFieldType(key, "array of number arrays", raw)
	}
	out := make([][]float64, 0, len(rows))
	for _, row := range rows {
		vec, err := asVector(key, row)
		if err != nil {
			return nil, true, err
		}
		out = append(out, vec)
	}
	return out, true, nil
}

func asVector(key string, raw interface{}) ([]float64, error) {
	if vec, ok := raw.([]float64); ok {
		return vec, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, errFieldType(key, "array of numbers", raw)
	}
	out := make([]float64, 0, len(items))
	for _, item := range items {
		f, ok := asNumber(item)
		if !ok {
			return nil, errFieldType(key, "array of numbers", item)
		}
		out = append(out, f)
	}
	return out, nil
}
