package cmp

// Check two json-shaped values (maps, slices, scalars) are equal.
//
// Numbers are compared by value, so int 3 and float64(3) coming back
// from json.Unmarshal count as equal.
func JSONValueEq(a any, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	if na, ok := asNumber(a); ok {
		nb, ok := asNumber(b)
		return ok && na == nb
	}

	switch va := a.(type) {
	case map[string]any:
		vb, ok := b.(map[string]any)
		return ok && MapEqWith(va, vb, JSONValueEq)
	case []any:
		vb, ok := b.([]any)
		return ok && SliceEqWith(va, vb, JSONValueEq)
	default:
		return a == b
	}
}

// Check two json-shaped maps are equal. Nil and empty maps are equal.
func MapJSONEq(a map[string]any, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	return MapEqWith(a, b, JSONValueEq)
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
