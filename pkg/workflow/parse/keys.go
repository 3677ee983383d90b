package parse

// loose readers over raw envelope dicts. The idempotency gate only
// peeks at identity fields; strict typing is the deserializer's job.

func intKey(d map[string]interface{}, key string) (int, bool) {
	switch v := d[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}

func stringKey(d map[string]interface{}, key string) (string, bool) {
	s, ok := d[key].(string)
	return s, ok && s != ""
}

func nestedName(d map[string]interface{}, key string) (string, bool) {
	sub, ok := d[key].(map[string]interface{})
	if !ok {
		return "", false
	}
	return stringKey(sub, "name")
}
