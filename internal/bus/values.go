package bus

// Coercions for the plain-value boundary. Property bags arrive as
// map[string]any with transport-dependent numeric widths and either
// []string or []any for string lists; these helpers absorb that variance.
// The ok result is false when the value cannot represent the requested
// type, which callers treat as a malformed value.

// AsBool coerces v to bool.
func AsBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

// AsString coerces v to string.
func AsString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// AsUint32 coerces v to uint32, accepting the integer widths transports
// commonly deliver.
func AsUint32(v any) (uint32, bool) {
	switch n := v.(type) {
	case uint32:
		return n, true
	case uint16:
		return uint32(n), true
	case uint8:
		return uint32(n), true
	case int32:
		if n < 0 {
			return 0, false
		}
		return uint32(n), true
	case int:
		if n < 0 || int64(n) > int64(^uint32(0)) {
			return 0, false
		}
		return uint32(n), true
	case int64:
		if n < 0 || n > int64(^uint32(0)) {
			return 0, false
		}
		return uint32(n), true
	case uint64:
		if n > uint64(^uint32(0)) {
			return 0, false
		}
		return uint32(n), true
	default:
		return 0, false
	}
}

// AsInt16 coerces v to int16, the width signal-strength readings use.
func AsInt16(v any) (int16, bool) {
	switch n := v.(type) {
	case int16:
		return n, true
	case int8:
		return int16(n), true
	case uint8:
		return int16(n), true
	case int32:
		if n < -32768 || n > 32767 {
			return 0, false
		}
		return int16(n), true
	case int:
		if n < -32768 || n > 32767 {
			return 0, false
		}
		return int16(n), true
	case int64:
		if n < -32768 || n > 32767 {
			return 0, false
		}
		return int16(n), true
	default:
		return 0, false
	}
}

// AsStrings coerces v to a string slice. []any is accepted when every
// element is a string.
func AsStrings(v any) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, true
	case []any:
		out := make([]string, len(s))
		for i, e := range s {
			str, ok := e.(string)
			if !ok {
				return nil, false
			}
			out[i] = str
		}
		return out, true
	default:
		return nil, false
	}
}

// AsPropertyMap coerces v to a property bag.
func AsPropertyMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// AsUint32Map coerces v to a uint32-keyed string map, the shape service
// discovery replies use.
func AsUint32Map(v any) (map[uint32]string, bool) {
	m, ok := v.(map[uint32]string)
	return m, ok
}

// First returns reply value 0 as a string, the shape of lookup and create
// replies that return a single object path.
func First(ret []any) (string, bool) {
	if len(ret) == 0 {
		return "", false
	}
	s, ok := ret[0].(string)
	return s, ok
}
