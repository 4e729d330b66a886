package schema

import (
	"encoding/json"
	"fmt"
	"math"
)

// NormalizeNumber converts any Go numeric value into its canonical form:
// int64 when the value is integral, float64 otherwise. The second return is
// false when raw is not numeric. Canonical numbers keep property maps
// deep-comparable across the YAML and JSON decode paths, which disagree on
// how they decode integers.
func NormalizeNumber(raw interface{}) (interface{}, bool) {
	switch n := raw.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return float64(n), true
		}
		return int64(n), true
	case float32:
		return normalizeFloat(float64(n)), true
	case float64:
		return normalizeFloat(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return normalizeFloat(f), true
		}
		return nil, false
	default:
		return nil, false
	}
}

func normalizeFloat(f float64) interface{} {
	if f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < math.MaxInt64 {
		return int64(f)
	}
	return f
}

// NormalizeValue returns v rebuilt in canonical form: numeric leaves via
// NormalizeNumber, lists as []interface{}, maps as map[string]interface{}.
// Non-container, non-numeric leaves pass through unchanged.
func NormalizeValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, el := range val {
			out[k] = NormalizeValue(el)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, el := range val {
			out[fmt.Sprintf("%v", k)] = NormalizeValue(el)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, el := range val {
			out[i] = NormalizeValue(el)
		}
		return out
	case []string:
		out := make([]interface{}, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	default:
		if n, ok := NormalizeNumber(v); ok {
			return n
		}
		return v
	}
}

// NormalizeProps applies NormalizeValue to every value of a property map.
func NormalizeProps(props map[string]interface{}) map[string]interface{} {
	if props == nil {
		return nil
	}
	out := make(map[string]interface{}, len(props))
	for k, v := range props {
		out[k] = NormalizeValue(v)
	}
	return out
}
