package jsonx

import (
	"encoding/json"
	"strings"
)

// Coerce turns a stage output into a structured value. Model backends
// sometimes return JSON as a string, often wrapped in a markdown fence;
// this is the single place that unwraps it. Non-string values pass
// through untouched. Returns ok=false when the string is not JSON.
func Coerce(value any) (any, bool) {
	str, isStr := value.(string)
	if !isStr {
		return value, true
	}

	str = StripFences(str)

	var parsed any
	if err := json.Unmarshal([]byte(str), &parsed); err != nil {
		return value, false
	}

	return parsed, true
}

// StripFences removes markdown code fences and a leading language tag
// from a model response.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "`")
	s = strings.TrimSpace(s)

	for _, prefix := range []string{"json", "markdown"} {
		if rest, found := strings.CutPrefix(s, prefix); found {
			// only treat it as a fence tag if a newline follows
			if trimmed := strings.TrimLeft(rest, " "); strings.HasPrefix(trimmed, "\n") || strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
				s = strings.TrimSpace(rest)
			}
		}
	}

	return s
}

// UnwrapList extracts a list from a coerced value. Models occasionally
// wrap the requested array in an object under a well-known key.
func UnwrapList(value any, wrapperKey string) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case map[string]any:
		inner, ok := v[wrapperKey]
		if !ok {
			return nil, false
		}
		list, ok := inner.([]any)
		return list, ok
	default:
		return nil, false
	}
}

// AsFloat converts JSON-ish numeric representations to float64.
func AsFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		var f float64
		if err := json.Unmarshal([]byte(strings.TrimSpace(v)), &f); err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
