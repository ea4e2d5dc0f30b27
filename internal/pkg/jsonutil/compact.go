package jsonutil

import "encoding/json"

// Compact marshals v without indentation and returns "{}" on failure.
func Compact(v any) string {
	buf, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(buf)
}
