package jsonutil

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Textify flattens a model response into a string. Strings pass through,
// content-block arrays are joined by their text/content/value fields, other
// values are JSON-encoded.
func Textify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case json.RawMessage:
		return string(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, blockText(item))
		}
		return strings.Join(parts, "")
	case []map[string]any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, blockText(item))
		}
		return strings.Join(parts, "")
	case fmt.Stringer:
		return t.String()
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(buf)
}

func blockText(item any) string {
	switch b := item.(type) {
	case string:
		return b
	case map[string]any:
		for _, key := range []string{"text", "content", "value"} {
			if s, ok := b[key].(string); ok {
				return s
			}
		}
		return ""
	case nil:
		return ""
	}
	return Textify(item)
}

// Coerce turns untrusted model output into a JSON object. It tries, in order:
// an already-decoded map, a direct parse, a parse after stripping code
// fences, and the first balanced {...} substring. It never panics.
func Coerce(v any) (map[string]any, bool) {
	if v == nil {
		return nil, false
	}
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	raw := strings.TrimSpace(Textify(v))
	if raw == "" {
		return nil, false
	}
	if m, ok := parseObject(raw); ok {
		return m, true
	}
	stripped := StripFences(raw)
	if stripped != raw {
		if m, ok := parseObject(stripped); ok {
			return m, true
		}
	}
	if candidate, ok := FirstObject(stripped); ok {
		if m, ok := parseObject(candidate); ok {
			return m, true
		}
	}
	if stripped != raw {
		if candidate, ok := FirstObject(raw); ok {
			if m, ok := parseObject(candidate); ok {
				return m, true
			}
		}
	}
	return nil, false
}

func parseObject(raw string) (map[string]any, bool) {
	if !gjson.Valid(raw) {
		return nil, false
	}
	if !gjson.Parse(raw).IsObject() {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, false
	}
	return m, true
}
