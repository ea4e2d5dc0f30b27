package jsonutil

import (
	"strings"

	"github.com/tidwall/gjson"
)

const codeFence = "```"

// StripFences returns the body of the first markdown code fence in raw. The
// language tag line ("json", "JSON", ...) is dropped. Text without a closed
// fence is returned trimmed and unchanged.
func StripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	start := strings.Index(raw, codeFence)
	if start == -1 {
		return raw
	}
	rest := raw[start+len(codeFence):]
	end := strings.Index(rest, codeFence)
	if end == -1 {
		return raw
	}
	block := strings.TrimLeft(rest[:end], " \t")
	if idx := strings.IndexAny(block, "\r\n"); idx != -1 {
		first := strings.TrimSpace(block[:idx])
		if first == "" || !strings.ContainsAny(first, "[{") {
			block = block[idx+1:]
		}
	}
	return strings.TrimSpace(block)
}

// FirstObject returns the first balanced {...} substring of raw that is valid
// JSON. Braces inside string literals do not count towards depth; balanced
// spans that fail to parse are skipped.
func FirstObject(raw string) (string, bool) {
	out, _, ok := balanced(raw, '{', '}')
	return out, ok
}

func balanced(raw string, open, close byte) (string, int, bool) {
	for from := 0; from < len(raw); {
		rel := strings.IndexByte(raw[from:], open)
		if rel == -1 {
			return "", -1, false
		}
		start := from + rel
		if end, ok := matchClose(raw, start, open, close); ok {
			if span := strings.TrimSpace(raw[start : end+1]); gjson.Valid(span) {
				return span, start, true
			}
		}
		from = start + 1
	}
	return "", -1, false
}

func matchClose(raw string, start int, open, close byte) (int, bool) {
	depth := 0
	inString := false
	escape := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return -1, false
}
