package jsonutil

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerce_FencedJSON(t *testing.T) {
	got, ok := Coerce("```json\n{\"a\":2}\n```")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"a": float64(2)}, got)
}

func TestCoerce_BareFence(t *testing.T) {
	got, ok := Coerce("Here you go:\n```\n{\"a\":1}\n```\nthanks")
	require.True(t, ok)
	assert.Equal(t, float64(1), got["a"])
}

func TestCoerce_BalancedExtraction(t *testing.T) {
	got, ok := Coerce(`noise {"a":3,"b":{"c":4}} trailing`)
	require.True(t, ok)
	assert.Equal(t, map[string]any{
		"a": float64(3),
		"b": map[string]any{"c": float64(4)},
	}, got)
}

func TestCoerce_BracesInsideStrings(t *testing.T) {
	got, ok := Coerce(`prefix {"text":"a } tricky { value","n":1} suffix`)
	require.True(t, ok)
	assert.Equal(t, "a } tricky { value", got["text"])
}

func TestCoerce_SkipsUnbalancedPrefix(t *testing.T) {
	got, ok := Coerce(`{ broken then {"ok":true}`)
	require.True(t, ok)
	assert.Equal(t, true, got["ok"])
}

func TestCoerce_SkipsInvalidBalancedSpan(t *testing.T) {
	got, ok := Coerce(`note {x} then {"a":1}`)
	require.True(t, ok)
	assert.Equal(t, float64(1), got["a"])

	span, ok := FirstObject(`{not json} and {"b":[1,2]}`)
	require.True(t, ok)
	assert.Equal(t, `{"b":[1,2]}`, span)
}

func TestCoerce_Garbage(t *testing.T) {
	for _, in := range []any{"not json at all", "", nil, 42, "[1,2,3]", "{unterminated"} {
		got, ok := Coerce(in)
		assert.False(t, ok, "input %v", in)
		assert.Nil(t, got)
	}
}

func TestCoerce_ContentBlocks(t *testing.T) {
	blocks := []any{
		map[string]any{"type": "text", "text": `{"a":`},
		map[string]any{"type": "text", "content": `5}`},
	}
	got, ok := Coerce(blocks)
	require.True(t, ok)
	assert.Equal(t, float64(5), got["a"])
}

func TestCoerce_MapPassthrough(t *testing.T) {
	in := map[string]any{"x": "y"}
	got, ok := Coerce(in)
	require.True(t, ok)
	assert.Equal(t, in, got)
}

func TestCoerce_Idempotent(t *testing.T) {
	plan := map[string]any{
		"meta":      map[string]any{"instrument": "BTCUSDT", "confidence": 0.6},
		"questions": []any{},
		"suggestions": []any{map[string]any{
			"side":         "long",
			"entry":        map[string]any{"zone": []any{float64(100), float64(102)}},
			"invalidation": map[string]any{"price": float64(98)},
			"targets":      []any{map[string]any{"rr": float64(2)}},
		}},
		"warnings": []any{"thin liquidity"},
	}
	buf, err := json.Marshal(plan)
	require.NoError(t, err)
	got, ok := Coerce(string(buf))
	require.True(t, ok)
	assert.Equal(t, plan, got)

	again, ok := Coerce(Textify(got))
	require.True(t, ok)
	assert.Equal(t, got, again)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```JSON\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences("```{\"a\":1}```"))
	assert.Equal(t, "plain", StripFences("  plain "))
	assert.Equal(t, "```open", StripFences("```open"))
}

func TestTextify(t *testing.T) {
	assert.Equal(t, "", Textify(nil))
	assert.Equal(t, "abc", Textify("abc"))
	assert.Equal(t, `{"k":1}`, Textify(map[string]any{"k": 1}))
	assert.Equal(t, "ab", Textify([]any{"a", map[string]any{"value": "b"}}))
	assert.Equal(t, "12", Textify(12))
}
