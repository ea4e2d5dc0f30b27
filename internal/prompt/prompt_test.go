package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSystemPrompt_Deterministic(t *testing.T) {
	edge := DefaultEdge()
	truths := Truths{Instrument: "BTCUSDT", Timeframe: "5M", Mode: "scalp"}
	a := BuildSystemPrompt(edge, truths)
	b := BuildSystemPrompt(edge, truths)
	assert.Equal(t, a, b)

	assert.Contains(t, a, "- instrument: BTCUSDT")
	assert.Contains(t, a, "- timeframe: 5M")
	assert.Contains(t, a, "- mode: scalp")
	assert.Contains(t, a, "Never populate both")
	assert.Contains(t, strings.ToLower(a), "json")
	assert.Contains(t, a, "Change of character")
	assert.Contains(t, a, "Displacement")
	assert.Less(t, strings.Index(a, "Liquidity sweep"), strings.Index(a, "Break of structure"))
}

func TestBuildSystemPrompt_UnknownTruths(t *testing.T) {
	out := BuildSystemPrompt(DefaultEdge(), Truths{})
	assert.Contains(t, out, "- instrument: unknown")
	assert.NotContains(t, BuildSystemPrompt(DefaultEdge(), Truths{Instrument: "ETH"}), "- instrument: unknown")
}

func TestRegistry_Embedded(t *testing.T) {
	r, err := NewRegistry("")
	require.NoError(t, err)
	snap := r.Snapshot()
	assert.Equal(t, "embedded", snap.Source)
	assert.Equal(t, "smc-sweep-choch-bos", r.Edge().ID)
	assert.Len(t, r.Edge().Sequence, 4)
}

const customEdge = `edge:
  id: custom
  version: 2
  sequence:
    - Step one
`

func TestRegistry_FileAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(customEdge), 0o644))

	r, err := NewRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", r.Edge().ID)
	assert.Equal(t, 2, r.Edge().Version)

	updated := strings.Replace(customEdge, "version: 2", "version: 3", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))
	assert.Eventually(t, func() bool { return r.Edge().Version == 3 }, 3*time.Second, 20*time.Millisecond)
}

func TestParseEdge_RejectsUnknownFields(t *testing.T) {
	_, err := parseEdge([]byte("edge:\n  id: x\n  sequence: [a]\n  bogus: 1\n"))
	assert.Error(t, err)
	_, err = parseEdge([]byte("edge:\n  id: x\n"))
	assert.Error(t, err)
}
