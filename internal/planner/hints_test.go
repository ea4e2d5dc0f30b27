package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAnswers_StructuredKeys(t *testing.T) {
	h := ParseAnswers(map[string]string{"risk": "2%", "tf": "1h", "symbol": "eth"}).Normalized()
	assert.Equal(t, Hints{Instrument: "ETH", Timeframe: "1H", RiskPct: "2"}, h)
}

func TestParseAnswers_FreeText(t *testing.T) {
	h := ParseAnswers(map[string]string{
		"q1": "I want to risk 1.5 percent on btcusdt",
		"q2": "looking at the 4 hours chart",
	}).Normalized()
	assert.Equal(t, "BTCUSDT", h.Instrument)
	assert.Equal(t, "4H", h.Timeframe)
	assert.Equal(t, "1.5", h.RiskPct)
}

func TestParseAnswers_StructuredWins(t *testing.T) {
	h := ParseAnswers(map[string]string{
		"timeframe": "15m",
		"note":      "usually I trade 4h with 3% on SOLUSDT",
	})
	assert.Equal(t, "15m", h.Timeframe)
	assert.Equal(t, "3", h.RiskPct)
	assert.Equal(t, "SOLUSDT", h.Instrument)
}

func TestMerge_Precedence(t *testing.T) {
	user := Hints{Instrument: "ETHUSDT"}
	previous := Hints{Instrument: "BTCUSDT", Timeframe: "1H"}
	features := Hints{Timeframe: "15M", RiskPct: "2"}
	assert.Equal(t, Hints{Instrument: "ETHUSDT", Timeframe: "1H", RiskPct: "2"}, Merge(user, previous, features))
	assert.Equal(t, Hints{}, Merge())
}

func TestNormalizeRisk(t *testing.T) {
	cases := map[string]string{
		"2%":        "2",
		"0.5":       "0.5",
		"2.50 pct":  "2.5",
		"250":       "100",
		"0":         DefaultRiskPct,
		"":          DefaultRiskPct,
		"lots":      DefaultRiskPct,
		"risk 3 %":  "3",
		"100":       "100",
		"-4":        DefaultRiskPct,
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeRisk(in), "input %q", in)
	}
}

func TestHintsFromMeta(t *testing.T) {
	h := HintsFromMeta(map[string]any{"instrument": "BTCUSDT", "timeframe": "15M", "risk_pct": 1.5})
	assert.Equal(t, Hints{Instrument: "BTCUSDT", Timeframe: "15M", RiskPct: "1.5"}, h)
	assert.Equal(t, Hints{}, HintsFromMeta(nil))
}
