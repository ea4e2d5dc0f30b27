package planner

import (
	"regexp"
	"sort"
	"strings"

	"tradecoach/internal/pkg/symbol"
	"tradecoach/internal/pkg/timeframe"

	"github.com/shopspring/decimal"
)

// DefaultRiskPct is used when no usable risk percentage is known.
const DefaultRiskPct = "1"

var (
	riskPattern       = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:%|percent|pct)`)
	timeframePattern  = regexp.MustCompile(`(?i)\b(\d+)\s*(minutes?|mins?|m|hours?|hrs?|hr|h|days?|d|weeks?|wk|w)\b`)
	instrumentPattern = regexp.MustCompile(`(?i)\b([A-Z0-9]{2,15}(?:USDT|USDC|USD))\b`)
	numberPattern     = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

	riskKeys       = []string{"risk_pct", "risk", "riskPct", "risk_percent"}
	timeframeKeys  = []string{"timeframe", "tf", "interval"}
	instrumentKeys = []string{"instrument", "symbol", "pair", "ticker"}
)

// Hints are the three facts the planner must not ask for twice.
type Hints struct {
	Instrument string `json:"instrument,omitempty"`
	Timeframe  string `json:"timeframe,omitempty"`
	RiskPct    string `json:"risk_pct,omitempty"`
}

// Merge takes, per field, the first non-empty value across layers, so layers
// are passed in precedence order.
func Merge(layers ...Hints) Hints {
	var out Hints
	for _, h := range layers {
		if out.Instrument == "" {
			out.Instrument = strings.TrimSpace(h.Instrument)
		}
		if out.Timeframe == "" {
			out.Timeframe = strings.TrimSpace(h.Timeframe)
		}
		if out.RiskPct == "" {
			out.RiskPct = strings.TrimSpace(h.RiskPct)
		}
	}
	return out
}

// Normalized returns canonical spellings. Risk always ends up set.
func (h Hints) Normalized() Hints {
	return Hints{
		Instrument: symbol.Compact(h.Instrument),
		Timeframe:  timeframe.Normalize(h.Timeframe),
		RiskPct:    NormalizeRisk(h.RiskPct),
	}
}

// NormalizeRisk reads the first number in v and clamps it to (0,100].
func NormalizeRisk(v string) string {
	num := numberPattern.FindString(v)
	if num == "" {
		return DefaultRiskPct
	}
	d, err := decimal.NewFromString(num)
	if err != nil || !d.IsPositive() {
		return DefaultRiskPct
	}
	if max := decimal.NewFromInt(100); d.GreaterThan(max) {
		d = max
	}
	return d.String()
}

// ParseAnswers recovers hints from a refine answer map. Structured keys win
// over values found by scanning the free text of every answer.
func ParseAnswers(answers map[string]string) Hints {
	structured := Hints{
		Instrument: lookup(answers, instrumentKeys),
		Timeframe:  lookup(answers, timeframeKeys),
		RiskPct:    lookup(answers, riskKeys),
	}
	return Merge(structured, ScanText(joinAnswers(answers)))
}

// ScanText pulls hints out of a free-form sentence.
func ScanText(s string) Hints {
	var h Hints
	if m := riskPattern.FindStringSubmatch(s); m != nil {
		h.RiskPct = m[1]
	}
	if m := timeframePattern.FindStringSubmatch(s); m != nil {
		h.Timeframe = m[1] + m[2]
	}
	if m := instrumentPattern.FindStringSubmatch(s); m != nil {
		h.Instrument = m[1]
	}
	return h
}

// HintsFromMeta reads hints out of a loosely typed plan meta object.
func HintsFromMeta(meta map[string]any) Hints {
	if meta == nil {
		return Hints{}
	}
	str := func(keys []string) string {
		for _, k := range keys {
			if s := scalarString(meta[k]); s != "" {
				return s
			}
		}
		return ""
	}
	return Hints{
		Instrument: str(instrumentKeys),
		Timeframe:  str(timeframeKeys),
		RiskPct:    str(riskKeys),
	}
}

func lookup(answers map[string]string, keys []string) string {
	for _, want := range keys {
		for k, v := range answers {
			if strings.EqualFold(strings.TrimSpace(k), want) && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

func joinAnswers(answers map[string]string) string {
	keys := make([]string, 0, len(answers))
	for k := range answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, answers[k])
	}
	return strings.Join(parts, " \n ")
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return decimal.NewFromFloat(t).String()
	case int:
		return decimal.NewFromInt(int64(t)).String()
	}
	return ""
}
