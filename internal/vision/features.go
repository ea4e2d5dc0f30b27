package vision

import (
	"encoding/json"
	"strings"

	"tradecoach/internal/pkg/timeframe"

	"github.com/tidwall/gjson"
)

// POI is a point of interest the model marked on the chart.
type POI struct {
	Type  string   `json:"type,omitempty"`
	Side  string   `json:"side,omitempty"`
	Label string   `json:"label,omitempty"`
	Price *float64 `json:"price,omitempty"`
}

// Features is what the vision model read off a chart. Every field is optional;
// zero values mean unknown.
type Features struct {
	Symbol         string   `json:"symbol,omitempty"`
	Exchange       string   `json:"exchange,omitempty"`
	TimeframeLabel string   `json:"timeframe_label,omitempty"`
	TFMinutes      *int     `json:"tf_minutes,omitempty"`
	ModeGuess      string   `json:"mode_guess,omitempty"`
	Trend          string   `json:"trend,omitempty"`
	SweptExternal  *bool    `json:"swept_external,omitempty"`
	POIs           []POI    `json:"pois,omitempty"`
	Notes          []string `json:"notes,omitempty"`
}

// IsZero reports a record with nothing known.
func (f Features) IsZero() bool {
	return f.Symbol == "" && f.Exchange == "" && f.TimeframeLabel == "" && f.TFMinutes == nil &&
		f.ModeGuess == "" && f.Trend == "" && f.SweptExternal == nil && len(f.POIs) == 0 && len(f.Notes) == 0
}

// Map returns the JSON object form, used when features travel inside plan meta.
func (f Features) Map() map[string]any {
	buf, err := json.Marshal(f)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(buf, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// Decode reads features from a loosely shaped object. Unknown or mistyped
// fields are ignored.
func Decode(obj map[string]any) Features {
	if len(obj) == 0 {
		return Features{}
	}
	buf, err := json.Marshal(obj)
	if err != nil {
		return Features{}
	}
	return Parse(buf)
}

// Parse reads features from raw JSON.
func Parse(raw []byte) Features {
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return Features{}
	}
	f := Features{
		Symbol:         firstString(doc, "symbol", "instrument", "pair"),
		Exchange:       firstString(doc, "exchange"),
		TimeframeLabel: firstString(doc, "timeframe_label", "tf_label", "timeframe"),
		ModeGuess:      normalizeMode(firstString(doc, "mode_guess", "mode")),
		Trend:          normalizeTrend(firstString(doc, "trend")),
	}
	if tf := doc.Get("tf_minutes"); tf.Exists() && tf.Type == gjson.Number && tf.Int() > 0 {
		n := int(tf.Int())
		f.TFMinutes = &n
	} else if f.TimeframeLabel != "" {
		if n, ok := timeframe.Parse(f.TimeframeLabel); ok {
			f.TFMinutes = &n
		}
	}
	if f.ModeGuess == "" && f.TFMinutes != nil {
		f.ModeGuess = timeframe.ModeFor(*f.TFMinutes)
	}
	if swept := doc.Get("swept_external"); swept.IsBool() {
		b := swept.Bool()
		f.SweptExternal = &b
	}
	doc.Get("pois").ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		poi := POI{
			Type:  strings.TrimSpace(item.Get("type").String()),
			Side:  strings.TrimSpace(item.Get("side").String()),
			Label: strings.TrimSpace(item.Get("label").String()),
		}
		if p := item.Get("price"); p.Exists() {
			if v := p.Float(); v != 0 {
				poi.Price = &v
			}
		}
		f.POIs = append(f.POIs, poi)
		return true
	})
	notes := doc.Get("notes")
	switch {
	case notes.IsArray():
		notes.ForEach(func(_, n gjson.Result) bool {
			if s := strings.TrimSpace(n.String()); s != "" {
				f.Notes = append(f.Notes, s)
			}
			return true
		})
	case notes.Type == gjson.String:
		if s := strings.TrimSpace(notes.String()); s != "" {
			f.Notes = []string{s}
		}
	}
	return f
}

func firstString(doc gjson.Result, keys ...string) string {
	for _, k := range keys {
		v := doc.Get(k)
		if v.Type == gjson.String {
			if s := strings.TrimSpace(v.String()); s != "" {
				return s
			}
		}
	}
	return ""
}

func normalizeTrend(v string) string {
	switch strings.ToLower(v) {
	case "up", "bullish", "uptrend":
		return "up"
	case "down", "bearish", "downtrend":
		return "down"
	case "range", "sideways", "ranging", "flat":
		return "range"
	}
	return ""
}

func normalizeMode(v string) string {
	switch strings.ToLower(v) {
	case timeframe.ModeScalp:
		return timeframe.ModeScalp
	case timeframe.ModeSwing:
		return timeframe.ModeSwing
	}
	return ""
}
