package market

import (
	"math"

	"github.com/markcheno/go-talib"
)

// Point is one indicator value aligned with a candle open time.
type Point struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

type Indicators struct {
	EMA20 []Point `json:"ema20"`
	EMA50 []Point `json:"ema50"`
	RSI14 []Point `json:"rsi14"`
}

// ComputeIndicators builds EMA(20), EMA(50) and RSI(14) overlays. Warm-up
// values that talib leaves at zero are omitted.
func ComputeIndicators(cs Candles) Indicators {
	closes := cs.Closes()
	out := Indicators{EMA20: []Point{}, EMA50: []Point{}, RSI14: []Point{}}
	if len(closes) >= 20 {
		out.EMA20 = align(cs, talib.Ema(closes, 20), 19)
	}
	if len(closes) >= 50 {
		out.EMA50 = align(cs, talib.Ema(closes, 50), 49)
	}
	if len(closes) > 14 {
		out.RSI14 = align(cs, talib.Rsi(closes, 14), 14)
	}
	return out
}

func align(cs Candles, series []float64, warmup int) []Point {
	out := make([]Point, 0, len(series))
	for i, v := range series {
		if i < warmup || i >= len(cs) || math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, Point{Time: cs[i].OpenTime, Value: v})
	}
	return out
}
