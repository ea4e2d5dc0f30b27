// Package market serves candles, indicator overlays and 24h tickers for the
// chart views next to the planner.
package market

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSymbolNotFound      = errors.New("symbol not found")
	ErrUnsupportedInterval = errors.New("unsupported interval")
	ErrSymbolRequired      = errors.New("symbol is required")
)

type Candle struct {
	OpenTime  int64   `json:"openTime"`
	CloseTime int64   `json:"closeTime"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades,omitempty"`
}

type Candles []Candle

// Closes returns the close series in candle order.
func (cs Candles) Closes() []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

// Ticker is a 24h rolling summary.
type Ticker struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Change24h float64   `json:"change24h"`
	Volume24h float64   `json:"volume24h"`
	High24h   float64   `json:"high24h"`
	Low24h    float64   `json:"low24h"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

// Source is an exchange market-data backend.
type Source interface {
	Name() string
	Candles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	Ticker(ctx context.Context, symbol string) (Ticker, error)
}
