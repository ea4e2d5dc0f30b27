package market

import (
	"context"
	"fmt"
	"strings"

	"tradecoach/internal/logger"
)

const (
	DefaultSymbol   = "LINKUSDT"
	DefaultInterval = "15m"
	DefaultLimit    = 500
)

var validIntervals = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
	"1d": true, "3d": true, "1w": true, "1M": true,
}

// OHLCV is the candle payload returned to chart clients.
type OHLCV struct {
	Provider   string      `json:"provider"`
	Symbol     string      `json:"symbol"`
	Interval   string      `json:"interval"`
	Candles    Candles     `json:"candles"`
	Indicators *Indicators `json:"indicators,omitempty"`
}

type Service struct {
	src Source
}

func NewService(src Source) *Service {
	return &Service{src: src}
}

// OHLCV fetches candles and, when asked, indicator overlays.
func (s *Service) OHLCV(ctx context.Context, symbol, interval string, limit int, withIndicators bool) (OHLCV, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		symbol = DefaultSymbol
	}
	interval = strings.TrimSpace(interval)
	if interval == "" {
		interval = DefaultInterval
	}
	if interval != "1M" {
		interval = strings.ToLower(interval)
	}
	if !validIntervals[interval] {
		return OHLCV{}, fmt.Errorf("%w %q", ErrUnsupportedInterval, interval)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	candles, err := s.src.Candles(ctx, symbol, interval, limit)
	if err != nil {
		logger.Warnf("[market] %s candles %s %s failed: %v", s.src.Name(), symbol, interval, err)
		return OHLCV{}, err
	}
	out := OHLCV{Provider: s.src.Name(), Symbol: symbol, Interval: interval, Candles: candles}
	if out.Candles == nil {
		out.Candles = Candles{}
	}
	if withIndicators {
		ind := ComputeIndicators(out.Candles)
		out.Indicators = &ind
	}
	return out, nil
}

func (s *Service) Price(ctx context.Context, symbol string) (Ticker, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Ticker{}, ErrSymbolRequired
	}
	return s.src.Ticker(ctx, symbol)
}
