package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"tradecoach/internal/market"
	"tradecoach/internal/pkg/symbol"

	gobinance "github.com/adshao/go-binance/v2"
)

const maxKlineLimit = 1000

// Source reads spot market data through the go-binance SDK.
type Source struct {
	cfg    Config
	client *gobinance.Client
}

func New(cfg Config) (*Source, error) {
	final := cfg.withDefaults()
	client := gobinance.NewClient("", "")
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &Source{cfg: final, client: client}, nil
}

func (s *Source) Name() string { return "binance" }

func (s *Source) Candles(ctx context.Context, sym, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 500
	}
	if limit > maxKlineLimit {
		limit = maxKlineLimit
	}
	clean := symbol.Binance(sym)
	if clean == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	interval = strings.TrimSpace(interval)
	if interval == "" {
		return nil, fmt.Errorf("interval is required")
	}
	kls, err := s.client.NewKlinesService().Symbol(clean).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance klines %s %s: %w", clean, interval, err)
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		if kl == nil {
			continue
		}
		out = append(out, market.Candle{
			OpenTime:  kl.OpenTime,
			CloseTime: kl.CloseTime,
			Open:      parseFloat(kl.Open),
			High:      parseFloat(kl.High),
			Low:       parseFloat(kl.Low),
			Close:     parseFloat(kl.Close),
			Volume:    parseFloat(kl.Volume),
			Trades:    kl.TradeNum,
		})
	}
	return out, nil
}

func (s *Source) Ticker(ctx context.Context, sym string) (market.Ticker, error) {
	clean := symbol.Binance(sym)
	if clean == "" {
		return market.Ticker{}, fmt.Errorf("symbol is required")
	}
	stats, err := s.client.NewListPriceChangeStatsService().Symbol(clean).Do(ctx)
	if err != nil {
		return market.Ticker{}, fmt.Errorf("binance ticker %s: %w", clean, err)
	}
	if len(stats) == 0 || stats[0] == nil {
		return market.Ticker{}, fmt.Errorf("binance ticker %s: %w", clean, market.ErrSymbolNotFound)
	}
	st := stats[0]
	ts := time.Now().UTC()
	if st.CloseTime > 0 {
		ts = time.UnixMilli(st.CloseTime).UTC()
	}
	return market.Ticker{
		Symbol:    st.Symbol,
		Price:     parseFloat(st.LastPrice),
		Change24h: parseFloat(st.PriceChangePercent),
		Volume24h: parseFloat(st.QuoteVolume),
		High24h:   parseFloat(st.HighPrice),
		Low24h:    parseFloat(st.LowPrice),
		Timestamp: ts,
		Source:    s.Name(),
	}, nil
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
