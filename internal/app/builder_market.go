package app

import (
	"fmt"
	"time"

	"tradecoach/internal/config"
	"tradecoach/internal/gateway/binance"
	"tradecoach/internal/market"
)

func buildMarketService(cfg config.MarketConfig) (*market.Service, error) {
	src, err := binance.New(binance.Config{
		RESTBaseURL:  cfg.RESTBaseURL,
		HTTPTimeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		ProxyEnabled: cfg.ProxyEnabled,
		RESTProxyURL: cfg.ProxyURL,
	})
	if err != nil {
		return nil, fmt.Errorf("build market source: %w", err)
	}
	return market.NewService(src), nil
}
