package app

import (
	"strings"
	"time"

	"tradecoach/internal/config"
	"tradecoach/internal/gateway/provider"
	"tradecoach/internal/logger"
	"tradecoach/internal/pkg/text"
)

type providerClients struct {
	vision  *provider.Client
	planner *provider.Client
}

func buildProviderClients(cfg config.Config) (*providerClients, error) {
	policy := provider.DefaultPolicy()
	policy.MaxRetries = cfg.AI.Retry.MaxRetries
	policy.BaseDelay = time.Duration(cfg.AI.Retry.BaseDelayMs) * time.Millisecond
	if cfg.AI.Retry.MaxDelayMs > 0 {
		policy.MaxDelay = time.Duration(cfg.AI.Retry.MaxDelayMs) * time.Millisecond
	}
	var aliases map[string]string
	if len(cfg.AI.ModelAliases) > 0 {
		aliases = provider.DefaultAliases()
		for k, v := range cfg.AI.ModelAliases {
			aliases[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
	common := func(p config.ProviderConfig) provider.Config {
		temp := p.Temperature
		return provider.Config{
			Name:              p.Name,
			BaseURL:           p.BaseURL,
			APIKey:            p.APIKey,
			APIKeyAlt:         p.APIKeyAlt,
			Model:             p.Model,
			Fallbacks:         p.Fallbacks,
			Timeout:           p.Timeout(),
			Temperature:       &temp,
			MaxTokens:         p.MaxTokens,
			Headers:           p.Headers,
			RequestsPerMinute: p.RequestsPerMinute,
			Aliases:           aliases,
			Production:        cfg.App.Production(),
			AllowFreeInProd:   cfg.AI.AllowFreeModelsInProd,
			Debug:             cfg.App.DebugAI,
			BreakerThreshold:  cfg.AI.Breaker.Threshold,
			BreakerCooldown:   time.Duration(cfg.AI.Breaker.CooldownSec) * time.Second,
		}
	}
	vision := provider.New(common(cfg.AI.Vision), provider.WithPolicy(policy))
	planner := provider.New(common(cfg.AI.Planner), provider.WithPolicy(policy))
	if strings.TrimSpace(cfg.AI.Vision.APIKey) == "" {
		logger.Warnf("ai.vision.api_key is empty; vision calls will fail")
	}
	if strings.TrimSpace(cfg.AI.Planner.APIKey) == "" {
		logger.Warnf("ai.planner.api_key is empty; planner calls will fail")
	}
	logger.Infof("vision provider %s models=%v key=%s", vision.Name(), vision.Candidates(), text.MaskSecret(cfg.AI.Vision.APIKey))
	logger.Infof("planner provider %s model=%s key=%s", planner.Name(), planner.Model(), text.MaskSecret(cfg.AI.Planner.APIKey))
	return &providerClients{vision: vision, planner: planner}, nil
}
