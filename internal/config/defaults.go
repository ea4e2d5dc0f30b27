package config

import (
	"strings"
)

const (
	defaultAppEnv        = "development"
	defaultAppLogLevel   = "info"
	defaultAppLogFormat  = "text"
	defaultAppHTTPAddr   = ":3000"
	defaultLLMSnippet    = 2000
	defaultMaxImageBytes = 8 << 20

	defaultVisionName     = "openrouter"
	defaultVisionBase     = "https://openrouter.ai/api/v1"
	defaultVisionModel    = "qwen/qwen2.5-vl-32b-instruct:free"
	defaultVisionTimeout  = 60000
	defaultPlannerName    = "deepseek"
	defaultPlannerBase    = "https://api.deepseek.com/v1"
	defaultPlannerModel   = "deepseek-chat"
	defaultPlannerTimeout = 90000
	defaultTemperature    = 0.2
	defaultMaxTokens      = 1400
	defaultReferer        = "http://localhost:3000"
	defaultTitle          = "TraderBro"

	defaultRetryMax       = 2
	defaultRetryBaseDelay = 600
	defaultRetryMaxDelay  = 15000
	defaultBreakerTrip    = 3
	defaultBreakerCool    = 60

	defaultRateBackend = "memory"
	defaultRatePath    = "data/ratelimit.db"
	defaultRateLimit   = 10
	defaultRateWindow  = 60000

	defaultMarketREST    = "https://api.binance.com"
	defaultMarketTimeout = 10
)

// applyDefaults fills every field the files left unset.
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.AI.applyDefaults(keys)
	c.RateLimit.applyDefaults(keys)
	c.Market.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
		intFieldDefault("app.llm_snippet_chars", &a.LLMSnippet, defaultLLMSnippet),
		fieldDefault{
			key:   "app.max_image_bytes",
			need:  func() bool { return a.MaxImageBytes <= 0 },
			apply: func() { a.MaxImageBytes = defaultMaxImageBytes },
		},
	)
}

func (a *AIConfig) applyDefaults(keys keySet) {
	a.Vision.applyDefaults(keys, "ai.vision", defaultVisionName, defaultVisionBase, defaultVisionModel, defaultVisionTimeout)
	a.Planner.applyDefaults(keys, "ai.planner", defaultPlannerName, defaultPlannerBase, defaultPlannerModel, defaultPlannerTimeout)
	if a.Vision.Headers == nil && !keys.isSet("ai.vision.headers") {
		a.Vision.Headers = map[string]string{
			"HTTP-Referer": defaultReferer,
			"X-Title":      defaultTitle,
		}
	}
	applyFieldDefaults(keys,
		intFieldDefault("ai.retry.max_retries", &a.Retry.MaxRetries, defaultRetryMax),
		intFieldDefault("ai.retry.base_delay_ms", &a.Retry.BaseDelayMs, defaultRetryBaseDelay),
		intFieldDefault("ai.retry.max_delay_ms", &a.Retry.MaxDelayMs, defaultRetryMaxDelay),
		intFieldDefault("ai.breaker.threshold", &a.Breaker.Threshold, defaultBreakerTrip),
		intFieldDefault("ai.breaker.cooldown_seconds", &a.Breaker.CooldownSec, defaultBreakerCool),
	)
}

func (p *ProviderConfig) applyDefaults(keys keySet, prefix, name, base, model string, timeoutMs int) {
	applyFieldDefaults(keys,
		stringFieldDefault(prefix+".name", &p.Name, name),
		stringFieldDefault(prefix+".base_url", &p.BaseURL, base),
		stringFieldDefault(prefix+".model", &p.Model, model),
		intFieldDefault(prefix+".timeout_ms", &p.TimeoutMs, timeoutMs),
		intFieldDefault(prefix+".max_tokens", &p.MaxTokens, defaultMaxTokens),
		fieldDefault{
			key:   prefix + ".temperature",
			need:  func() bool { return p.Temperature == 0 },
			apply: func() { p.Temperature = defaultTemperature },
		},
	)
}

func (r *RateLimitConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("rate_limit.backend", &r.Backend, defaultRateBackend),
		stringFieldDefault("rate_limit.path", &r.Path, defaultRatePath),
		intFieldDefault("rate_limit.limit", &r.Limit, defaultRateLimit),
		intFieldDefault("rate_limit.window_ms", &r.WindowMs, defaultRateWindow),
	)
	r.Backend = strings.ToLower(strings.TrimSpace(r.Backend))
}

func (m *MarketConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("market.rest_base_url", &m.RESTBaseURL, defaultMarketREST),
		intFieldDefault("market.timeout_seconds", &m.TimeoutSeconds, defaultMarketTimeout),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
