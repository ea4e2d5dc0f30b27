package config

import (
	"strings"
	"time"
)

// Config is the root of configs/config.yaml.
type Config struct {
	App       AppConfig       `toml:"app"`
	AI        AIConfig        `toml:"ai"`
	Edge      EdgeConfig      `toml:"edge"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Market    MarketConfig    `toml:"market"`
}

type AppConfig struct {
	Env           string `toml:"env"`
	LogLevel      string `toml:"log_level"`
	LogFormat     string `toml:"log_format"`
	HTTPAddr      string `toml:"http_addr"`
	LogPath       string `toml:"log_path"`
	LLMLog        string `toml:"llm_log_path"`
	LLMDump       bool   `toml:"llm_dump_payload"`
	LLMSnippet    int    `toml:"llm_snippet_chars"`
	DebugAI       bool   `toml:"debug_ai"`
	MaxImageBytes int64  `toml:"max_image_bytes"`
}

// Level is the effective log level; debug_ai forces debug.
func (a AppConfig) Level() string {
	if a.DebugAI {
		return "debug"
	}
	return a.LogLevel
}

// Production reports whether the service runs with production guards.
func (a AppConfig) Production() bool {
	switch strings.ToLower(strings.TrimSpace(a.Env)) {
	case "production", "prod":
		return true
	}
	return false
}

type AIConfig struct {
	Vision                ProviderConfig    `toml:"vision"`
	Planner               ProviderConfig    `toml:"planner"`
	Retry                 RetryConfig       `toml:"retry"`
	ModelAliases          map[string]string `toml:"model_aliases"`
	AllowFreeModelsInProd bool              `toml:"allow_free_models_in_prod"`
	Breaker               BreakerConfig     `toml:"breaker"`
}

// ProviderConfig describes one OpenAI-compatible endpoint.
type ProviderConfig struct {
	Name              string            `toml:"name"`
	BaseURL           string            `toml:"base_url"`
	APIKey            string            `toml:"api_key"`
	APIKeyAlt         string            `toml:"api_key_alt"`
	Model             string            `toml:"model"`
	Fallbacks         []string          `toml:"fallbacks"`
	TimeoutMs         int               `toml:"timeout_ms"`
	Temperature       float64           `toml:"temperature"`
	MaxTokens         int               `toml:"max_tokens"`
	Headers           map[string]string `toml:"headers"`
	RequestsPerMinute int               `toml:"requests_per_minute"`
}

func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

type RetryConfig struct {
	MaxRetries  int `toml:"max_retries"`
	BaseDelayMs int `toml:"base_delay_ms"`
	MaxDelayMs  int `toml:"max_delay_ms"`
}

type BreakerConfig struct {
	Threshold   int `toml:"threshold"`
	CooldownSec int `toml:"cooldown_seconds"`
}

type EdgeConfig struct {
	// Path of an edge YAML file; empty uses the embedded default.
	Path string `toml:"path"`
}

type RateLimitConfig struct {
	Backend  string `toml:"backend"`
	Path     string `toml:"path"`
	Limit    int    `toml:"limit"`
	WindowMs int    `toml:"window_ms"`
}

func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowMs) * time.Millisecond
}

type MarketConfig struct {
	RESTBaseURL    string `toml:"rest_base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	ProxyEnabled   bool   `toml:"proxy_enabled"`
	ProxyURL       string `toml:"proxy_url"`
}

// keySet tracks the field paths the config files set explicitly.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault is the default rule for a single field.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
