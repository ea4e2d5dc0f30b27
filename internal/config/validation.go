package config

import (
	"fmt"
	"strings"
)

// validate rejects configurations the service cannot run with.
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.AI.Vision.validate("ai.vision"); err != nil {
		return err
	}
	if err := c.AI.Planner.validate("ai.planner"); err != nil {
		return err
	}
	if c.AI.Retry.MaxRetries < 0 {
		return fmt.Errorf("ai.retry.max_retries must be >= 0")
	}
	if c.AI.Retry.BaseDelayMs < 0 {
		return fmt.Errorf("ai.retry.base_delay_ms must be >= 0")
	}
	if err := c.RateLimit.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AppConfig) validate() error {
	if a.MaxImageBytes <= 0 {
		return fmt.Errorf("app.max_image_bytes must be > 0")
	}
	switch strings.ToLower(a.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("app.log_format must be text or json, got %q", a.LogFormat)
	}
	return nil
}

func (p *ProviderConfig) validate(prefix string) error {
	if strings.TrimSpace(p.BaseURL) == "" {
		return fmt.Errorf("%s.base_url cannot be empty", prefix)
	}
	if strings.TrimSpace(p.Model) == "" {
		return fmt.Errorf("%s.model cannot be empty", prefix)
	}
	if p.TimeoutMs <= 0 {
		return fmt.Errorf("%s.timeout_ms must be > 0", prefix)
	}
	if p.Temperature < 0 || p.Temperature > 2 {
		return fmt.Errorf("%s.temperature must be within [0,2]", prefix)
	}
	if p.RequestsPerMinute < 0 {
		return fmt.Errorf("%s.requests_per_minute must be >= 0", prefix)
	}
	return nil
}

func (r *RateLimitConfig) validate() error {
	switch r.Backend {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(r.Path) == "" {
			return fmt.Errorf("rate_limit.path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("rate_limit.backend must be memory or sqlite, got %q", r.Backend)
	}
	if r.Limit <= 0 {
		return fmt.Errorf("rate_limit.limit must be > 0")
	}
	if r.WindowMs <= 0 {
		return fmt.Errorf("rate_limit.window_ms must be > 0")
	}
	return nil
}
