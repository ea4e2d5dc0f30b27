package config

import (
	"fmt"
	"strconv"
	"strings"
)

// applyEnv lets environment variables override file values.
func applyEnv(c *Config, lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	str := func(target *string, keys ...string) {
		for _, k := range keys {
			if v, ok := get(k); ok {
				*target = v
				return
			}
		}
	}
	var errs []string
	integer := func(target *int, key string) {
		if v, ok := get(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", key, err))
				return
			}
			*target = n
		}
	}
	flag := func(target *bool, key string) {
		if v, ok := get(key); ok {
			*target = truthy(v)
		}
	}

	str(&c.App.Env, "APP_ENV", "NODE_ENV")
	str(&c.App.HTTPAddr, "HTTP_ADDR")
	flag(&c.App.DebugAI, "DEBUG_AI")
	flag(&c.AI.AllowFreeModelsInProd, "ALLOW_FREE_MODELS_IN_PROD")

	vision := &c.AI.Vision
	str(&vision.BaseURL, "OPENROUTER_BASE")
	str(&vision.APIKey, "OPENROUTER_API_KEY_VISION", "OPENROUTER_API_KEY")
	str(&vision.APIKeyAlt, "OPENROUTER_API_KEY_ALT")
	str(&vision.Model, "OPENROUTER_VL_MODEL")
	if v, ok := get("OPENROUTER_VL_FALLBACKS"); ok {
		vision.Fallbacks = splitList(v)
	}
	integer(&vision.TimeoutMs, "VISION_TIMEOUT_MS")

	planner := &c.AI.Planner
	str(&planner.BaseURL, "DEEPSEEK_API_BASE")
	str(&planner.APIKey, "DEEPSEEK_API_KEY")
	str(&planner.Model, "DEEPSEEK_MODEL")
	integer(&planner.TimeoutMs, "PLANNER_TIMEOUT_MS")

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
