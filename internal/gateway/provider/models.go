package provider

import (
	"regexp"
	"strings"
)

var freeModelPattern = regexp.MustCompile(`:free\b`)

// DefaultAliases maps convenience names to DeepSeek model ids.
func DefaultAliases() map[string]string {
	return map[string]string{
		"deepseek-v3.2-exp": "deepseek-reasoner",
		"deepseek-v3.2":     "deepseek-reasoner",
		"deepseek-v3.1":     "deepseek-v3",
		"deepseek-v3-exp":   "deepseek-v3",
		"deepseek-r1":       "deepseek-reasoner",
		"deepseek/reasoner": "deepseek-reasoner",
		"deepseek/chat":     "deepseek-chat",
	}
}

// NormalizeModel resolves an alias (case-insensitive) to its canonical id.
func NormalizeModel(model string, aliases map[string]string) string {
	model = strings.TrimSpace(model)
	if model == "" {
		return ""
	}
	if target, ok := aliases[strings.ToLower(model)]; ok && strings.TrimSpace(target) != "" {
		return strings.TrimSpace(target)
	}
	return model
}

// IsFreeModel reports a free-tier model id such as "x/y:free".
func IsFreeModel(model string) bool {
	return freeModelPattern.MatchString(model)
}

// CandidateList joins a primary model and fallbacks, resolving aliases and
// dropping blanks and duplicates while keeping order.
func CandidateList(primary string, fallbacks []string, aliases map[string]string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(fallbacks)+1)
	for _, m := range append([]string{primary}, fallbacks...) {
		m = NormalizeModel(m, aliases)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// Rotate moves the first n models to the end.
func Rotate(models []string, n int) []string {
	if len(models) == 0 {
		return nil
	}
	n %= len(models)
	out := make([]string, 0, len(models))
	out = append(out, models[n:]...)
	return append(out, models[:n]...)
}
