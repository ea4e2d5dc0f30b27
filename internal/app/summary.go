package app

import (
	"fmt"
	"strings"

	"tradecoach/internal/config"
	"tradecoach/internal/logger"
	"tradecoach/internal/pkg/text"
	"tradecoach/internal/prompt"
)

type StartupSummary struct {
	Env       string
	HTTPAddr  string
	Vision    ProviderSummary
	Planner   ProviderSummary
	Edge      EdgeSummary
	RateLimit string
}

type ProviderSummary struct {
	Name      string
	BaseURL   string
	Models    []string
	Key       string
	TimeoutMs int
}

type EdgeSummary struct {
	ID       string
	Version  int
	Source   string
	Revision int64
}

func newStartupSummary(cfg *config.Config, clients *providerClients, edge prompt.Snapshot) *StartupSummary {
	return &StartupSummary{
		Env:      cfg.App.Env,
		HTTPAddr: cfg.App.HTTPAddr,
		Vision: ProviderSummary{
			Name:      clients.vision.Name(),
			BaseURL:   cfg.AI.Vision.BaseURL,
			Models:    clients.vision.Candidates(),
			Key:       text.MaskSecret(cfg.AI.Vision.APIKey),
			TimeoutMs: cfg.AI.Vision.TimeoutMs,
		},
		Planner: ProviderSummary{
			Name:      clients.planner.Name(),
			BaseURL:   cfg.AI.Planner.BaseURL,
			Models:    []string{clients.planner.Model()},
			Key:       text.MaskSecret(cfg.AI.Planner.APIKey),
			TimeoutMs: cfg.AI.Planner.TimeoutMs,
		},
		Edge: EdgeSummary{
			ID:       edge.Edge.ID,
			Version:  edge.Edge.Version,
			Source:   edge.Source,
			Revision: edge.Revision,
		},
		RateLimit: fmt.Sprintf("%s %d/%dms", cfg.RateLimit.Backend, cfg.RateLimit.Limit, cfg.RateLimit.WindowMs),
	}
}

func (s *StartupSummary) String() string {
	var b strings.Builder
	b.WriteString(strings.Repeat("=", 80) + "\n")
	b.WriteString("STARTUP SUMMARY\n")
	b.WriteString(strings.Repeat("=", 80) + "\n")
	fmt.Fprintf(&b, "  env: %s  addr: %s\n", s.Env, s.HTTPAddr)
	for _, p := range []struct {
		title string
		ps    ProviderSummary
	}{{"vision", s.Vision}, {"planner", s.Planner}} {
		fmt.Fprintf(&b, "[%s] %s %s timeout=%dms key=%s\n", p.title, p.ps.Name, p.ps.BaseURL, p.ps.TimeoutMs, p.ps.Key)
		fmt.Fprintf(&b, "  models: %s\n", formatList(p.ps.Models))
	}
	fmt.Fprintf(&b, "[edge] %s v%d from %s (rev %d)\n", s.Edge.ID, s.Edge.Version, s.Edge.Source, s.Edge.Revision)
	fmt.Fprintf(&b, "[rate limit] %s\n", s.RateLimit)
	b.WriteString(strings.Repeat("=", 80))
	return b.String()
}

func (s *StartupSummary) Print() {
	logger.InfoBlock(s.String())
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
