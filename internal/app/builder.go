package app

import (
	"context"
	"fmt"

	"tradecoach/internal/config"
	"tradecoach/internal/logger"
	"tradecoach/internal/market"
	"tradecoach/internal/plan"
	"tradecoach/internal/planner"
	"tradecoach/internal/prompt"
	"tradecoach/internal/ratelimit"
	"tradecoach/internal/transport/http/tradechat"
	"tradecoach/internal/vision"
)

type AppBuilder struct {
	cfg *config.Config

	providersFn func(config.Config) (*providerClients, error)
	edgesFn     func(config.EdgeConfig) (*prompt.Registry, error)
	limiterFn   func(config.RateLimitConfig) (*ratelimit.Limiter, error)
	marketFn    func(config.MarketConfig) (*market.Service, error)
	httpFn      func(tradechat.ServerConfig) (*tradechat.Server, error)
}

type AppBuilderOption func(*AppBuilder)

// WithLimiter replaces the rate limiter construction.
func WithLimiter(fn func(config.RateLimitConfig) (*ratelimit.Limiter, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.limiterFn = fn }
}

// WithMarket replaces the market data construction.
func WithMarket(fn func(config.MarketConfig) (*market.Service, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.marketFn = fn }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:         cfg,
		providersFn: buildProviderClients,
		edgesFn:     buildEdgeRegistry,
		limiterFn:   buildLimiter,
		marketFn:    buildMarketService,
		httpFn:      tradechat.NewServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.Level())
	logger.SetFormat(cfg.App.LogFormat)

	clients, err := b.providersFn(*cfg)
	if err != nil {
		return nil, err
	}
	edges, err := b.edgesFn(cfg.Edge)
	if err != nil {
		return nil, err
	}
	validator, err := plan.NewValidator()
	if err != nil {
		return nil, fmt.Errorf("compile plan schema: %w", err)
	}
	svc := planner.NewService(planner.Deps{
		Vision:         vision.NewExtractor(clients.vision, cfg.AI.Vision.Timeout()),
		VisionGateway:  clients.vision,
		Planner:        clients.planner,
		Edges:          edges,
		Validator:      validator,
		PlannerTimeout: cfg.AI.Planner.Timeout(),
	})

	limiter, err := b.limiterFn(cfg.RateLimit)
	if err != nil {
		return nil, err
	}
	marketSvc, err := b.marketFn(cfg.Market)
	if err != nil {
		_ = limiter.Close()
		return nil, err
	}
	serverCfg := tradechat.ServerConfig{
		Addr:          cfg.App.HTTPAddr,
		Planner:       svc,
		Limiter:       limiter,
		Models:        clients.planner,
		MaxImageBytes: cfg.App.MaxImageBytes,
	}
	if marketSvc != nil {
		serverCfg.Market = marketSvc
	}
	server, err := b.httpFn(serverCfg)
	if err != nil {
		_ = limiter.Close()
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		_ = limiter.Close()
		return nil, err
	}

	return &App{
		cfg:     cfg,
		server:  server,
		limiter: limiter,
		edges:   edges,
		Summary: newStartupSummary(cfg, clients, edges.Snapshot()),
	}, nil
}

func buildEdgeRegistry(cfg config.EdgeConfig) (*prompt.Registry, error) {
	reg, err := prompt.NewRegistry(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("load edge: %w", err)
	}
	return reg, nil
}

func buildLimiter(cfg config.RateLimitConfig) (*ratelimit.Limiter, error) {
	var store ratelimit.Store
	switch cfg.Backend {
	case "sqlite":
		s, err := ratelimit.NewSQLStore(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open rate limit store: %w", err)
		}
		store = s
	default:
		store = ratelimit.NewMemoryStore()
	}
	logger.Infof("rate limit backend=%s limit=%d window=%s", cfg.Backend, cfg.Limit, cfg.Window())
	return ratelimit.New(store, cfg.Limit, cfg.Window()), nil
}
