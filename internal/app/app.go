// Package app assembles the service from configuration and runs it.
package app

import (
	"context"
	"fmt"

	"tradecoach/internal/config"
	"tradecoach/internal/logger"
	"tradecoach/internal/prompt"
	"tradecoach/internal/ratelimit"
	"tradecoach/internal/transport/http/tradechat"

	"golang.org/x/sync/errgroup"
)

// App owns the long-lived pieces of the process.
type App struct {
	cfg     *config.Config
	server  *tradechat.Server
	limiter *ratelimit.Limiter
	edges   *prompt.Registry
	Summary *StartupSummary
}

// NewApp builds the application without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	return buildAppWithWire(context.Background(), cfg)
}

// Run serves HTTP until ctx is cancelled, then releases resources.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.server == nil {
		return fmt.Errorf("http server not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	defer a.Close()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// Close releases the rate-limit store.
func (a *App) Close() error {
	if a == nil || a.limiter == nil {
		return nil
	}
	err := a.limiter.Close()
	a.limiter = nil
	if err != nil {
		logger.Warnf("close rate limiter: %v", err)
	}
	return err
}

// Server exposes the HTTP server for tests and embedding.
func (a *App) Server() *tradechat.Server {
	if a == nil {
		return nil
	}
	return a.server
}
