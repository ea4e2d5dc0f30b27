// Package tradechat exposes the planner pipeline over HTTP.
package tradechat

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tradecoach/internal/gateway/provider"
	"tradecoach/internal/logger"
	"tradecoach/internal/market"
	"tradecoach/internal/planner"
	"tradecoach/internal/ratelimit"

	"github.com/gin-gonic/gin"
)

const (
	defaultAddr          = ":3000"
	defaultMaxImageBytes = 8 << 20
)

// Planner is the planner service as seen by the handlers.
type Planner interface {
	Analyze(ctx context.Context, in planner.AnalyzeInput) (planner.Response, error)
	Refine(ctx context.Context, in planner.RefineInput) (planner.Response, error)
	Health(ctx context.Context) planner.HealthReport
	SelfTest(ctx context.Context, traceID string) (planner.SelfTestReport, error)
	TraceID(id string) string
}

type ModelLister interface {
	ListModels(ctx context.Context) (provider.ModelList, error)
}

type MarketData interface {
	OHLCV(ctx context.Context, symbol, interval string, limit int, withIndicators bool) (market.OHLCV, error)
	Price(ctx context.Context, symbol string) (market.Ticker, error)
}

// ServerConfig lists the server dependencies. Models and Market are optional.
type ServerConfig struct {
	Addr          string
	Planner       Planner
	Limiter       *ratelimit.Limiter
	Models        ModelLister
	Market        MarketData
	MaxImageBytes int64
}

type Server struct {
	addr   string
	router *gin.Engine
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Planner == nil {
		return nil, errors.New("trade chat server requires a planner")
	}
	if cfg.Limiter == nil {
		return nil, errors.New("trade chat server requires a rate limiter")
	}
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.MaxImageBytes <= 0 {
		cfg.MaxImageBytes = defaultMaxImageBytes
	}
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := &handlers{
		planner:       cfg.Planner,
		limiter:       cfg.Limiter,
		models:        cfg.Models,
		market:        cfg.Market,
		maxImageBytes: cfg.MaxImageBytes,
	}
	h.register(router.Group("/api"))
	return &Server{addr: cfg.Addr, router: router}, nil
}

// requestLogger logs one line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		client := c.ClientIP()
		c.Next()
		dur := time.Since(start)
		status := c.Writer.Status()
		fullPath := path
		if query != "" {
			fullPath = path + "?" + query
		}
		logger.Infof("HTTP %s %s status=%d ip=%s dur=%s", method, fullPath, status, client, dur.Round(time.Millisecond))
	}
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Addr() string {
	if s == nil {
		return ""
	}
	return s.addr
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	logger.Infof("[http] listening on %s", s.addr)

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
