// Package vision asks a vision model to read chart features off a screenshot.
package vision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradecoach/internal/gateway/provider"
	"tradecoach/internal/logger"
	"tradecoach/internal/pkg/jsonutil"
	"tradecoach/internal/pkg/text"
)

const systemPrompt = `You are an expert technical analyst reading a trading chart screenshot.

Read the chart UI text first: symbol or pair, exchange, and the timeframe label (e.g. 15m, 1H, 4H, 1D).
Then read structure: overall trend, points of interest (order blocks, fair value gaps, liquidity pools, swing highs/lows) and whether external liquidity was swept.

Return a single JSON object only, with these optional fields:
{
  "symbol": "BTCUSDT",
  "exchange": "Binance",
  "timeframe_label": "15m",
  "tf_minutes": 15,
  "mode_guess": "scalp|swing",
  "trend": "up|down|range",
  "swept_external": true,
  "pois": [{"type": "OB|FVG|MB|liquidity", "side": "bullish|bearish", "label": "text", "price": 0}],
  "notes": ["short observation"]
}
Omit what you cannot read. Be precise with prices that are visible. No markdown, no prose.`

const userPrompt = "Analyze this trading chart image and return JSON only."

// ReasonTimeout marks a vision call that ran out of time.
const ReasonTimeout = "timeout"

// Gateway is the part of the model gateway the extractor needs.
type Gateway interface {
	ChatModels(ctx context.Context, models []string, req provider.ChatRequest) (provider.Completion, error)
	Candidates() []string
}

// Result is either extracted features (OK) or a degraded outcome with Reason.
type Result struct {
	OK       bool
	Reason   string
	Features Features
	Model    string
}

type Extractor struct {
	gw      Gateway
	timeout time.Duration
}

func NewExtractor(gw Gateway, timeout time.Duration) *Extractor {
	return &Extractor{gw: gw, timeout: timeout}
}

// Extract reads features from an image data URL. forceNext rotates the model
// list so a different model answers first. A timeout is reported as a Result
// with Reason "timeout" and a nil error.
func (e *Extractor) Extract(ctx context.Context, dataURL string, forceNext bool, traceID string) (Result, error) {
	models := e.gw.Candidates()
	if forceNext && len(models) > 1 {
		models = provider.Rotate(models, 1)
	}
	started := time.Now()
	out, err := e.gw.ChatModels(ctx, models, provider.ChatRequest{
		Messages: []provider.Message{
			provider.SystemMessage(systemPrompt),
			provider.ImageMessage(userPrompt, dataURL),
		},
		Timeout: e.timeout,
		Kind:    provider.KindVision,
		TraceID: traceID,
	})
	if err != nil {
		if provider.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
			logger.Warnf("[vision] trace=%s timed out after %s", traceID, time.Since(started).Round(time.Millisecond))
			return Result{OK: false, Reason: ReasonTimeout}, nil
		}
		return Result{}, fmt.Errorf("vision extract: %w", err)
	}
	logger.Debugf("[vision] trace=%s model=%s raw=%s", traceID, out.Model, text.Truncate(out.Content, 300))
	obj, ok := jsonutil.Coerce(out.Content)
	if !ok {
		logger.Warnf("[vision] trace=%s model=%s returned no JSON object, using empty features", traceID, out.Model)
		return Result{OK: true, Model: out.Model}, nil
	}
	return Result{OK: true, Features: Decode(obj), Model: out.Model}, nil
}
