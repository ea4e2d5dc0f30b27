package planner

import (
	"context"
	"net/http"
	"strings"

	"tradecoach/internal/gateway/provider"
	"tradecoach/internal/logger"
	"tradecoach/internal/pkg/jsonutil"
	"tradecoach/internal/pkg/text"

	"golang.org/x/sync/errgroup"
)

const (
	visionPingTag  = "vision_ok"
	plannerPingTag = "planner_ok"
	selfTestSystem = "You are an SMC trading planner. Return EXACTLY ONE JSON object matching {meta,questions,suggestions,warnings}. No prose."
)

// Health pings the vision and planner providers concurrently.
func (s *Service) Health(ctx context.Context) HealthReport {
	var report HealthReport
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if s.deps.VisionGateway == nil {
			report.Vision = PingResult{Error: "vision gateway not configured", JSON: map[string]any{}}
			return nil
		}
		out, err := s.deps.VisionGateway.Ping(gctx, visionPingTag, s.deps.VisionGateway.Candidates()...)
		report.Vision = pingResult(visionPingTag, out, err)
		return nil
	})
	g.Go(func() error {
		out, err := s.deps.Planner.Ping(gctx, plannerPingTag)
		report.Planner = pingResult(plannerPingTag, out, err)
		return nil
	})
	_ = g.Wait()
	report.OK = report.Vision.OK && report.Planner.OK
	if !report.OK {
		logger.Warnf("[health] vision=%t planner=%t", report.Vision.OK, report.Planner.OK)
	}
	return report
}

func pingResult(tag string, out provider.Completion, err error) PingResult {
	res := PingResult{Model: out.Model, Raw: out.Content, JSON: map[string]any{}}
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if obj, ok := jsonutil.Coerce(out.Content); ok {
		res.JSON = obj
		if v, _ := obj["ping"].(string); strings.EqualFold(strings.TrimSpace(v), tag) {
			res.OK = true
		}
	}
	return res
}

// SelfTest sends a canned BTCUSDT context to the planner and reports whether
// the answer is plan-shaped.
func (s *Service) SelfTest(ctx context.Context, traceID string) (SelfTestReport, error) {
	traceID = s.TraceID(traceID)
	payload := map[string]any{
		"instrument": "BTCUSDT",
		"timeframe":  "1H",
		"mode":       "swing",
		"features": map[string]any{
			"trend": "up",
			"pois": []any{
				map[string]any{"type": "swing_high", "price": 69250},
				map[string]any{"type": "swing_low", "price": 66100},
			},
			"notes": []any{"liquidity sweep of the high"},
		},
	}
	out, err := s.deps.Planner.Chat(ctx, provider.ChatRequest{
		Messages: []provider.Message{
			provider.SystemMessage(selfTestSystem),
			provider.UserMessage(jsonutil.Compact(payload)),
		},
		JSONMode: true,
		Timeout:  s.deps.PlannerTimeout,
		Kind:     provider.KindPlanner,
		TraceID:  traceID,
	})
	if err != nil {
		return SelfTestReport{}, classifyGatewayError("selftest", err)
	}
	sample, ok := jsonutil.Coerce(out.Content)
	if !ok {
		return SelfTestReport{}, NewError(http.StatusBadGateway, CodeParseFailed, "planner output is not JSON: "+text.Truncate(out.Content, 600))
	}
	_, hasSuggestions := sample["suggestions"].([]any)
	_, hasQuestions := sample["questions"].([]any)
	return SelfTestReport{
		OK:      hasSuggestions || hasQuestions,
		Model:   out.Model,
		TraceID: traceID,
		Sample:  sample,
	}, nil
}
