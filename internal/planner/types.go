package planner

import (
	"tradecoach/internal/plan"
	"tradecoach/internal/vision"
)

// AnalyzeInput is one chart upload with optional metadata.
type AnalyzeInput struct {
	ImageDataURL         string
	Instrument           string
	Timeframe            string
	Note                 string
	RiskPct              string
	TraceID              string
	SkipVision           bool
	ForceNextVisionModel bool
}

// RefineInput carries the previous plan and the user's answers.
type RefineInput struct {
	Previous map[string]any
	Answers  map[string]string
	TraceID  string
}

// Meta is the authoritative context echoed back to the client. Features is
// kept so a later refine can fall back to it.
type Meta struct {
	Instrument  string           `json:"instrument"`
	Timeframe   string           `json:"timeframe"`
	RiskPct     string           `json:"risk_pct"`
	Mode        string           `json:"mode"`
	Confidence  *float64         `json:"confidence,omitempty"`
	VisionModel string           `json:"vision_model,omitempty"`
	Features    *vision.Features `json:"features,omitempty"`
}

// Response is the success envelope. Exactly one of Questions and Suggestions
// is non-empty.
type Response struct {
	TraceID     string            `json:"traceId"`
	Meta        Meta              `json:"meta"`
	Questions   []plan.Question   `json:"questions"`
	Suggestions []plan.Suggestion `json:"suggestions"`
	Warnings    []string          `json:"warnings,omitempty"`
}

// PingResult is the health of one provider.
type PingResult struct {
	OK    bool           `json:"ok"`
	Model string         `json:"model,omitempty"`
	Raw   string         `json:"raw"`
	JSON  map[string]any `json:"json"`
	Error string         `json:"error,omitempty"`
}

type HealthReport struct {
	OK      bool       `json:"ok"`
	Vision  PingResult `json:"vision"`
	Planner PingResult `json:"planner"`
}

type SelfTestReport struct {
	OK      bool           `json:"ok"`
	Model   string         `json:"model"`
	TraceID string         `json:"traceId"`
	Sample  map[string]any `json:"sample"`
}
