// Package planner turns chart features and user context into a trade plan or
// a list of clarifying questions.
package planner

import (
	"context"
	"net/http"
	"strings"
	"time"

	"tradecoach/internal/gateway/provider"
	"tradecoach/internal/logger"
	"tradecoach/internal/pkg/jsonutil"
	"tradecoach/internal/pkg/text"
	"tradecoach/internal/pkg/timeframe"
	"tradecoach/internal/plan"
	"tradecoach/internal/prompt"
	"tradecoach/internal/vision"

	"github.com/google/uuid"
)

const (
	VisionTimeoutQuestionID = "vision_timeout"
	visionTimeoutText       = "Chart reading timed out. Please confirm the instrument and timeframe (e.g., BTCUSDT, 15m) so I can build the plan."
	fallbackQuestionText    = "Could you provide more context about your trading strategy or timeframe?"
)

// FeatureExtractor reads features off a chart image.
type FeatureExtractor interface {
	Extract(ctx context.Context, dataURL string, forceNext bool, traceID string) (vision.Result, error)
}

// ChatClient is the planner side of the model gateway.
type ChatClient interface {
	Chat(ctx context.Context, req provider.ChatRequest) (provider.Completion, error)
	Ping(ctx context.Context, tag string, models ...string) (provider.Completion, error)
	Model() string
}

// VisionPinger is the vision side of the model gateway, used by Health.
type VisionPinger interface {
	Ping(ctx context.Context, tag string, models ...string) (provider.Completion, error)
	Candidates() []string
}

// EdgeSource supplies the current trading edge.
type EdgeSource interface {
	Edge() prompt.Edge
}

type Deps struct {
	Vision         FeatureExtractor
	VisionGateway  VisionPinger
	Planner        ChatClient
	Edges          EdgeSource
	Validator      *plan.Validator
	PlannerTimeout time.Duration
	NewTraceID     func() string
}

// Service is stateless between calls; everything refine needs travels in
// the request.
type Service struct {
	deps Deps
}

func NewService(deps Deps) *Service {
	if deps.NewTraceID == nil {
		deps.NewTraceID = uuid.NewString
	}
	if deps.Validator == nil {
		deps.Validator = plan.MustValidator()
	}
	if deps.PlannerTimeout <= 0 {
		deps.PlannerTimeout = 90 * time.Second
	}
	return &Service{deps: deps}
}

// TraceID returns id when set, otherwise a fresh one.
func (s *Service) TraceID(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return s.deps.NewTraceID()
}

type plannerUserMessage struct {
	Truths      truthsJSON        `json:"truths"`
	Hints       Hints             `json:"hints"`
	Features    *vision.Features  `json:"features"`
	Note        string            `json:"note,omitempty"`
	Previous    map[string]any    `json:"previous,omitempty"`
	Answers     map[string]string `json:"answers,omitempty"`
	Instruction string            `json:"instruction"`
}

type truthsJSON struct {
	Instrument string `json:"instrument"`
	Timeframe  string `json:"timeframe"`
	Mode       string `json:"mode"`
}

// Analyze runs vision (unless skipped) and the planner for one chart.
func (s *Service) Analyze(ctx context.Context, in AnalyzeInput) (Response, error) {
	traceID := s.TraceID(in.TraceID)
	started := time.Now()
	logger.Infof("[planner] START analyze trace=%s skipVision=%t", traceID, in.SkipVision)

	if strings.TrimSpace(in.ImageDataURL) == "" && !in.SkipVision {
		return Response{}, NewError(http.StatusBadRequest, CodeMissingFile, "Missing 'image' file")
	}

	var (
		features       vision.Features
		visionModel    string
		visionTimedOut bool
		warnings       []string
	)
	if !in.SkipVision && strings.TrimSpace(in.ImageDataURL) != "" {
		res, err := s.deps.Vision.Extract(ctx, in.ImageDataURL, in.ForceNextVisionModel, traceID)
		switch {
		case err != nil:
			logger.Warnf("[planner] trace=%s vision failed, continuing without features: %v", traceID, err)
			warnings = append(warnings, "Chart reading failed; plan is based on your inputs only.")
		case !res.OK && res.Reason == vision.ReasonTimeout:
			visionTimedOut = true
			warnings = append(warnings, "Chart reading timed out.")
		default:
			features = res.Features
			visionModel = res.Model
		}
	}

	hints := Merge(
		Hints{Instrument: in.Instrument, Timeframe: in.Timeframe, RiskPct: in.RiskPct},
		Hints{Instrument: features.Symbol, Timeframe: features.TimeframeLabel},
	).Normalized()
	meta := s.meta(hints, features.ModeGuess)
	meta.VisionModel = visionModel
	if !features.IsZero() {
		f := features
		meta.Features = &f
	}

	msg := plannerUserMessage{
		Truths:      truthsJSON{Instrument: meta.Instrument, Timeframe: meta.Timeframe, Mode: meta.Mode},
		Hints:       hints,
		Features:    meta.Features,
		Note:        strings.TrimSpace(in.Note),
		Instruction: "Analyze this chart using the edge. Deliver a plan if the confirmation stack is satisfied, otherwise ask.",
	}
	result, err := s.plan(ctx, traceID, meta, msg)
	if err != nil {
		logger.Warnf("[planner] END analyze trace=%s outcome=error elapsed=%s: %v", traceID, time.Since(started).Round(time.Millisecond), err)
		return Response{}, err
	}
	resp := s.respond(traceID, meta, result.Plan, visionTimedOut, append(warnings, result.Plan.Warnings...))
	logger.Infof("[planner] END analyze trace=%s outcome=%s questions=%d suggestions=%d elapsed=%s",
		traceID, result.Outcome, len(resp.Questions), len(resp.Suggestions), time.Since(started).Round(time.Millisecond))
	return resp, nil
}

// Refine folds the user's answers into a second planner call.
func (s *Service) Refine(ctx context.Context, in RefineInput) (Response, error) {
	traceID := s.TraceID(in.TraceID)
	started := time.Now()
	logger.Infof("[planner] START refine trace=%s answers=%d", traceID, len(in.Answers))
	if in.Previous == nil {
		return Response{}, NewError(http.StatusBadRequest, CodeMissingPrevious, "Missing previous")
	}
	prevMeta, _ := in.Previous["meta"].(map[string]any)
	var prevFeatures vision.Features
	if prevMeta != nil {
		if raw, ok := prevMeta["features"].(map[string]any); ok {
			prevFeatures = vision.Decode(raw)
		}
	}
	if raw, ok := in.Previous["features"].(map[string]any); ok && prevFeatures.IsZero() {
		prevFeatures = vision.Decode(raw)
	}

	hints := Merge(
		ParseAnswers(in.Answers),
		HintsFromMeta(prevMeta),
		Hints{Instrument: prevFeatures.Symbol, Timeframe: prevFeatures.TimeframeLabel},
	).Normalized()
	meta := s.meta(hints, prevFeatures.ModeGuess)
	if !prevFeatures.IsZero() {
		f := prevFeatures
		meta.Features = &f
	}
	if prevMeta != nil {
		meta.VisionModel = scalarString(prevMeta["vision_model"])
	}

	answers := in.Answers
	if answers == nil {
		answers = map[string]string{}
	}
	msg := plannerUserMessage{
		Truths:      truthsJSON{Instrument: meta.Instrument, Timeframe: meta.Timeframe, Mode: meta.Mode},
		Hints:       hints,
		Features:    meta.Features,
		Previous:    in.Previous,
		Answers:     answers,
		Instruction: "Refine the previous trade analysis using these answers. Only suggest entries if the full confirmation stack is satisfied; otherwise keep asking.",
	}
	result, err := s.plan(ctx, traceID, meta, msg)
	if err != nil {
		logger.Warnf("[planner] END refine trace=%s outcome=error elapsed=%s: %v", traceID, time.Since(started).Round(time.Millisecond), err)
		return Response{}, err
	}
	if result.Outcome == plan.Valid && result.Plan.Empty() {
		logger.Warnf("[planner] END refine trace=%s outcome=planner_empty", traceID)
		return Response{}, NewError(http.StatusBadGateway, CodePlannerEmpty, "Planner returned neither questions nor suggestions")
	}
	resp := s.respond(traceID, meta, result.Plan, false, result.Plan.Warnings)
	logger.Infof("[planner] END refine trace=%s outcome=%s questions=%d suggestions=%d elapsed=%s",
		traceID, result.Outcome, len(resp.Questions), len(resp.Suggestions), time.Since(started).Round(time.Millisecond))
	return resp, nil
}

func (s *Service) meta(h Hints, modeGuess string) Meta {
	mode := modeGuess
	if h.Timeframe != "" || mode == "" {
		mode = timeframe.Mode(h.Timeframe)
	}
	return Meta{Instrument: h.Instrument, Timeframe: h.Timeframe, RiskPct: h.RiskPct, Mode: mode}
}

func (s *Service) plan(ctx context.Context, traceID string, meta Meta, msg plannerUserMessage) (plan.Result, error) {
	var edge prompt.Edge
	if s.deps.Edges != nil {
		edge = s.deps.Edges.Edge()
	} else {
		edge = prompt.DefaultEdge()
	}
	system := prompt.BuildSystemPrompt(edge, prompt.Truths{Instrument: meta.Instrument, Timeframe: meta.Timeframe, Mode: meta.Mode})
	user := jsonutil.Compact(msg)
	out, err := s.deps.Planner.Chat(ctx, provider.ChatRequest{
		Messages: []provider.Message{provider.SystemMessage(system), provider.UserMessage(user)},
		JSONMode: true,
		Timeout:  s.deps.PlannerTimeout,
		Kind:     provider.KindPlanner,
		TraceID:  traceID,
	})
	if err != nil {
		return plan.Result{}, classifyGatewayError("planner", err)
	}
	logger.Debugf("[planner] trace=%s model=%s attempts=%d raw=%s", traceID, out.Model, out.Attempts, text.Truncate(out.Content, 300))
	res := s.deps.Validator.ValidateRaw(out.Content)
	if res.Outcome == plan.Repaired {
		logger.Warnf("[planner] trace=%s planner output repaired: %s", traceID, text.Truncate(res.Reason, 200))
	}
	return res, nil
}

// respond maps a validated plan onto the response envelope, keeping the
// questions XOR suggestions contract.
func (s *Service) respond(traceID string, meta Meta, p plan.TradePlan, visionTimedOut bool, warnings []string) Response {
	if c, ok := p.Meta["confidence"].(float64); ok {
		meta.Confidence = &c
	}
	resp := Response{
		TraceID:     traceID,
		Meta:        meta,
		Questions:   []plan.Question{},
		Suggestions: []plan.Suggestion{},
		Warnings:    dedupe(warnings),
	}
	switch {
	case p.HasQuestions():
		resp.Questions = p.Questions
	case p.HasSuggestions():
		resp.Suggestions = p.Suggestions
	case visionTimedOut:
		resp.Questions = []plan.Question{{ID: VisionTimeoutQuestionID, Text: visionTimeoutText}}
	default:
		resp.Questions = []plan.Question{{ID: plan.FallbackQuestionID, Text: fallbackQuestionText}}
	}
	return resp
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, w := range in {
		w = strings.TrimSpace(w)
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
