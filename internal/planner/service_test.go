package planner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"tradecoach/internal/gateway/provider"
	"tradecoach/internal/plan"
	"tradecoach/internal/vision"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, dataURL string, forceNext bool, traceID string) (vision.Result, error) {
	args := m.Called(ctx, dataURL, forceNext, traceID)
	return args.Get(0).(vision.Result), args.Error(1)
}

type MockChat struct {
	mock.Mock
}

func (m *MockChat) Chat(ctx context.Context, req provider.ChatRequest) (provider.Completion, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(provider.Completion), args.Error(1)
}

func (m *MockChat) Ping(ctx context.Context, tag string, models ...string) (provider.Completion, error) {
	args := m.Called(ctx, tag, models)
	return args.Get(0).(provider.Completion), args.Error(1)
}

func (m *MockChat) Model() string { return "deepseek-chat" }

func (m *MockChat) Candidates() []string { return []string{"vl-a", "vl-b"} }

const validSuggestion = `{"questions":[],"suggestions":[{"side":"long","entry":{"zone":[100,102]},"invalidation":{"price":98},"targets":[{"rr":2}]}]}`

func newService(ext *MockExtractor, chat *MockChat) *Service {
	return NewService(Deps{
		Vision:         ext,
		VisionGateway:  chat,
		Planner:        chat,
		PlannerTimeout: time.Second,
		NewTraceID:     func() string { return "trace-fixed" },
	})
}

// userPayload decodes the JSON user message of a planner request.
func userPayload(t *testing.T, req provider.ChatRequest) map[string]any {
	t.Helper()
	require.Len(t, req.Messages, 2)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(req.Messages[1].Text()), &out))
	return out
}

func assertExclusive(t *testing.T, resp Response) {
	t.Helper()
	assert.True(t, (len(resp.Questions) > 0) != (len(resp.Suggestions) > 0),
		"questions=%d suggestions=%d", len(resp.Questions), len(resp.Suggestions))
}

func TestAnalyze_ScalpPlan(t *testing.T) {
	ext := new(MockExtractor)
	chat := new(MockChat)
	ext.On("Extract", mock.Anything, "data:image/png;base64,AAA", false, "trace-fixed").
		Return(vision.Result{OK: true, Model: "vl-a", Features: vision.Features{Symbol: "BTCUSDT", Trend: "up"}}, nil)
	var captured provider.ChatRequest
	chat.On("Chat", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		captured = args.Get(1).(provider.ChatRequest)
	}).Return(provider.Completion{Content: validSuggestion, Model: "deepseek-chat", Attempts: 1}, nil)

	resp, err := newService(ext, chat).Analyze(context.Background(), AnalyzeInput{
		ImageDataURL: "data:image/png;base64,AAA",
		Timeframe:    "5m",
	})
	require.NoError(t, err)
	assert.Equal(t, "trace-fixed", resp.TraceID)
	assert.Equal(t, "scalp", resp.Meta.Mode)
	assert.Equal(t, "BTCUSDT", resp.Meta.Instrument)
	assert.Equal(t, "5M", resp.Meta.Timeframe)
	assert.Equal(t, DefaultRiskPct, resp.Meta.RiskPct)
	assert.Len(t, resp.Suggestions, 1)
	assert.Len(t, resp.Questions, 0)
	assertExclusive(t, resp)

	assert.True(t, captured.JSONMode)
	assert.Equal(t, provider.KindPlanner, captured.Kind)
	assert.Contains(t, captured.Messages[0].Text(), "- instrument: BTCUSDT")
	assert.Contains(t, captured.Messages[0].Text(), "- mode: scalp")
	payload := userPayload(t, captured)
	assert.Equal(t, "BTCUSDT", payload["hints"].(map[string]any)["instrument"])
	assert.Equal(t, "up", payload["features"].(map[string]any)["trend"])
	ext.AssertExpectations(t)
}

func TestAnalyze_ExplicitInputWinsOverVision(t *testing.T) {
	ext := new(MockExtractor)
	chat := new(MockChat)
	ext.On("Extract", mock.Anything, mock.Anything, true, mock.Anything).
		Return(vision.Result{OK: true, Features: vision.Features{Symbol: "BTCUSDT", TimeframeLabel: "15m"}}, nil)
	chat.On("Chat", mock.Anything, mock.Anything).
		Return(provider.Completion{Content: `{"questions":[{"id":"risk","text":"How much risk?"}],"suggestions":[]}`}, nil)

	resp, err := newService(ext, chat).Analyze(context.Background(), AnalyzeInput{
		ImageDataURL:         "data:x",
		Instrument:           "eth/usdt",
		RiskPct:              "0.5%",
		ForceNextVisionModel: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", resp.Meta.Instrument)
	assert.Equal(t, "15M", resp.Meta.Timeframe)
	assert.Equal(t, "0.5", resp.Meta.RiskPct)
	assert.Equal(t, "scalp", resp.Meta.Mode)
	require.Len(t, resp.Questions, 1)
	assert.Equal(t, "risk", resp.Questions[0].ID)
	assertExclusive(t, resp)
}

func TestAnalyze_MissingImage(t *testing.T) {
	chat := new(MockChat)
	_, err := newService(new(MockExtractor), chat).Analyze(context.Background(), AnalyzeInput{Timeframe: "1h"})
	require.Error(t, err)
	pe := AsError(err)
	assert.Equal(t, http.StatusBadRequest, pe.Status)
	assert.Equal(t, CodeMissingFile, pe.Code)
	chat.AssertNotCalled(t, "Chat", mock.Anything, mock.Anything)
}

func TestAnalyze_SkipVision(t *testing.T) {
	ext := new(MockExtractor)
	chat := new(MockChat)
	chat.On("Chat", mock.Anything, mock.Anything).Return(provider.Completion{Content: validSuggestion}, nil)
	resp, err := newService(ext, chat).Analyze(context.Background(), AnalyzeInput{SkipVision: true, Instrument: "SOLUSDT", Timeframe: "4h"})
	require.NoError(t, err)
	assert.Equal(t, "swing", resp.Meta.Mode)
	assert.Nil(t, resp.Meta.Features)
	ext.AssertNotCalled(t, "Extract", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalyze_VisionTimeoutFallbackQuestion(t *testing.T) {
	ext := new(MockExtractor)
	chat := new(MockChat)
	ext.On("Extract", mock.Anything, mock.Anything, false, mock.Anything).
		Return(vision.Result{OK: false, Reason: vision.ReasonTimeout}, nil)
	chat.On("Chat", mock.Anything, mock.Anything).Return(provider.Completion{Content: `{"questions":[],"suggestions":[]}`}, nil)

	resp, err := newService(ext, chat).Analyze(context.Background(), AnalyzeInput{ImageDataURL: "data:x"})
	require.NoError(t, err)
	require.Len(t, resp.Questions, 1)
	assert.Equal(t, VisionTimeoutQuestionID, resp.Questions[0].ID)
	assert.Empty(t, resp.Suggestions)
	assert.NotEmpty(t, resp.Warnings)
}

func TestAnalyze_EmptyPlanGenericFallback(t *testing.T) {
	ext := new(MockExtractor)
	chat := new(MockChat)
	ext.On("Extract", mock.Anything, mock.Anything, false, mock.Anything).Return(vision.Result{OK: true}, nil)
	chat.On("Chat", mock.Anything, mock.Anything).Return(provider.Completion{Content: `{"questions":[],"suggestions":[]}`}, nil)

	resp, err := newService(ext, chat).Analyze(context.Background(), AnalyzeInput{ImageDataURL: "data:x"})
	require.NoError(t, err)
	require.Len(t, resp.Questions, 1)
	assert.Equal(t, plan.FallbackQuestionID, resp.Questions[0].ID)
}

func TestAnalyze_VisionErrorDegrades(t *testing.T) {
	ext := new(MockExtractor)
	chat := new(MockChat)
	ext.On("Extract", mock.Anything, mock.Anything, false, mock.Anything).
		Return(vision.Result{}, errors.New("All vision models failed. Last error: 404"))
	chat.On("Chat", mock.Anything, mock.Anything).Return(provider.Completion{Content: validSuggestion}, nil)

	resp, err := newService(ext, chat).Analyze(context.Background(), AnalyzeInput{ImageDataURL: "data:x", Timeframe: "1h"})
	require.NoError(t, err)
	assert.Len(t, resp.Suggestions, 1)
	assert.NotEmpty(t, resp.Warnings)
}

func TestAnalyze_BothPopulatedKeepsQuestionsOnly(t *testing.T) {
	ext := new(MockExtractor)
	chat := new(MockChat)
	chat.On("Chat", mock.Anything, mock.Anything).Return(provider.Completion{Content: `{"questions":[{"id":"q","text":"?"}],"suggestions":[{"side":"short","entry":{"zone":[1,2]},"invalidation":{"price":3},"targets":[{"price":0.5}]}]}`}, nil)
	resp, err := newService(ext, chat).Analyze(context.Background(), AnalyzeInput{SkipVision: true})
	require.NoError(t, err)
	assertExclusive(t, resp)
	assert.Len(t, resp.Questions, 1)
}

func TestAnalyze_MalformedOutputRepairs(t *testing.T) {
	ext := new(MockExtractor)
	chat := new(MockChat)
	chat.On("Chat", mock.Anything, mock.Anything).Return(provider.Completion{Content: `{"suggestions":[{"side":"long","entry":{},"invalidation":{"price":98},"targets":[{"rr":2}]}]}`}, nil)
	resp, err := newService(ext, chat).Analyze(context.Background(), AnalyzeInput{SkipVision: true})
	require.NoError(t, err)
	require.Len(t, resp.Questions, 1)
	assert.Equal(t, plan.RepairQuestionID, resp.Questions[0].ID)
	assert.Contains(t, resp.Warnings, plan.RepairWarning)
}

func TestAnalyze_PlannerExhaustedSurfacesStatus(t *testing.T) {
	ext := new(MockExtractor)
	chat := new(MockChat)
	chat.On("Chat", mock.Anything, mock.Anything).
		Return(provider.Completion{}, &provider.StatusError{Provider: "deepseek", Model: "deepseek-chat", Status: 503, Message: "overloaded", Attempts: 3})
	_, err := newService(ext, chat).Analyze(context.Background(), AnalyzeInput{SkipVision: true})
	require.Error(t, err)
	pe := AsError(err)
	assert.Equal(t, http.StatusBadGateway, pe.Status)
	assert.Equal(t, CodeUpstream, pe.Code)
	assert.Contains(t, pe.Message, "503")
}

func TestAnalyze_PlannerTimeout(t *testing.T) {
	chat := new(MockChat)
	chat.On("Chat", mock.Anything, mock.Anything).
		Return(provider.Completion{}, &provider.TimeoutError{Kind: provider.KindPlanner, Model: "deepseek-chat", After: time.Second})
	_, err := newService(new(MockExtractor), chat).Analyze(context.Background(), AnalyzeInput{SkipVision: true})
	pe := AsError(err)
	assert.Equal(t, http.StatusGatewayTimeout, pe.Status)
	assert.Equal(t, CodeTimeout, pe.Code)
}

func TestRefine_MergesAnswers(t *testing.T) {
	chat := new(MockChat)
	var captured provider.ChatRequest
	chat.On("Chat", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		captured = args.Get(1).(provider.ChatRequest)
	}).Return(provider.Completion{Content: validSuggestion}, nil)

	previous := map[string]any{
		"meta":      map[string]any{"instrument": "BTCUSDT", "timeframe": "15M"},
		"questions": []any{map[string]any{"id": "risk", "text": "Risk?"}},
	}
	resp, err := newService(new(MockExtractor), chat).Refine(context.Background(), RefineInput{
		Previous: previous,
		Answers:  map[string]string{"risk": "2%", "tf": "1h", "symbol": "eth"},
	})
	require.NoError(t, err)
	assert.Equal(t, "2", resp.Meta.RiskPct)
	assert.Equal(t, "1H", resp.Meta.Timeframe)
	assert.Equal(t, "ETH", resp.Meta.Instrument)
	assert.Equal(t, "swing", resp.Meta.Mode)
	assertExclusive(t, resp)

	payload := userPayload(t, captured)
	assert.Equal(t, map[string]any{"instrument": "ETH", "timeframe": "1H", "risk_pct": "2"}, payload["hints"])
	assert.NotNil(t, payload["previous"])
	assert.Equal(t, "2%", payload["answers"].(map[string]any)["risk"])
}

func TestRefine_FallsBackToPreviousMetaAndFeatures(t *testing.T) {
	chat := new(MockChat)
	chat.On("Chat", mock.Anything, mock.Anything).Return(provider.Completion{Content: validSuggestion}, nil)

	previous := map[string]any{
		"meta": map[string]any{
			"risk_pct": "1.5",
			"features": map[string]any{"symbol": "LINKUSDT", "timeframe_label": "5m"},
		},
	}
	resp, err := newService(new(MockExtractor), chat).Refine(context.Background(), RefineInput{
		Previous: previous,
		Answers:  map[string]string{"direction": "only longs please"},
	})
	require.NoError(t, err)
	assert.Equal(t, "LINKUSDT", resp.Meta.Instrument)
	assert.Equal(t, "5M", resp.Meta.Timeframe)
	assert.Equal(t, "1.5", resp.Meta.RiskPct)
	assert.Equal(t, "scalp", resp.Meta.Mode)
	require.NotNil(t, resp.Meta.Features)
}

func TestRefine_PlannerEmpty(t *testing.T) {
	chat := new(MockChat)
	chat.On("Chat", mock.Anything, mock.Anything).Return(provider.Completion{Content: `{"meta":{},"questions":[],"suggestions":[]}`}, nil)
	_, err := newService(new(MockExtractor), chat).Refine(context.Background(), RefineInput{
		Previous: map[string]any{"meta": map[string]any{}},
		Answers:  map[string]string{"risk": "1"},
	})
	require.Error(t, err)
	pe := AsError(err)
	assert.Equal(t, http.StatusBadGateway, pe.Status)
	assert.Equal(t, CodePlannerEmpty, pe.Code)
}

func TestRefine_MissingPrevious(t *testing.T) {
	_, err := newService(new(MockExtractor), new(MockChat)).Refine(context.Background(), RefineInput{Answers: map[string]string{}})
	pe := AsError(err)
	assert.Equal(t, CodeMissingPrevious, pe.Code)
	assert.Equal(t, http.StatusBadRequest, pe.Status)
}

func TestRefine_TimeoutMapsTo504(t *testing.T) {
	chat := new(MockChat)
	chat.On("Chat", mock.Anything, mock.Anything).
		Return(provider.Completion{}, &provider.TimeoutError{Kind: provider.KindPlanner, Model: "m", After: time.Second})
	_, err := newService(new(MockExtractor), chat).Refine(context.Background(), RefineInput{Previous: map[string]any{}})
	pe := AsError(err)
	assert.Equal(t, http.StatusGatewayTimeout, pe.Status)
	assert.Equal(t, CodeTimeout, pe.Code)
}

func TestHealth(t *testing.T) {
	chat := new(MockChat)
	chat.On("Ping", mock.Anything, "vision_ok", []string{"vl-a", "vl-b"}).
		Return(provider.Completion{Content: `{"ping":"vision_ok"}`, Model: "vl-a"}, nil)
	chat.On("Ping", mock.Anything, "planner_ok", []string(nil)).
		Return(provider.Completion{Content: "```json\n{\"ping\":\"nope\"}\n```", Model: "deepseek-chat"}, nil)

	report := newService(new(MockExtractor), chat).Health(context.Background())
	assert.False(t, report.OK)
	assert.True(t, report.Vision.OK)
	assert.Equal(t, "vision_ok", report.Vision.JSON["ping"])
	assert.False(t, report.Planner.OK)
	assert.Equal(t, "nope", report.Planner.JSON["ping"])
}

func TestHealth_ErrorsReported(t *testing.T) {
	chat := new(MockChat)
	chat.On("Ping", mock.Anything, "vision_ok", mock.Anything).Return(provider.Completion{}, errors.New("down"))
	chat.On("Ping", mock.Anything, "planner_ok", mock.Anything).Return(provider.Completion{Content: `{"ping":"planner_ok"}`}, nil)
	report := newService(new(MockExtractor), chat).Health(context.Background())
	assert.False(t, report.OK)
	assert.Equal(t, "down", report.Vision.Error)
	assert.True(t, report.Planner.OK)
}

func TestSelfTest(t *testing.T) {
	chat := new(MockChat)
	chat.On("Chat", mock.Anything, mock.MatchedBy(func(r provider.ChatRequest) bool {
		return strings.Contains(r.Messages[1].Text(), "BTCUSDT")
	})).Return(provider.Completion{Content: `{"meta":{},"questions":[],"suggestions":[]}`, Model: "deepseek-chat"}, nil).Once()
	report, err := newService(new(MockExtractor), chat).SelfTest(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Equal(t, "trace-fixed", report.TraceID)

	chat.On("Chat", mock.Anything, mock.Anything).Return(provider.Completion{Content: "sorry"}, nil)
	_, err = newService(new(MockExtractor), chat).SelfTest(context.Background(), "")
	assert.Equal(t, CodeParseFailed, AsError(err).Code)
}
