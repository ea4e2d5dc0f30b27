package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	Auth string
	Body map[string]any
}

type fakeUpstream struct {
	mu       sync.Mutex
	calls    []recorded
	handler  func(n int, r recorded) (int, string)
	server   *httptest.Server
	sleepLog []time.Duration
	headers  map[string]string
}

func newFakeUpstream(t *testing.T, handler func(n int, r recorded) (int, string)) *fakeUpstream {
	t.Helper()
	f := &fakeUpstream{handler: handler}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		rec := recorded{Auth: r.Header.Get("Authorization"), Body: body}
		f.mu.Lock()
		f.calls = append(f.calls, rec)
		n := len(f.calls)
		f.mu.Unlock()
		status, payload := f.handler(n, rec)
		w.Header().Set("Content-Type", "application/json")
		for k, v := range f.headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, payload)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeUpstream) client(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = f.server.URL
	if cfg.Name == "" {
		cfg.Name = "test"
	}
	policy := DefaultPolicy()
	policy.Jitter = func() float64 { return 1 }
	opts = append([]Option{
		WithPolicy(policy),
		WithSleep(func(_ context.Context, d time.Duration) error {
			f.mu.Lock()
			f.sleepLog = append(f.sleepLog, d)
			f.mu.Unlock()
			return nil
		}),
	}, opts...)
	return New(cfg, opts...)
}

func (f *fakeUpstream) models() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		m, _ := c.Body["model"].(string)
		out = append(out, m)
	}
	return out
}

func completionBody(content string) string {
	buf, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
	})
	return string(buf)
}

func TestChat_Success(t *testing.T) {
	up := newFakeUpstream(t, func(int, recorded) (int, string) {
		return 200, completionBody(`{"ok":true}`)
	})
	c := up.client(Config{APIKey: "key-1", Model: "deepseek/chat"})
	out, err := c.Chat(context.Background(), ChatRequest{Messages: []Message{UserMessage("hi")}, Kind: KindPlanner})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out.Content)
	assert.Equal(t, "deepseek-chat", out.Model)
	assert.Equal(t, 1, out.Attempts)
	require.Len(t, up.calls, 1)
	assert.Equal(t, "Bearer key-1", up.calls[0].Auth)
	assert.Equal(t, "deepseek-chat", up.calls[0].Body["model"])
	assert.InDelta(t, 0.2, up.calls[0].Body["temperature"], 1e-9)
	assert.Equal(t, float64(1400), up.calls[0].Body["max_tokens"])
}

func TestChat_RetriesTransientThenFails(t *testing.T) {
	up := newFakeUpstream(t, func(int, recorded) (int, string) {
		return 503, `{"error":{"message":"overloaded"}}`
	})
	c := up.client(Config{APIKey: "k", Model: "deepseek-chat"})
	_, err := c.Chat(context.Background(), ChatRequest{Messages: []Message{UserMessage("hi")}})
	require.Error(t, err)
	assert.Len(t, up.calls, 3)
	assert.Equal(t, 503, StatusOf(err))
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "overloaded")
	assert.Equal(t, []time.Duration{2400 * time.Millisecond, 5400 * time.Millisecond}, up.sleepLog)
}

func TestChat_RetryAfterCappedAtMaxDelay(t *testing.T) {
	up := newFakeUpstream(t, func(int, recorded) (int, string) {
		return 503, `{"error":{"message":"busy"}}`
	})
	up.headers = map[string]string{"Retry-After": "3600"}
	c := up.client(Config{APIKey: "k", Model: "deepseek-chat"})
	_, err := c.Chat(context.Background(), ChatRequest{Messages: []Message{UserMessage("hi")}})
	require.Error(t, err)
	assert.Len(t, up.calls, 3)
	assert.Equal(t, []time.Duration{15 * time.Second, 15 * time.Second}, up.sleepLog)
}

func TestChat_RetryAfterAboveBackoff(t *testing.T) {
	up := newFakeUpstream(t, func(n int, _ recorded) (int, string) {
		if n == 1 {
			return 503, `{}`
		}
		return 200, completionBody("ok")
	})
	up.headers = map[string]string{"Retry-After": "4"}
	c := up.client(Config{APIKey: "k", Model: "deepseek-chat"})
	_, err := c.Chat(context.Background(), ChatRequest{Messages: []Message{UserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{4 * time.Second}, up.sleepLog)
}

func TestChat_PacingBeyondDeadlineIsTimeout(t *testing.T) {
	up := newFakeUpstream(t, func(int, recorded) (int, string) {
		return 200, completionBody("ok")
	})
	c := up.client(Config{APIKey: "k", Model: "deepseek-chat", RequestsPerMinute: 1})
	_, err := c.Chat(context.Background(), ChatRequest{Messages: []Message{UserMessage("hi")}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = c.Chat(ctx, ChatRequest{Messages: []Message{UserMessage("again")}, Kind: KindPlanner})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Len(t, up.calls, 1)
	assert.Empty(t, up.sleepLog)
}

func TestChat_RecoversAfterTransient(t *testing.T) {
	up := newFakeUpstream(t, func(n int, _ recorded) (int, string) {
		if n == 1 {
			return 502, `{}`
		}
		return 200, completionBody("done")
	})
	c := up.client(Config{APIKey: "k", Model: "m"})
	out, err := c.Chat(context.Background(), ChatRequest{Messages: []Message{UserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Attempts)
}

func TestChat_FailFastOnBadRequest(t *testing.T) {
	up := newFakeUpstream(t, func(int, recorded) (int, string) {
		return 400, `{"error":{"message":"bad"}}`
	})
	c := up.client(Config{APIKey: "k", Model: "m"})
	_, err := c.Chat(context.Background(), ChatRequest{Messages: []Message{UserMessage("hi")}})
	require.Error(t, err)
	assert.Len(t, up.calls, 1)
	assert.Equal(t, 400, StatusOf(err))
}

func TestChat_AlternateKey(t *testing.T) {
	up := newFakeUpstream(t, func(_ int, r recorded) (int, string) {
		if r.Auth == "Bearer primary" {
			return 401, `{"error":{"message":"invalid key"}}`
		}
		return 200, completionBody("ok")
	})
	c := up.client(Config{APIKey: "primary", APIKeyAlt: "backup", Model: "m"})
	out, err := c.Chat(context.Background(), ChatRequest{Messages: []Message{UserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, "ok", out.Content)
	require.Len(t, up.calls, 2)
	assert.Equal(t, "Bearer backup", up.calls[1].Auth)
	assert.Empty(t, up.sleepLog)
}

func TestChat_ReasoningContentFallback(t *testing.T) {
	up := newFakeUpstream(t, func(int, recorded) (int, string) {
		return 200, `{"choices":[{"message":{"content":"","reasoning_content":"{\"a\":1}"}}]}`
	})
	c := up.client(Config{APIKey: "k", Model: "deepseek-reasoner"})
	out, err := c.Chat(context.Background(), ChatRequest{Messages: []Message{UserMessage("hi")}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, out.Content)
}

func TestChat_JSONDirective(t *testing.T) {
	up := newFakeUpstream(t, func(int, recorded) (int, string) {
		return 200, completionBody("{}")
	})
	c := up.client(Config{APIKey: "k", Model: "m"})
	_, err := c.Chat(context.Background(), ChatRequest{Messages: []Message{UserMessage("plan my trade")}, JSONMode: true})
	require.NoError(t, err)
	body := up.calls[0].Body
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	first := msgs[0].(map[string]any)
	assert.Equal(t, "system", first["role"])
	assert.Contains(t, strings.ToLower(first["content"].(string)), "json")
	assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
}

func TestChat_Timeout(t *testing.T) {
	block := make(chan struct{})
	up := newFakeUpstream(t, func(int, recorded) (int, string) {
		<-block
		return 200, completionBody("late")
	})
	defer close(block)
	c := up.client(Config{APIKey: "k", Model: "m"})
	_, err := c.Chat(context.Background(), ChatRequest{Messages: []Message{UserMessage("hi")}, Timeout: 50 * time.Millisecond, Kind: KindPlanner})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Len(t, up.calls, 1)
}

func TestChat_FreeModelBlockedInProduction(t *testing.T) {
	up := newFakeUpstream(t, func(int, recorded) (int, string) {
		return 200, completionBody("{}")
	})
	c := up.client(Config{APIKey: "k", Model: "qwen/qwen2.5-vl-32b-instruct:free", Production: true})
	_, err := c.Chat(context.Background(), ChatRequest{Messages: []Message{UserMessage("hi")}})
	assert.ErrorIs(t, err, ErrFreeModelBlocked)
	assert.Empty(t, up.calls)

	allowed := up.client(Config{APIKey: "k", Model: "qwen/qwen2.5-vl-32b-instruct:free", Production: true, AllowFreeInProd: true})
	_, err = allowed.Chat(context.Background(), ChatRequest{Messages: []Message{UserMessage("hi")}})
	assert.NoError(t, err)
}

func TestChatModels_SkipsOn404(t *testing.T) {
	up := newFakeUpstream(t, func(_ int, r recorded) (int, string) {
		if r.Body["model"] == "vision-a" {
			return 404, `{"error":{"message":"no such model"}}`
		}
		return 200, completionBody(`{"symbol":"BTCUSDT"}`)
	})
	c := up.client(Config{APIKey: "k", Model: "vision-a", Fallbacks: []string{"vision-b"}})
	out, err := c.ChatModels(context.Background(), c.Candidates(), ChatRequest{Messages: []Message{UserMessage("read")}, Kind: KindVision})
	require.NoError(t, err)
	assert.Equal(t, "vision-b", out.Model)
	assert.Equal(t, []string{"vision-a", "vision-b"}, up.models())
	assert.Empty(t, up.sleepLog)
}

func TestChatModels_AllFail(t *testing.T) {
	up := newFakeUpstream(t, func(int, recorded) (int, string) {
		return 422, `{"error":{"message":"unsupported image"}}`
	})
	c := up.client(Config{APIKey: "k", Model: "a", Fallbacks: []string{"b", "c"}})
	_, err := c.ChatModels(context.Background(), nil, ChatRequest{Messages: []Message{UserMessage("read")}, Kind: KindVision})
	require.Error(t, err)
	var ex *ExhaustedError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, []string{"a", "b", "c"}, ex.Models)
	assert.True(t, strings.HasPrefix(err.Error(), "All vision models failed. Last error"))
	assert.Equal(t, 422, StatusOf(err))
}

func TestChatModels_SkipsFreeModelsInProduction(t *testing.T) {
	up := newFakeUpstream(t, func(int, recorded) (int, string) {
		return 200, completionBody("{}")
	})
	c := up.client(Config{APIKey: "k", Model: "x/vl:free", Fallbacks: []string{"x/vl-paid"}, Production: true})
	out, err := c.ChatModels(context.Background(), nil, ChatRequest{Messages: []Message{UserMessage("read")}})
	require.NoError(t, err)
	assert.Equal(t, "x/vl-paid", out.Model)
	assert.Equal(t, []string{"x/vl-paid"}, up.models())
}

func TestChatModels_OpenBreakerSkipsModel(t *testing.T) {
	up := newFakeUpstream(t, func(_ int, r recorded) (int, string) {
		if r.Body["model"] == "flaky" {
			return 404, `{}`
		}
		return 200, completionBody("{}")
	})
	c := up.client(Config{APIKey: "k", Model: "flaky", Fallbacks: []string{"steady"}, BreakerThreshold: 2, BreakerCooldown: time.Hour})
	req := ChatRequest{Messages: []Message{UserMessage("read")}}
	for i := 0; i < 3; i++ {
		_, err := c.ChatModels(context.Background(), nil, req)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"flaky", "steady", "flaky", "steady", "steady"}, up.models())
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"data":[{"id":"deepseek-chat"},{"id":"deepseek-reasoner","context_length":64000}]}`)
	}))
	defer srv.Close()
	c := New(Config{Name: "deepseek", BaseURL: srv.URL + "/", APIKey: "k"})
	list, err := c.ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 200, list.Status)
	require.Len(t, list.Models, 2)
	assert.Equal(t, int64(64000), list.Models[1].ContextLength)
}
