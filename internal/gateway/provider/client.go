package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"tradecoach/internal/logger"
	"tradecoach/internal/pkg/circuit"
	"tradecoach/internal/pkg/jsonutil"
	"tradecoach/internal/pkg/text"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultTemperature = 0.2
	defaultMaxTokens   = 1400
	listModelsTimeout  = 8 * time.Second
	debugSnippet       = 500
)

// Config describes one OpenAI-compatible provider.
type Config struct {
	Name              string
	BaseURL           string
	APIKey            string
	APIKeyAlt         string
	Model             string
	Fallbacks         []string
	Timeout           time.Duration
	Temperature       *float64
	MaxTokens         int
	Headers           map[string]string
	RequestsPerMinute int
	Aliases           map[string]string
	Production        bool
	AllowFreeInProd   bool
	Debug             bool
	BreakerThreshold  int
	BreakerCooldown   time.Duration
}

// Client talks to one provider's chat-completions endpoint.
type Client struct {
	cfg     Config
	http    *resty.Client
	policy  Policy
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	breakers map[string]*circuit.CircuitBreaker
}

type Option func(*Client)

func WithPolicy(p Policy) Option { return func(c *Client) { c.policy = p } }

// WithSleep replaces the backoff sleeper.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = resty.NewWithClient(hc)
		}
	}
}

func New(cfg Config, opts ...Option) *Client {
	cfg.BaseURL = normalizeBaseURL(cfg.BaseURL)
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Aliases == nil {
		cfg.Aliases = DefaultAliases()
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = 3
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = time.Minute
	}
	c := &Client{
		cfg:      cfg,
		http:     resty.New(),
		policy:   DefaultPolicy(),
		sleep:    sleepContext,
		breakers: make(map[string]*circuit.CircuitBreaker),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.SetBaseURL(cfg.BaseURL).
		SetHeader("Content-Type", "application/json").
		SetHeaders(cfg.Headers)
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return c
}

func (c *Client) Name() string { return c.cfg.Name }

// Model is the configured primary model after alias resolution.
func (c *Client) Model() string { return NormalizeModel(c.cfg.Model, c.cfg.Aliases) }

// Candidates is the primary model followed by the configured fallbacks.
func (c *Client) Candidates() []string {
	return CandidateList(c.cfg.Model, c.cfg.Fallbacks, c.cfg.Aliases)
}

// Chat runs one completion against a single model with retries.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (Completion, error) {
	model := NormalizeModel(req.Model, c.cfg.Aliases)
	if model == "" {
		model = c.Model()
	}
	if model == "" {
		return Completion{}, ErrNoModels
	}
	if c.freeBlocked(model) {
		return Completion{}, fmt.Errorf("%s: %w", model, ErrFreeModelBlocked)
	}
	return c.callModel(ctx, model, req, false)
}

// ChatModels walks models in order until one answers. Skippable statuses,
// open breakers and blocked free models move straight to the next model; a
// timeout stops the walk.
func (c *Client) ChatModels(ctx context.Context, models []string, req ChatRequest) (Completion, error) {
	if len(models) == 0 {
		models = c.Candidates()
	}
	if len(models) == 0 {
		return Completion{}, ErrNoModels
	}
	var lastErr error
	tried := make([]string, 0, len(models))
	for _, raw := range models {
		model := NormalizeModel(raw, c.cfg.Aliases)
		if model == "" {
			continue
		}
		tried = append(tried, model)
		if c.freeBlocked(model) {
			lastErr = fmt.Errorf("%s: %w", model, ErrFreeModelBlocked)
			logger.Warnf("[%s] skip %s: free-tier model blocked in production", c.cfg.Name, model)
			continue
		}
		breaker := c.breaker(model)
		if !breaker.Allow() {
			lastErr = fmt.Errorf("%s: circuit open", model)
			logger.Warnf("[%s] skip %s: circuit open", c.cfg.Name, model)
			continue
		}
		out, err := c.callModel(ctx, model, req, true)
		if err == nil {
			breaker.RecordSuccess()
			return out, nil
		}
		if IsTimeout(err) || ctx.Err() != nil {
			return Completion{}, err
		}
		breaker.RecordFailure()
		lastErr = err
		logger.Warnf("[%s] model %s failed, trying next: %v", c.cfg.Name, model, err)
	}
	return Completion{}, &ExhaustedError{Models: tried, Last: lastErr}
}

// Ping asks the model to echo {"ping": tag}. With models it walks the list.
func (c *Client) Ping(ctx context.Context, tag string, models ...string) (Completion, error) {
	req := ChatRequest{
		Messages: []Message{
			SystemMessage("Return a single JSON object only."),
			UserMessage(fmt.Sprintf(`Respond with {"ping":%q} only.`, tag)),
		},
		JSONMode: true,
		Kind:     KindPing,
	}
	if len(models) > 0 {
		return c.ChatModels(ctx, models, req)
	}
	return c.Chat(ctx, req)
}

// ListModels proxies GET {base}/models.
func (c *Client) ListModels(ctx context.Context) (ModelList, error) {
	callCtx, cancel := context.WithTimeout(ctx, listModelsTimeout)
	defer cancel()
	r := c.http.R().SetContext(callCtx)
	if key := strings.TrimSpace(c.cfg.APIKey); key != "" {
		r.SetAuthToken(key)
	}
	resp, err := r.Get("/models")
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return ModelList{}, &TimeoutError{Kind: KindPing, Model: "models", After: listModelsTimeout}
		}
		return ModelList{}, fmt.Errorf("%s list models: %w", c.cfg.Name, err)
	}
	body := resp.Body()
	out := ModelList{Status: resp.StatusCode(), Models: []ModelInfo{}}
	if resp.StatusCode()/100 != 2 {
		return out, &StatusError{Provider: c.cfg.Name, Model: "models", Status: resp.StatusCode(), Message: errorMessage(body, resp.Status())}
	}
	gjson.GetBytes(body, "data").ForEach(func(_, item gjson.Result) bool {
		id := item.Get("id").String()
		if id == "" {
			return true
		}
		out.Models = append(out.Models, ModelInfo{
			ID:            id,
			Name:          item.Get("name").String(),
			ContextLength: item.Get("context_length").Int(),
		})
		return true
	})
	return out, nil
}

func (c *Client) callModel(ctx context.Context, model string, req ChatRequest, multiModel bool) (Completion, error) {
	payload := c.payload(model, req)
	if logger.LLMEnabled() {
		c.logRequest(model, req, payload)
	}
	keys := c.keys()
	keyIdx := 0
	swapped := false
	retries := 0
	attempts := 0
	for {
		attempts++
		content, status, err := c.attempt(ctx, model, keys[keyIdx], req, payload)
		if err == nil {
			logger.LogLLMResponse(string(req.Kind), model, req.TraceID, content, nil)
			return Completion{Content: content, Model: model, Attempts: attempts}, nil
		}
		if IsTimeout(err) || ctx.Err() != nil {
			logger.LogLLMResponse(string(req.Kind), model, req.TraceID, "", err)
			return Completion{}, err
		}
		var se *StatusError
		if errors.As(err, &se) {
			se.Attempts = attempts
		}
		if !swapped && keyIdx+1 < len(keys) && c.policy.ShouldSwapKey(status) {
			swapped = true
			keyIdx++
			logger.Warnf("[%s] %s status=%d, retrying with alternate key", c.cfg.Name, model, status)
			continue
		}
		action := c.policy.Decide(status, multiModel)
		if action == RetrySame && retries < c.policy.MaxRetries {
			retries++
			delay := c.policy.Backoff(retries)
			if ra := retryAfter(err); ra > delay {
				delay = ra
				if c.policy.MaxDelay > 0 && delay > c.policy.MaxDelay {
					delay = c.policy.MaxDelay
				}
			}
			logger.Warnf("[%s] %s attempt %d failed (status=%d), retry in %s: %v", c.cfg.Name, model, attempts, status, delay.Round(time.Millisecond), err)
			if serr := c.sleep(ctx, delay); serr != nil {
				return Completion{}, serr
			}
			continue
		}
		logger.LogLLMResponse(string(req.Kind), model, req.TraceID, "", err)
		logger.Debugf("[%s] %s giving up after %d attempts: action=%s", c.cfg.Name, model, attempts, action)
		return Completion{}, err
	}
}

type retryAfterError struct {
	*StatusError
	wait time.Duration
}

func (e *retryAfterError) Unwrap() error { return e.StatusError }

func retryAfter(err error) time.Duration {
	var ra *retryAfterError
	if errors.As(err, &ra) {
		return ra.wait
	}
	return 0
}

func (c *Client) attempt(ctx context.Context, model, key string, req ChatRequest, payload chatPayload) (string, int, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return "", 0, ctx.Err()
			}
			// the reservation would outlast the caller's deadline
			var budget time.Duration
			if dl, ok := ctx.Deadline(); ok {
				budget = time.Until(dl)
			}
			return "", 0, &TimeoutError{Kind: req.Kind, Model: model, After: budget}
		}
	}
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	r := c.http.R().SetContext(callCtx).SetBody(payload)
	if key != "" {
		r.SetAuthToken(key)
	}
	resp, err := r.Post("/chat/completions")
	elapsed := time.Since(started)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", 0, &TimeoutError{Kind: req.Kind, Model: model, After: timeout}
		}
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		return "", 0, fmt.Errorf("%s %s: %w", c.cfg.Name, model, err)
	}
	body := resp.Body()
	status := resp.StatusCode()
	if c.cfg.Debug {
		logger.Debugf("[%s] %s status=%d elapsed=%s key=%s body=%s", c.cfg.Name, model, status, elapsed.Round(time.Millisecond), text.MaskSecret(key), text.Truncate(string(body), debugSnippet))
	}
	if status/100 != 2 {
		se := &StatusError{Provider: c.cfg.Name, Model: model, Status: status, Message: errorMessage(body, resp.Status())}
		if secs, perr := strconv.Atoi(strings.TrimSpace(resp.Header().Get("Retry-After"))); perr == nil && secs > 0 {
			return "", status, &retryAfterError{StatusError: se, wait: time.Duration(secs) * time.Second}
		}
		return "", status, se
	}
	if errObj := gjson.GetBytes(body, "error"); errObj.Exists() && !gjson.GetBytes(body, "choices").Exists() {
		code := int(errObj.Get("code").Int())
		if code == 0 {
			code = http.StatusBadGateway
		}
		return "", code, &StatusError{Provider: c.cfg.Name, Model: model, Status: code, Message: errorMessage(body, "provider error")}
	}
	content := completionText(body)
	if strings.TrimSpace(content) == "" {
		return "", status, fmt.Errorf("%s %s: %w", c.cfg.Name, model, ErrEmptyCompletion)
	}
	return content, status, nil
}

func (c *Client) payload(model string, req ChatRequest) chatPayload {
	temp := defaultTemperature
	if c.cfg.Temperature != nil {
		temp = *c.cfg.Temperature
	}
	if req.Temperature != nil {
		temp = *req.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.cfg.MaxTokens
	}
	messages := req.Messages
	p := chatPayload{Model: model, Temperature: temp, MaxTokens: maxTokens}
	if req.JSONMode {
		messages = EnsureJSONDirective(messages)
		p.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	p.Messages = messages
	return p
}

// EnsureJSONDirective prepends a system line when no message mentions JSON.
// Providers reject response_format=json_object otherwise.
func EnsureJSONDirective(messages []Message) []Message {
	for _, m := range messages {
		if strings.Contains(strings.ToLower(m.Text()), "json") {
			return messages
		}
	}
	out := make([]Message, 0, len(messages)+1)
	out = append(out, SystemMessage("Respond with a single valid JSON object."))
	return append(out, messages...)
}

func (c *Client) keys() []string {
	keys := []string{strings.TrimSpace(c.cfg.APIKey)}
	if alt := strings.TrimSpace(c.cfg.APIKeyAlt); alt != "" && alt != keys[0] {
		keys = append(keys, alt)
	}
	return keys
}

func (c *Client) freeBlocked(model string) bool {
	return c.cfg.Production && !c.cfg.AllowFreeInProd && IsFreeModel(model)
}

func (c *Client) breaker(model string) *circuit.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.breakers[model]
	if !ok {
		cb = circuit.NewCircuitBreaker(c.cfg.Name+":"+model, c.cfg.BreakerThreshold, c.cfg.BreakerCooldown)
		c.breakers[model] = cb
	}
	return cb
}

func (c *Client) logRequest(model string, req ChatRequest, payload chatPayload) {
	var system, user []string
	var images []string
	for _, m := range payload.Messages {
		switch m.Role {
		case "system":
			system = append(system, m.Text())
		default:
			user = append(user, m.Text())
		}
		images = append(images, m.Images()...)
	}
	raw, _ := json.Marshal(payload)
	logger.LogLLMRequest(string(req.Kind), model, req.TraceID, strings.Join(system, "\n"), strings.Join(user, "\n"), images, string(raw))
}

func completionText(body []byte) string {
	msg := gjson.GetBytes(body, "choices.0.message")
	content := msg.Get("content")
	var out string
	if content.IsArray() {
		out = jsonutil.Textify(content.Value())
	} else {
		out = content.String()
	}
	if strings.TrimSpace(out) == "" {
		out = msg.Get("reasoning_content").String()
	}
	if strings.TrimSpace(out) == "" {
		out = gjson.GetBytes(body, "choices.0.text").String()
	}
	return out
}

func errorMessage(body []byte, fallback string) string {
	if msg := strings.TrimSpace(gjson.GetBytes(body, "error.message").String()); msg != "" {
		return msg
	}
	if msg := strings.TrimSpace(gjson.GetBytes(body, "message").String()); msg != "" {
		return msg
	}
	if s := strings.TrimSpace(string(body)); s != "" && !gjson.Valid(s) {
		return text.Truncate(s, 200)
	}
	return fallback
}

func normalizeBaseURL(raw string) string {
	url := strings.TrimRight(strings.TrimSpace(raw), "/")
	url = strings.TrimSuffix(url, "/chat/completions")
	return url
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
