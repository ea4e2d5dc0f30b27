package tradechat

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"tradecoach/internal/logger"
	"tradecoach/internal/pkg/jsonutil"
	"tradecoach/internal/planner"
	"tradecoach/internal/ratelimit"
	"tradecoach/internal/vision"

	"github.com/gin-gonic/gin"
)

// multipartOverhead is the room left for form fields next to the image.
const multipartOverhead = 1 << 20

var errImageTooLarge = planner.NewError(http.StatusRequestEntityTooLarge, planner.CodeImageTooLarge, "Image exceeds the upload limit")

type handlers struct {
	planner       Planner
	limiter       *ratelimit.Limiter
	models        ModelLister
	market        MarketData
	maxImageBytes int64
}

func (h *handlers) register(api *gin.RouterGroup) {
	chat := api.Group("/trade-chat", noStore())
	chat.POST("/init", h.handleInit)
	chat.POST("/refine", h.handleRefine)
	chat.GET("/health", h.handleHealth)
	chat.GET("/selftest", h.rateLimited("selftest"), h.handleSelfTest)
	chat.POST("/test-refine", h.rateLimited("test-refine"), h.handleTestRefine)

	if h.models != nil {
		api.GET("/providers/models", h.handleModels)
	}
	if h.market != nil {
		api.GET("/ohlcv", h.handleOHLCV)
		api.GET("/price", h.handlePrice)
	}
}

// rateLimited takes one token per call; store failures let the call through.
func (h *handlers) rateLimited(endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := h.bindTrace(c, "")
		d, err := h.limiter.Allow(c.Request.Context(), endpoint, c.ClientIP())
		if err != nil {
			logger.Warnf("[http] trace=%s rate limit check failed, allowing: %v", traceID, err)
			c.Next()
			return
		}
		c.Header(headerRemaining, strconv.Itoa(d.Remaining))
		c.Header(headerReset, formatMillis(d.ResetAt.UnixMilli()))
		if !d.OK {
			logger.Warnf("[http] trace=%s %s rate limited ip=%s", traceID, endpoint, c.ClientIP())
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorEnvelope{
				TraceID: traceID,
				Error:   errorBody{Message: "Rate limit exceeded", Code: planner.CodeRateLimited},
				ResetAt: d.ResetAt.UnixMilli(),
			})
			return
		}
		c.Next()
	}
}

func (h *handlers) handleInit(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxImageBytes+multipartOverhead)
	if err := parseForm(c.Request, h.maxImageBytes); err != nil {
		h.bindTrace(c, "")
		if bodyTooLarge(err) {
			writeError(c, errImageTooLarge)
			return
		}
		badRequest(c, planner.CodeBadRequest, "Expected a multipart form")
		return
	}
	h.bindTrace(c, strings.TrimSpace(c.PostForm("traceId")))

	in := planner.AnalyzeInput{
		Instrument:           c.PostForm("instrument"),
		Timeframe:            c.PostForm("timeframe"),
		Note:                 c.PostForm("note"),
		RiskPct:              c.PostForm("risk_pct"),
		TraceID:              traceOf(c),
		SkipVision:           formBool(c.PostForm("skipVision")),
		ForceNextVisionModel: formBool(c.PostForm("forceNextVisionModel")),
	}
	dataURL, err := h.readImage(c)
	if err != nil {
		writeError(c, err)
		return
	}
	in.ImageDataURL = dataURL

	resp, err := h.planner.Analyze(c.Request.Context(), in)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// parseForm accepts multipart and, for vision-less calls, urlencoded forms.
func parseForm(r *http.Request, maxMemory int64) error {
	err := r.ParseMultipartForm(maxMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		return r.ParseForm()
	}
	return err
}

func bodyTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large")
}

// readImage returns "" when no image was uploaded.
func (h *handlers) readImage(c *gin.Context) (string, error) {
	if c.Request.MultipartForm == nil {
		return "", nil
	}
	file, header, err := c.Request.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return "", nil
	}
	if err != nil {
		return "", planner.NewError(http.StatusBadRequest, planner.CodeBadRequest, "Unreadable 'image' field")
	}
	defer file.Close()
	if header.Size > h.maxImageBytes {
		return "", errImageTooLarge
	}
	raw, err := io.ReadAll(io.LimitReader(file, h.maxImageBytes+1))
	if err != nil {
		return "", planner.NewError(http.StatusBadRequest, planner.CodeBadRequest, "Unreadable 'image' field")
	}
	if int64(len(raw)) > h.maxImageBytes {
		return "", errImageTooLarge
	}
	dataURL, err := vision.DataURL(raw)
	if err != nil {
		if errors.Is(err, vision.ErrUnsupportedImage) {
			return "", planner.NewError(http.StatusBadRequest, planner.CodeInvalidImage, "Image must be PNG, JPEG, WEBP or GIF")
		}
		return "", err
	}
	return dataURL, nil
}

type refineRequest struct {
	Previous map[string]any `json:"previous"`
	Answers  map[string]any `json:"answers"`
	TraceID  string         `json:"traceId"`
}

func (h *handlers) handleRefine(c *gin.Context) {
	var req refineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindTrace(c, "")
		badRequest(c, planner.CodeBadRequest, "Invalid JSON body")
		return
	}
	traceID := h.bindTrace(c, strings.TrimSpace(req.TraceID))
	resp, err := h.planner.Refine(c.Request.Context(), planner.RefineInput{
		Previous: req.Previous,
		Answers:  answerStrings(req.Answers),
		TraceID:  traceID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

type testRefineRequest struct {
	MockPlan    map[string]any `json:"mockPlan"`
	MockAnswers map[string]any `json:"mockAnswers"`
}

func (h *handlers) handleTestRefine(c *gin.Context) {
	var req testRefineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, planner.CodeBadRequest, "Invalid JSON body")
		return
	}
	if req.MockPlan == nil || req.MockAnswers == nil {
		badRequest(c, planner.CodeMissingInput, "Missing mockPlan or mockAnswers in request body")
		return
	}
	resp, err := h.planner.Refine(c.Request.Context(), planner.RefineInput{
		Previous: req.MockPlan,
		Answers:  answerStrings(req.MockAnswers),
		TraceID:  traceOf(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) handleHealth(c *gin.Context) {
	h.bindTrace(c, "")
	c.JSON(http.StatusOK, h.planner.Health(c.Request.Context()))
}

func (h *handlers) handleSelfTest(c *gin.Context) {
	report, err := h.planner.SelfTest(c.Request.Context(), traceOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func answerStrings(in map[string]any) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if v == nil {
			continue
		}
		out[k] = jsonutil.Textify(v)
	}
	return out
}

func formBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
