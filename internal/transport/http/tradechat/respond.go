package tradechat

import (
	"net/http"
	"strconv"

	"tradecoach/internal/logger"
	"tradecoach/internal/planner"

	"github.com/gin-gonic/gin"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRemaining = "X-RateLimit-Remaining"
	headerReset     = "X-RateLimit-Reset"
	traceKey        = "traceId"
)

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type errorEnvelope struct {
	TraceID string    `json:"traceId"`
	Error   errorBody `json:"error"`
	ResetAt int64     `json:"resetAt,omitempty"`
}

// noStore marks every trade-chat response uncacheable.
func noStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// bindTrace settles the trace id for the request and echoes it in a header.
func (h *handlers) bindTrace(c *gin.Context, candidate string) string {
	if candidate == "" {
		candidate = c.GetHeader(headerTraceID)
	}
	id := h.planner.TraceID(candidate)
	c.Set(traceKey, id)
	c.Header(headerTraceID, id)
	return id
}

func traceOf(c *gin.Context) string {
	return c.GetString(traceKey)
}

func writeError(c *gin.Context, err error) {
	pe := planner.AsError(err)
	if pe.Status >= http.StatusInternalServerError {
		logger.Errorf("[http] %s %s trace=%s code=%s: %v", c.Request.Method, c.Request.URL.Path, traceOf(c), pe.Code, err)
	} else {
		logger.Warnf("[http] %s %s trace=%s code=%s: %s", c.Request.Method, c.Request.URL.Path, traceOf(c), pe.Code, pe.Message)
	}
	c.AbortWithStatusJSON(pe.Status, errorEnvelope{
		TraceID: traceOf(c),
		Error:   errorBody{Message: pe.Message, Code: pe.Code},
	})
}

func badRequest(c *gin.Context, code, message string) {
	writeError(c, planner.NewError(http.StatusBadRequest, code, message))
}

func formatMillis(ms int64) string {
	return strconv.FormatInt(ms, 10)
}
