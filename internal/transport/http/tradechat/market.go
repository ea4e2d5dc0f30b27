package tradechat

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"tradecoach/internal/gateway/provider"
	"tradecoach/internal/logger"
	"tradecoach/internal/market"

	"github.com/gin-gonic/gin"
)

func (h *handlers) handleModels(c *gin.Context) {
	list, err := h.models.ListModels(c.Request.Context())
	if err != nil {
		logger.Warnf("[http] list models failed: %v", err)
		status := list.Status
		if s := provider.StatusOf(err); s != 0 {
			status = s
		}
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "status": status, "models": []provider.ModelInfo{}, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "status": list.Status, "models": list.Models})
}

func (h *handlers) handleOHLCV(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	withIndicators := formBool(c.Query("indicators"))
	out, err := h.market.OHLCV(c.Request.Context(), c.Query("symbol"), c.Query("interval"), limit, withIndicators)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, market.ErrUnsupportedInterval) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"ok": false, "error": err.Error()})
		return
	}
	resp := gin.H{
		"ok":       true,
		"provider": out.Provider,
		"symbol":   out.Symbol,
		"interval": out.Interval,
		"candles":  out.Candles,
	}
	if out.Indicators != nil {
		resp["indicators"] = out.Indicators
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) handlePrice(c *gin.Context) {
	sym := strings.TrimSpace(c.Query("symbol"))
	if sym == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing 'symbol' parameter"})
		return
	}
	tk, err := h.market.Price(c.Request.Context(), sym)
	switch {
	case errors.Is(err, market.ErrSymbolNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Symbol '" + strings.ToUpper(sym) + "' not found"})
	case err != nil:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, tk)
	}
}
