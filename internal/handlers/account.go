package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Cyvadra/tv-autotrade/internal/services"
	"github.com/gin-gonic/gin"
)

// GetTrades returns the requester's trades, newest first
func (h *Handler) GetTrades(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	limit := queryInt(c, "limit", 50, 500)
	trades, err := h.trades.ListForUser(c.Request.Context(), user.ID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve trades"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trades": trades,
		"count":  len(trades),
	})
}

// GetExchangeStatus reports the requester's exchange balance and open positions
func (h *Handler) GetExchangeStatus(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.accounts.Status(c.Request.Context(), user))
}

// GetProducts lists the tradable perpetuals visible to the requester's account
func (h *Handler) GetProducts(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	products, err := h.accounts.Products(c.Request.Context(), user)
	if errors.Is(err, services.ErrNoCredentials) {
		c.JSON(http.StatusBadRequest, gin.H{"code": "NO_CREDENTIALS", "error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"products": products,
		"count":    len(products),
	})
}

// GetWebhookInfo describes the webhook URLs and the accepted payload
func (h *Handler) GetWebhookInfo(c *gin.Context) {
	base := h.baseURL(c)

	info := gin.H{
		"shared_webhook_url": base + "/api/webhook/tradingview",
		"method":             http.MethodPost,
		"content_type":       "application/json",
		"payload_format": gin.H{
			"symbol":   "{{ticker}}",
			"action":   "BUY or SELL",
			"price":    "{{close}}",
			"message":  "optional free text",
			"strategy": "optional: futures, options or both",
		},
		"example": gin.H{
			"symbol": "BTCUSD",
			"action": "BUY",
			"price":  95000,
		},
	}

	if user := h.optionalUser(c); user != nil && user.FeedID != nil {
		info["personal_webhook_url"] = base + "/api/webhook/custom/" + *user.FeedID
	}

	c.JSON(http.StatusOK, info)
}

func (h *Handler) baseURL(c *gin.Context) string {
	if h.server.PublicURL != "" {
		return strings.TrimRight(h.server.PublicURL, "/")
	}
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}
