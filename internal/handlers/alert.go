package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/Cyvadra/tv-autotrade/internal/config"
	"github.com/Cyvadra/tv-autotrade/internal/models"
	"github.com/Cyvadra/tv-autotrade/internal/services"
	"github.com/gin-gonic/gin"
)

// maxWebhookBody caps the accepted webhook payload size
const maxWebhookBody = 64 << 10

// Services are the collaborators the HTTP layer calls into
type Services struct {
	Alerts   *services.AlertService
	Users    *services.UserService
	Trades   *services.TradeService
	Accounts *services.AccountService
	Hub      *services.Hub
}

// Handler serves the webhook and dashboard API
type Handler struct {
	alerts   *services.AlertService
	users    *services.UserService
	trades   *services.TradeService
	accounts *services.AccountService
	hub      *services.Hub

	server config.ServerConfig
	secret string
	logger *log.Logger
}

// NewHandler creates a new handler
func NewHandler(cfg *config.Config, svc Services) *Handler {
	return &Handler{
		alerts:   svc.Alerts,
		users:    svc.Users,
		trades:   svc.Trades,
		accounts: svc.Accounts,
		hub:      svc.Hub,
		server:   cfg.Server,
		secret:   cfg.Auth.JWTSecret,
		logger:   log.New(log.Writer(), "[Handler] ", log.LstdFlags),
	}
}

// SetLogger sets a custom logger
func (h *Handler) SetLogger(logger *log.Logger) {
	h.logger = logger
}

// HandleTradingViewAlert handles alerts posted to the shared webhook
func (h *Handler) HandleTradingViewAlert(c *gin.Context) {
	h.ingest(c, services.SharedFeed)
}

// HandleCustomAlert handles alerts posted to a user's personal webhook
func (h *Handler) HandleCustomAlert(c *gin.Context) {
	feed, err := h.alerts.ResolveFeed(c.Request.Context(), c.Param("feed_id"))
	if errors.Is(err, services.ErrUnknownFeed) {
		c.JSON(http.StatusOK, services.IngestResult{Status: services.StatusRejected, Reason: "unknown feed"})
		return
	}
	if err != nil {
		h.logger.Printf("Failed to resolve feed: %v", err)
		c.JSON(http.StatusOK, services.IngestResult{Status: services.StatusRejected, Reason: "internal error"})
		return
	}
	h.ingest(c, feed)
}

// ingest always answers 200 so the charting tool never retries a delivery
func (h *Handler) ingest(c *gin.Context, feed services.Feed) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusOK, services.IngestResult{Status: services.StatusRejected, Reason: "unreadable body"})
		return
	}

	res, err := h.alerts.Ingest(c.Request.Context(), body, feed)
	if err != nil {
		h.logger.Printf("Failed to ingest %s alert: %v", feed.Source, err)
		c.JSON(http.StatusOK, services.IngestResult{Status: services.StatusRejected, Reason: "internal error"})
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetAlerts returns the alerts visible to the requester
func (h *Handler) GetAlerts(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	limit := queryInt(c, "limit", 100, 500)
	alerts, err := h.alerts.ListForUser(c.Request.Context(), user, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// GetRecentAlerts returns shared-feed alerts of the last hours
func (h *Handler) GetRecentAlerts(c *gin.Context) {
	hours := queryInt(c, "hours", 24, 24*7)

	alerts, err := h.alerts.Recent(c.Request.Context(), time.Duration(hours)*time.Hour, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve alerts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
		"hours":  hours,
	})
}

// GetAlert retrieves a specific alert by ID
func (h *Handler) GetAlert(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	alert, err := h.alerts.Get(c.Request.Context(), c.Param("id"))
	if err != nil || !services.AlertVisibleTo(alert, user) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
		return
	}

	trades, err := h.trades.ListForAlert(c.Request.Context(), alert.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve trades"})
		return
	}
	mine := make([]models.Trade, 0, len(trades))
	for _, t := range trades {
		if t.UserID == user.ID {
			mine = append(mine, t)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"alert":  alert,
		"trades": mine,
	})
}

// queryInt reads a positive integer query parameter, falling back to def
func queryInt(c *gin.Context, key string, def, ceiling int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return def
	}
	if v > ceiling {
		return ceiling
	}
	return v
}
