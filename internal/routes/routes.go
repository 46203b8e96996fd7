package routes

import (
	"net/http"

	"github.com/Cyvadra/tv-autotrade/internal/config"
	"github.com/Cyvadra/tv-autotrade/internal/handlers"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all the routes for the application
func SetupRoutes(r *gin.Engine, h *handlers.Handler, cfg *config.Config) {
	r.Use(handlers.RequestIDMiddleware())

	api := r.Group("/api")
	{
		// webhook endpoints, always 200 unless rate limited
		webhook := api.Group("/webhook")
		webhook.Use(handlers.RateLimitMiddleware(cfg.Server.WebhookRateLimit, cfg.Server.WebhookBurst))
		{
			webhook.POST("/tradingview", h.HandleTradingViewAlert)
			webhook.POST("/custom/:feed_id", h.HandleCustomAlert)
		}
		api.GET("/webhook/info", h.GetWebhookInfo)

		api.GET("/alerts/recent", h.GetRecentAlerts)
		api.GET("/ws/alerts", h.StreamAlerts)

		auth := api.Group("")
		auth.Use(handlers.AuthMiddleware(cfg.Auth.JWTSecret))
		{
			auth.GET("/alerts", h.GetAlerts)
			auth.GET("/alerts/:id", h.GetAlert)
			auth.GET("/trades", h.GetTrades)
			auth.GET("/delta/status", h.GetExchangeStatus)
			auth.GET("/delta/products", h.GetProducts)
		}
	}

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "tv-autotrade",
		})
	})

	// Root endpoint
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "TradingView Auto-Trading Service",
			"version": "2.0.0",
			"endpoints": gin.H{
				"webhook":        "/api/webhook/tradingview",
				"custom_webhook": "/api/webhook/custom/:feed_id",
				"alerts":         "/api/alerts",
				"trades":         "/api/trades",
				"websocket":      "/api/ws/alerts",
				"health":         "/health",
			},
		})
	})
}
