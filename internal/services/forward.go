package services

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Cyvadra/tv-autotrade/internal/config"
	"github.com/Cyvadra/tv-autotrade/internal/models"
	"github.com/go-resty/resty/v2"
)

// ForwardService relays accepted alerts to downstream endpoints, best effort
type ForwardService struct {
	client    *resty.Client
	endpoints []config.EndpointConfig
	wg        sync.WaitGroup
	logger    *log.Logger
}

// NewForwardService creates a new forward service
func NewForwardService(endpoints []config.EndpointConfig) *ForwardService {
	return &ForwardService{
		client:    resty.New().SetTimeout(10 * time.Second),
		endpoints: endpoints,
		logger:    log.New(log.Writer(), "[Forward] ", log.LstdFlags),
	}
}

// SetLogger sets a custom logger
func (s *ForwardService) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// ForwardAlert sends a shared-feed alert to all active endpoints without
// waiting. Personal-feed alerts stay private to their owner.
func (s *ForwardService) ForwardAlert(alert *models.Alert) {
	if alert.Source != models.SourcePrimaryFeed {
		return
	}
	for _, endpoint := range s.endpoints {
		if !endpoint.IsActive {
			continue
		}

		s.wg.Add(1)
		go func(ep config.EndpointConfig) {
			defer s.wg.Done()
			if err := s.forwardToEndpoint(alert, ep); err != nil {
				s.logger.Printf("Failed to forward alert %s to %s (%s): %v", alert.ID, ep.Name, ep.Type, err)
			}
		}(endpoint)
	}
}

// Wait blocks until in-flight forwards finish
func (s *ForwardService) Wait() {
	s.wg.Wait()
}

func (s *ForwardService) forwardToEndpoint(alert *models.Alert, endpoint config.EndpointConfig) error {
	switch endpoint.Type {
	case "telegram":
		return s.forwardToTelegram(alert, endpoint)
	case "webhook":
		return s.forwardToWebhook(alert, endpoint)
	default:
		return fmt.Errorf("unsupported endpoint type: %s", endpoint.Type)
	}
}

func (s *ForwardService) forwardToTelegram(alert *models.Alert, endpoint config.EndpointConfig) error {
	url := endpoint.URL
	if url == "" {
		url = fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", endpoint.Token)
	}
	payload := map[string]interface{}{
		"chat_id":    endpoint.ChatID,
		"text":       formatTelegramMessage(alert),
		"parse_mode": "HTML",
	}

	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(url)
	if err != nil {
		return fmt.Errorf("telegram API request failed: %w", err)
	}

	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d: %s", resp.StatusCode(), resp.String())
	}

	return nil
}

func (s *ForwardService) forwardToWebhook(alert *models.Alert, endpoint config.EndpointConfig) error {
	resp, err := s.client.R().
		SetHeader("Content-Type", "application/json").
		SetBody(alert).
		Post(endpoint.URL)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode(), resp.String())
	}

	return nil
}

func formatTelegramMessage(alert *models.Alert) string {
	var sb strings.Builder
	sb.WriteString("🚨 <b>Trading Alert</b>\n\n")
	sb.WriteString(fmt.Sprintf("💱 <b>Symbol:</b> %s (%s)\n", alert.Symbol, alert.Instrument))
	sb.WriteString(fmt.Sprintf("⚡ <b>Action:</b> %s\n", alert.Action))
	sb.WriteString(fmt.Sprintf("📊 <b>Strategy:</b> %s\n", alert.StrategyType))
	if alert.Price != nil {
		sb.WriteString(fmt.Sprintf("💰 <b>Price:</b> %.2f\n", *alert.Price))
	}
	if alert.Message != "" {
		sb.WriteString(fmt.Sprintf("💬 <b>Message:</b> %s\n", alert.Message))
	}
	sb.WriteString(fmt.Sprintf("⏰ <b>Time:</b> %s", alert.CreatedAt.Format("2006-01-02 15:04:05")))
	return sb.String()
}
