package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Cyvadra/tv-autotrade/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TradeService stores the order audit trail
type TradeService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewTradeService creates a trade service
func NewTradeService(db *gorm.DB) *TradeService {
	return &TradeService{db: db, now: time.Now}
}

// Record appends a trade, filling id and timestamp
func (s *TradeService) Record(ctx context.Context, trade *models.Trade) error {
	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	if trade.CreatedAt.IsZero() {
		trade.CreatedAt = s.now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(trade).Error; err != nil {
		return fmt.Errorf("failed to record trade: %w", err)
	}
	return nil
}

// ListForUser returns a user's trades, newest first
func (s *TradeService) ListForUser(ctx context.Context, userID string, limit int) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&trades).Error
	return trades, err
}

// ListForAlert returns every trade caused by an alert
func (s *TradeService) ListForAlert(ctx context.Context, alertID string) ([]models.Trade, error) {
	var trades []models.Trade
	err := s.db.WithContext(ctx).
		Where("alert_id = ?", alertID).
		Order("created_at").
		Find(&trades).Error
	return trades, err
}
