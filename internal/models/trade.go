package models

import (
	"time"
)

// Trade outcomes
const (
	TradeSuccess = "success"
	TradeFailed  = "failed"
)

// Trade purposes
const (
	PurposeOpen  = "open"
	PurposeClose = "close"
)

// Trade is the audit record of one order placement attempt, including
// attempts that never reached the exchange.
type Trade struct {
	ID            string    `json:"id" gorm:"primaryKey;size:36"`
	UserID        string    `json:"user_id" gorm:"size:36;not null;index"`
	AlertID       string    `json:"alert_id" gorm:"size:36;not null;index"`
	Symbol        string    `json:"symbol" gorm:"size:32"`
	ProductSymbol string    `json:"product_symbol,omitempty" gorm:"size:64"`
	ProductID     int64     `json:"product_id,omitempty"`
	StrategyType  string    `json:"strategy_type" gorm:"size:16"`
	Instrument    string    `json:"instrument" gorm:"size:8"`
	Action        string    `json:"action" gorm:"size:8"`
	Purpose       string    `json:"purpose" gorm:"size:8"`
	Side          string    `json:"side,omitempty" gorm:"size:8"`
	Quantity      int64     `json:"quantity"`
	Status        string    `json:"status" gorm:"size:8;not null"`
	Response      string    `json:"response,omitempty" gorm:"type:text"`
	Error         string    `json:"error,omitempty" gorm:"type:text"`
	CreatedAt     time.Time `json:"created_at" gorm:"index"`
}
