package models

import (
	"time"
)

// Alert actions
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

// Strategy types, also used as the alert strategy hint
const (
	StrategyFutures = "futures"
	StrategyOptions = "options"
	StrategyBoth    = "both"
)

// Alert sources
const (
	SourcePrimaryFeed = "primary_feed"
	SourceCustomFeed  = "custom_feed"
)

// OwnerShared is the source owner of alerts received on the shared feed
const OwnerShared = "shared"

// Alert represents a normalized TradingView alert. Rows are never updated.
type Alert struct {
	ID           string    `json:"id" gorm:"primaryKey;size:36"`
	Symbol       string    `json:"symbol" gorm:"size:32;not null"`
	Instrument   string    `json:"instrument" gorm:"size:8;not null;index:idx_alert_recent,priority:1"`
	Action       string    `json:"action" gorm:"size:8;not null;index:idx_alert_recent,priority:2"`
	Price        *float64  `json:"price,omitempty"`
	Message      string    `json:"message,omitempty"`
	StrategyType string    `json:"strategy_type" gorm:"size:16;not null"`
	Source       string    `json:"source" gorm:"size:16;not null;index:idx_alert_recent,priority:3"`
	SourceOwner  string    `json:"source_owner" gorm:"size:36;not null;index"`
	CreatedAt    time.Time `json:"created_at" gorm:"index:idx_alert_recent,priority:4"`
	RawBody      string    `json:"-" gorm:"type:text"`
}

// AllowsFutures reports whether the strategy hint admits futures executions
func (a *Alert) AllowsFutures() bool {
	return a.StrategyType == StrategyFutures || a.StrategyType == StrategyBoth
}

// AllowsOptions reports whether the strategy hint admits options executions
func (a *Alert) AllowsOptions() bool {
	return a.StrategyType == StrategyOptions || a.StrategyType == StrategyBoth
}

// DedupClaim is the atomic marker that admits one alert per key and minute.
// The composite primary key makes a second insert fail.
type DedupClaim struct {
	DedupKey  string    `json:"dedup_key" gorm:"primaryKey;size:96"`
	Bucket    int64     `json:"bucket" gorm:"primaryKey;autoIncrement:false"` // unix minute
	AlertID   string    `json:"alert_id" gorm:"size:36;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}
