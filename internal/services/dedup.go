package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Cyvadra/tv-autotrade/internal/config"
	"github.com/Cyvadra/tv-autotrade/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DedupGate admits at most one alert per dedup key and minute bucket.
// Coordination happens through the dedup_claims primary key so several
// processes sharing one database agree on the winner.
type DedupGate struct {
	db     *gorm.DB
	cfg    config.DedupConfig
	now    func() time.Time
	logger *log.Logger
}

// NewDedupGate creates a dedup gate
func NewDedupGate(db *gorm.DB, cfg config.DedupConfig) *DedupGate {
	return &DedupGate{
		db:     db,
		cfg:    cfg,
		now:    time.Now,
		logger: log.New(log.Writer(), "[DedupGate] ", log.LstdFlags),
	}
}

// SetLogger sets a custom logger
func (g *DedupGate) SetLogger(logger *log.Logger) {
	g.logger = logger
}

// Key returns the claim key of an alert. Personal feeds are keyed by owner so
// two users' feeds never suppress each other.
func (g *DedupGate) Key(alert *models.Alert) string {
	parts := []string{alert.Instrument, alert.Action, alert.Source}
	if alert.Source == models.SourceCustomFeed {
		parts = append(parts, alert.SourceOwner)
	}
	if g.cfg.Mode == config.DedupUnified {
		parts = append(parts, alert.StrategyType)
	}
	return strings.Join(parts, ":")
}

// Claim admits the alert or returns ErrDuplicateAlert together with the id of
// the alert that already holds the slot.
func (g *DedupGate) Claim(ctx context.Context, alert *models.Alert) (string, error) {
	now := g.now().UTC()
	db := g.db.WithContext(ctx)

	if g.cfg.Mode != config.DedupUnified && g.cfg.Window > 0 {
		var recent models.Alert
		err := db.Select("id").
			Where("instrument = ? AND action = ? AND source = ? AND source_owner = ? AND strategy_type = ? AND created_at >= ?",
				alert.Instrument, alert.Action, alert.Source, alert.SourceOwner, alert.StrategyType, now.Add(-g.cfg.Window)).
			Order("created_at DESC").
			Take(&recent).Error
		switch {
		case err == nil:
			return recent.ID, ErrDuplicateAlert
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return "", fmt.Errorf("failed to check recent alerts: %w", err)
		}
	}

	claim := models.DedupClaim{
		DedupKey:  g.Key(alert),
		Bucket:    now.Unix() / 60,
		AlertID:   alert.ID,
		CreatedAt: now,
	}

	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&claim)
	if res.Error != nil && !errors.Is(res.Error, gorm.ErrDuplicatedKey) {
		return "", fmt.Errorf("failed to create dedup claim: %w", res.Error)
	}
	if res.Error == nil && res.RowsAffected == 1 {
		return alert.ID, nil
	}

	var existing models.DedupClaim
	if err := db.Where("dedup_key = ? AND bucket = ?", claim.DedupKey, claim.Bucket).Take(&existing).Error; err != nil {
		return "", fmt.Errorf("failed to load conflicting dedup claim: %w", err)
	}
	return existing.AlertID, ErrDuplicateAlert
}

// Release drops the claim held by an alert that could not be persisted
func (g *DedupGate) Release(ctx context.Context, alert *models.Alert) error {
	return g.db.WithContext(ctx).Where("alert_id = ?", alert.ID).Delete(&models.DedupClaim{}).Error
}

// Sweep deletes claims older than the claim TTL
func (g *DedupGate) Sweep(ctx context.Context) (int64, error) {
	cutoff := g.now().UTC().Add(-g.cfg.ClaimTTL)
	res := g.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.DedupClaim{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to sweep dedup claims: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		g.logger.Printf("Swept %d expired dedup claims", res.RowsAffected)
	}
	return res.RowsAffected, nil
}
