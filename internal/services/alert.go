package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Cyvadra/tv-autotrade/internal/models"
	"gorm.io/gorm"
)

// Webhook outcomes
const (
	StatusReceived  = "received"
	StatusDuplicate = "duplicate_ignored"
	StatusRejected  = "rejected"
)

// IngestResult is the webhook response body
type IngestResult struct {
	Status  string `json:"status"`
	AlertID string `json:"alert_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Submitter accepts alerts for background execution
type Submitter interface {
	Submit(alert *models.Alert) bool
}

// AlertService runs the synchronous part of the webhook pipeline:
// normalize, dedup, persist, notify, then hand off for execution.
type AlertService struct {
	db         *gorm.DB
	normalizer *Normalizer
	gate       *DedupGate
	hub        *Hub
	forward    *ForwardService
	users      *UserService
	dispatcher Submitter
	logger     *log.Logger
}

// NewAlertService creates an alert service. forward and dispatcher may be nil.
func NewAlertService(db *gorm.DB, gate *DedupGate, hub *Hub, users *UserService, forward *ForwardService, dispatcher Submitter) *AlertService {
	return &AlertService{
		db:         db,
		normalizer: NewNormalizer(),
		gate:       gate,
		hub:        hub,
		forward:    forward,
		users:      users,
		dispatcher: dispatcher,
		logger:     log.New(log.Writer(), "[AlertService] ", log.LstdFlags),
	}
}

// SetLogger sets a custom logger
func (s *AlertService) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// ResolveFeed maps a personal webhook id to its feed
func (s *AlertService) ResolveFeed(ctx context.Context, feedID string) (Feed, error) {
	user, err := s.users.FindByFeedID(ctx, feedID)
	if err != nil {
		return Feed{}, err
	}
	return PersonalFeed(user.ID), nil
}

// Ingest processes one webhook delivery. Rejections and duplicates are
// results, not errors; an error means the alert could not be stored.
func (s *AlertService) Ingest(ctx context.Context, body []byte, feed Feed) (*IngestResult, error) {
	alert, rej := s.normalizer.Normalize(body, feed)
	if rej != nil {
		s.logger.Printf("Rejected %s alert: %s", feed.Source, rej.Reason)
		return &IngestResult{Status: StatusRejected, Reason: rej.Reason}, nil
	}

	existingID, err := s.gate.Claim(ctx, alert)
	if errors.Is(err, ErrDuplicateAlert) && !s.stored(ctx, existingID) {
		// the holder either is still being saved or failed and released its slot
		s.logger.Printf("Slot of %s %s held by unsaved alert %s, claiming again for %s", alert.Instrument, alert.Action, existingID, alert.ID)
		existingID, err = s.gate.Claim(ctx, alert)
	}
	if errors.Is(err, ErrDuplicateAlert) {
		s.logger.Printf("Duplicate %s %s on %s ignored (first alert %s)", alert.Instrument, alert.Action, feed.Source, existingID)
		return &IngestResult{Status: StatusDuplicate, AlertID: existingID}, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(alert).Error; err != nil {
		if relErr := s.gate.Release(context.WithoutCancel(ctx), alert); relErr != nil {
			s.logger.Printf("Failed to release claim of alert %s: %v", alert.ID, relErr)
		}
		s.logger.Printf("Failed to save alert %s, released slot %s", alert.ID, s.gate.Key(alert))
		return nil, fmt.Errorf("failed to save alert: %w", err)
	}

	s.logger.Printf("Received alert %s: %s %s %s (%s, %s)", alert.ID, alert.Symbol, alert.Action, alert.StrategyType, alert.Source, alert.SourceOwner)

	s.hub.Broadcast(alert)
	if s.forward != nil {
		s.forward.ForwardAlert(alert)
	}
	if s.dispatcher != nil {
		s.dispatcher.Submit(alert)
	}

	return &IngestResult{Status: StatusReceived, AlertID: alert.ID}, nil
}

func (s *AlertService) stored(ctx context.Context, id string) bool {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Alert{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return true
	}
	return n > 0
}

// Get returns an alert by id
func (s *AlertService) Get(ctx context.Context, id string) (*models.Alert, error) {
	var alert models.Alert
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&alert).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// ListForUser returns the alerts of the user's feed, newest first
func (s *AlertService) ListForUser(ctx context.Context, user *models.User, limit int) ([]models.Alert, error) {
	query := s.db.WithContext(ctx)
	if user.Feed == models.FeedPersonal {
		query = query.Where("source = ? AND source_owner = ?", models.SourceCustomFeed, user.ID)
	} else {
		query = query.Where("source = ? OR (source = ? AND source_owner = ?)", models.SourcePrimaryFeed, models.SourceCustomFeed, user.ID)
	}

	var alerts []models.Alert
	err := query.Order("created_at DESC").Limit(limit).Find(&alerts).Error
	return alerts, err
}

// Recent returns shared-feed alerts received in the last window
func (s *AlertService) Recent(ctx context.Context, window time.Duration, limit int) ([]models.Alert, error) {
	var alerts []models.Alert
	err := s.db.WithContext(ctx).
		Where("source = ? AND created_at >= ?", models.SourcePrimaryFeed, time.Now().UTC().Add(-window)).
		Order("created_at DESC").
		Limit(limit).
		Find(&alerts).Error
	return alerts, err
}
