package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/Cyvadra/tv-autotrade/internal/config"
	"github.com/Cyvadra/tv-autotrade/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// seedNamespace derives stable ids for seeded accounts so re-seeding updates in place
var seedNamespace = uuid.MustParse("8f6d3c1e-4b7a-4d52-9a0e-2f1c6b5e7d90")

// UserService reads subscriber accounts and their strategy settings
type UserService struct {
	db     *gorm.DB
	logger *log.Logger
}

// NewUserService creates a new user service
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{
		db:     db,
		logger: log.New(log.Writer(), "[UserService] ", log.LstdFlags),
	}
}

// SetLogger sets a custom logger
func (s *UserService) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// Get returns a user by id
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	return &user, nil
}

// FindByFeedID resolves a personal webhook id to its owner
func (s *UserService) FindByFeedID(ctx context.Context, feedID string) (*models.User, error) {
	if _, err := uuid.Parse(feedID); err != nil {
		return nil, ErrUnknownFeed
	}

	var user models.User
	err := s.db.WithContext(ctx).
		Where("feed_id = ? AND is_active = ?", feedID, true).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownFeed
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up feed: %w", err)
	}
	return &user, nil
}

// EligibleForAlert returns the users an alert should trade for: every
// shared-feed subscriber with credentials, or the single owner of a personal feed.
func (s *UserService) EligibleForAlert(ctx context.Context, alert *models.Alert) ([]models.User, error) {
	query := s.db.WithContext(ctx).
		Where("is_active = ? AND api_key <> '' AND api_secret <> ''", true)

	switch alert.Source {
	case models.SourceCustomFeed:
		query = query.Where("id = ?", alert.SourceOwner)
	default:
		query = query.Where("feed = ?", models.FeedShared)
	}

	var users []models.User
	if err := query.Order("created_at").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to load eligible users: %w", err)
	}
	return users, nil
}

// Seed upserts the accounts of a user config file
func (s *UserService) Seed(ctx context.Context, uc *config.UserConfig) error {
	if uc == nil {
		return nil
	}

	for _, entry := range uc.Users {
		user := userFromConfig(entry)
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "feed", "feed_id", "api_key", "api_secret", "region", "testnet", "is_active", "settings", "updated_at"}),
		}).Create(&user).Error
		if err != nil {
			return fmt.Errorf("failed to seed user %s: %w", entry.Name, err)
		}
		if user.FeedID != nil {
			s.logger.Printf("Seeded user %s (%s feed %s)", user.Name, user.Feed, *user.FeedID)
		} else {
			s.logger.Printf("Seeded user %s (%s feed)", user.Name, user.Feed)
		}
	}
	return nil
}

func userFromConfig(entry config.UserConfigEntry) models.User {
	id := entry.ID
	if id == "" {
		id = uuid.NewSHA1(seedNamespace, []byte("user:"+entry.Name)).String()
	}

	feed := entry.Feed
	if feed == "" {
		feed = entry.Settings.Resolve().Feed
	}

	user := models.User{
		ID:        id,
		Name:      entry.Name,
		Feed:      feed,
		APIKey:    entry.Credentials.APIKey,
		APISecret: entry.Credentials.SecretKey,
		Region:    entry.Credentials.Region,
		Testnet:   entry.Credentials.Testnet,
		IsActive:  entry.Active(),
		Settings:  entry.Settings,
	}

	if feed == models.FeedPersonal {
		feedID := entry.FeedID
		if feedID == "" {
			feedID = uuid.NewSHA1(seedNamespace, []byte("feed:"+id)).String()
		}
		user.FeedID = &feedID
	}
	return user
}
