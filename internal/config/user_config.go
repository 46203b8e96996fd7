package config

import (
	"fmt"
	"os"

	"github.com/Cyvadra/tv-autotrade/internal/models"
	"gopkg.in/yaml.v3"
)

// UserConfig is the seed file of subscriber accounts
type UserConfig struct {
	Users []UserConfigEntry `yaml:"users"`
}

// UserConfigEntry represents a single subscriber account
type UserConfigEntry struct {
	ID          string                 `yaml:"id"`
	Name        string                 `yaml:"name"`
	Feed        string                 `yaml:"feed"`    // shared, personal
	FeedID      string                 `yaml:"feed_id"` // personal webhook id; generated when empty
	IsActive    *bool                  `yaml:"is_active"`
	Credentials UserCredentialConfig   `yaml:"credentials"`
	Settings    models.TradingSettings `yaml:"settings"`
}

// UserCredentialConfig represents the Delta Exchange key pair of a user
type UserCredentialConfig struct {
	APIKey    string `yaml:"api_key"`
	SecretKey string `yaml:"secret_key"`
	Region    string `yaml:"region,omitempty"`
	Testnet   bool   `yaml:"testnet,omitempty"`
}

// Active reports whether the account is enabled, defaulting to true
func (e *UserConfigEntry) Active() bool {
	return e.IsActive == nil || *e.IsActive
}

// LoadUserConfig loads user configuration from a YAML file
func LoadUserConfig(filename string) (*UserConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read user config file: %w", err)
	}

	var config UserConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse user config file: %w", err)
	}

	for i, u := range config.Users {
		if u.Name == "" && u.ID == "" {
			return nil, fmt.Errorf("user #%d: name or id is required", i+1)
		}
		if u.FeedID != "" && config.GetUserByFeedID(u.FeedID) != &config.Users[i] {
			return nil, fmt.Errorf("user #%d: feed id %s is already assigned", i+1, u.FeedID)
		}
	}

	return &config, nil
}

// GetUserByFeedID finds a user configuration by personal feed id
func (uc *UserConfig) GetUserByFeedID(feedID string) *UserConfigEntry {
	for i := range uc.Users {
		if uc.Users[i].FeedID == feedID {
			return &uc.Users[i]
		}
	}
	return nil
}
