package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
	Auth      AuthConfig       `yaml:"auth"`
	Exchange  ExchangeConfig   `yaml:"exchange"`
	Execution ExecutionConfig  `yaml:"execution"`
	Dedup     DedupConfig      `yaml:"dedup"`
	Options   OptionsConfig    `yaml:"options"`
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port      string `yaml:"port"`
	Host      string `yaml:"host"`
	PublicURL string `yaml:"public_url"` // used to build webhook URLs

	// per client IP, requests per second; 0 disables
	WebhookRateLimit float64 `yaml:"webhook_rate_limit"`
	WebhookBurst     int     `yaml:"webhook_burst"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	port := s.Port
	if !strings.HasPrefix(port, ":") {
		port = ":" + port
	}
	return s.Host + port
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // sqlite, postgres
	DSN      string `yaml:"dsn"`
	LogLevel string `yaml:"log_level"` // silent, error, warn, info
}

// AuthConfig holds the secret used to verify bearer tokens
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// ExchangeConfig represents Delta Exchange connection defaults
type ExchangeConfig struct {
	Region         string        `yaml:"region"` // india, global
	Testnet        bool          `yaml:"testnet"`
	BaseURL        string        `yaml:"base_url,omitempty"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RateLimit      float64       `yaml:"rate_limit"` // requests per second
	Burst          int           `yaml:"burst"`
}

// ExecutionConfig sizes the background trade dispatcher
type ExecutionConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// Dedup modes
const (
	DedupTwoTier = "two_tier"
	DedupUnified = "unified"
)

// DedupConfig represents duplicate alert suppression settings
type DedupConfig struct {
	Mode     string        `yaml:"mode"`
	ClaimTTL time.Duration `yaml:"claim_ttl"`
	Window   time.Duration `yaml:"window"`
}

// Strike policies
const (
	StrikePolicyNearest = "nearest"
	StrikePolicyStrict  = "strict"
)

// OptionsConfig represents options contract selection settings
type OptionsConfig struct {
	StrikeInterval      map[string]float64 `yaml:"strike_interval"`
	FallbackPrice       map[string]float64 `yaml:"fallback_price"`
	WeeklyCutoffHour    *int               `yaml:"weekly_cutoff_hour"` // UTC, 0 is midnight
	ExpiryToleranceDays int                `yaml:"expiry_tolerance_days"`
	StrikePolicy        string             `yaml:"strike_policy"`
	MaxStrikeSteps      float64            `yaml:"max_strike_steps"`
	ReferencePrice      ReferencePrice     `yaml:"reference_price"`
}

const defaultCutoffHour = 12

// CutoffHour returns the UTC hour after which the weekly expiry rolls forward
func (o OptionsConfig) CutoffHour() int {
	if o.WeeklyCutoffHour == nil {
		return defaultCutoffHour
	}
	return *o.WeeklyCutoffHour
}

// ReferencePrice toggles secondary spot price sources
type ReferencePrice struct {
	Binance bool          `yaml:"binance"`
	Timeout time.Duration `yaml:"timeout"`
}

// EndpointConfig represents a downstream endpoint configuration
type EndpointConfig struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"` // telegram, webhook
	URL      string `yaml:"url"`
	Token    string `yaml:"token,omitempty"`
	ChatID   string `yaml:"chat_id,omitempty"`
	IsActive bool   `yaml:"is_active"`
}

// LoadConfig loads configuration from a YAML file, then applies
// environment overrides and defaults. A missing file is not an error.
func LoadConfig(filename string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(filename)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	_ = godotenv.Load()
	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	return &config, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PUBLIC_URL"); v != "" {
		c.Server.PublicURL = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("DELTA_REGION"); v != "" {
		c.Exchange.Region = v
	}
	if v := os.Getenv("DELTA_TESTNET"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DELTA_TESTNET %q: %w", v, err)
		}
		c.Exchange.Testnet = b
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.Server.WebhookRateLimit > 0 && c.Server.WebhookBurst <= 0 {
		c.Server.WebhookBurst = 20
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "tv-autotrade.db"
	}
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = "warn"
	}

	if c.Exchange.Region == "" {
		c.Exchange.Region = "india"
	}
	if c.Exchange.RequestTimeout <= 0 {
		c.Exchange.RequestTimeout = 30 * time.Second
	}
	if c.Exchange.RateLimit == 0 {
		c.Exchange.RateLimit = 10
	}
	if c.Exchange.Burst <= 0 {
		c.Exchange.Burst = 5
	}

	if c.Execution.Workers <= 0 {
		c.Execution.Workers = 4
	}
	if c.Execution.QueueSize <= 0 {
		c.Execution.QueueSize = 64
	}

	if c.Dedup.Mode == "" {
		c.Dedup.Mode = DedupTwoTier
	}
	if c.Dedup.ClaimTTL <= 0 {
		c.Dedup.ClaimTTL = 5 * time.Minute
	}
	if c.Dedup.Window <= 0 {
		c.Dedup.Window = 30 * time.Second
	}

	if c.Options.StrikeInterval == nil {
		c.Options.StrikeInterval = map[string]float64{}
	}
	if _, ok := c.Options.StrikeInterval["BTC"]; !ok {
		c.Options.StrikeInterval["BTC"] = 200
	}
	if _, ok := c.Options.StrikeInterval["ETH"]; !ok {
		c.Options.StrikeInterval["ETH"] = 20
	}
	if c.Options.FallbackPrice == nil {
		c.Options.FallbackPrice = map[string]float64{}
	}
	if _, ok := c.Options.FallbackPrice["BTC"]; !ok {
		c.Options.FallbackPrice["BTC"] = 95000
	}
	if _, ok := c.Options.FallbackPrice["ETH"]; !ok {
		c.Options.FallbackPrice["ETH"] = 3500
	}
	if c.Options.WeeklyCutoffHour == nil {
		hour := defaultCutoffHour
		c.Options.WeeklyCutoffHour = &hour
	}
	if c.Options.ExpiryToleranceDays <= 0 {
		c.Options.ExpiryToleranceDays = 3
	}
	if c.Options.StrikePolicy == "" {
		c.Options.StrikePolicy = StrikePolicyNearest
	}
	if c.Options.MaxStrikeSteps <= 0 {
		c.Options.MaxStrikeSteps = 2
	}
	if c.Options.ReferencePrice.Timeout <= 0 {
		c.Options.ReferencePrice.Timeout = 10 * time.Second
	}
}

// Validate checks values that have no sensible default
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required for %s", c.Database.Driver)
	}
	switch c.Dedup.Mode {
	case DedupTwoTier, DedupUnified:
	default:
		return fmt.Errorf("unsupported dedup mode %q", c.Dedup.Mode)
	}
	switch c.Options.StrikePolicy {
	case StrikePolicyNearest, StrikePolicyStrict:
	default:
		return fmt.Errorf("unsupported strike policy %q", c.Options.StrikePolicy)
	}
	if h := c.Options.CutoffHour(); h < 0 || h > 23 {
		return fmt.Errorf("weekly_cutoff_hour must be 0-23, got %d", h)
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret (or JWT_SECRET) is required")
	}
	return nil
}
