package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Cyvadra/tv-autotrade/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "tv-autotrade.db", cfg.Database.DSN)
	assert.Equal(t, 30*time.Second, cfg.Exchange.RequestTimeout)
	assert.Equal(t, 4, cfg.Execution.Workers)
	assert.Equal(t, DedupTwoTier, cfg.Dedup.Mode)
	assert.Equal(t, 5*time.Minute, cfg.Dedup.ClaimTTL)
	assert.Equal(t, 30*time.Second, cfg.Dedup.Window)
	assert.Equal(t, 200.0, cfg.Options.StrikeInterval["BTC"])
	assert.Equal(t, 20.0, cfg.Options.StrikeInterval["ETH"])
	assert.Equal(t, 95000.0, cfg.Options.FallbackPrice["BTC"])
	assert.Equal(t, 12, cfg.Options.CutoffHour())
	assert.Equal(t, StrikePolicyNearest, cfg.Options.StrikePolicy)
}

func TestWeeklyCutoffHour(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    int
		wantErr bool
	}{
		{"absent", "options: {}\n", 12, false},
		{"midnight", "options:\n  weekly_cutoff_hour: 0\n", 0, false},
		{"afternoon", "options:\n  weekly_cutoff_hour: 16\n", 16, false},
		{"out of range", "options:\n  weekly_cutoff_hour: 24\n", 24, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "s3cret")
			cfg, err := LoadConfig(writeFile(t, "config.yaml", tt.yaml))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Options.CutoffHour())
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  port: "9000"
  public_url: https://hooks.example.com
database:
  driver: postgres
  dsn: postgres://localhost/tv
dedup:
  mode: unified
  claim_ttl: 2m
options:
  strike_interval:
    BTC: 500
  strike_policy: strict
endpoints:
  - name: ops
    type: webhook
    url: https://ops.example.com/hook
    is_active: true
`)
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DELTA_TESTNET", "true")
	t.Setenv("PORT", "9100")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port)
	assert.Equal(t, ":9100", cfg.Server.Addr())
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, DedupUnified, cfg.Dedup.Mode)
	assert.Equal(t, 2*time.Minute, cfg.Dedup.ClaimTTL)
	assert.Equal(t, 500.0, cfg.Options.StrikeInterval["BTC"])
	assert.Equal(t, 20.0, cfg.Options.StrikeInterval["ETH"])
	assert.True(t, cfg.Exchange.Testnet)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	require.Len(t, cfg.Endpoints, 1)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigBadEnv(t *testing.T) {
	t.Setenv("DELTA_TESTNET", "maybe")
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Error(t, cfg.Validate(), "jwt secret is required")

	cfg.Auth.JWTSecret = "x"
	assert.NoError(t, cfg.Validate())

	cfg.Dedup.Mode = "sometimes"
	assert.Error(t, cfg.Validate())
}

func TestLoadUserConfig(t *testing.T) {
	path := writeFile(t, "users.yaml", `
users:
  - name: alice
    feed: shared
    credentials:
      api_key: k1
      secret_key: s1
    settings:
      btc_options_enabled: true
      options_strike_selection: otm_1
  - name: bob
    feed: personal
    feed_id: 5f0c8a52-3a5e-4c55-9d4f-7d1c2f7d9b10
    is_active: false
    settings:
      trade_futures: false
`)

	uc, err := LoadUserConfig(path)
	require.NoError(t, err)
	require.Len(t, uc.Users, 2)

	alice := uc.Users[0]
	assert.True(t, alice.Active())
	assert.Equal(t, "k1", alice.Credentials.APIKey)
	require.NotNil(t, alice.Settings.BTCOptionsEnabled)
	assert.True(t, *alice.Settings.BTCOptionsEnabled)
	assert.Equal(t, models.StrikeOTM1, alice.Settings.OptionsStrikeSelection)

	bob := uc.GetUserByFeedID("5f0c8a52-3a5e-4c55-9d4f-7d1c2f7d9b10")
	require.NotNil(t, bob)
	assert.False(t, bob.Active())
	assert.Nil(t, uc.GetUserByFeedID("nope"))
}

func TestLoadUserConfigRequiresName(t *testing.T) {
	path := writeFile(t, "users.yaml", "users:\n  - feed: shared\n")
	_, err := LoadUserConfig(path)
	assert.Error(t, err)
}

func TestLoadUserConfigRejectsSharedFeedID(t *testing.T) {
	path := writeFile(t, "users.yaml", `
users:
  - name: erin
    feed: personal
    feed_id: 5f0c8a52-3a5e-4c55-9d4f-7d1c2f7d9b10
  - name: frank
    feed: personal
    feed_id: 5f0c8a52-3a5e-4c55-9d4f-7d1c2f7d9b10
`)
	_, err := LoadUserConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already assigned")
}
