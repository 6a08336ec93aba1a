package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Scraper.Limit)
	assert.Equal(t, 120*time.Second, cfg.Scraper.AdapterTimeout)
	assert.Equal(t, "my", cfg.Scraper.ShopeeRegion)
	assert.Equal(t, 7.2, cfg.Analysis.ExchangeRate)
	assert.Equal(t, 0.4, cfg.Analysis.MarginThreshold)
	assert.True(t, cfg.Browser.Headless)
	assert.True(t, cfg.Challenge.Unattended)
	assert.False(t, cfg.Database.Enabled())
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HEADLESS_MODE", "false")
	t.Setenv("SCRAPER_SOURCES", "amazon, 1688 ,")
	t.Setenv("SCRAPER_ADAPTER_TIMEOUT", "45s")
	t.Setenv("EXCHANGE_RATE_USD_CNY", "7.05")
	t.Setenv("DB_HOST", "db")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("DATA_DIR", "/tmp/scout")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.Browser.Headless)
	// unattended follows headless unless set
	assert.False(t, cfg.Challenge.Unattended)
	assert.Equal(t, []string{"amazon", "1688"}, cfg.Scraper.Sources)
	assert.Equal(t, 45*time.Second, cfg.Scraper.AdapterTimeout)
	assert.Equal(t, 7.05, cfg.Analysis.ExchangeRate)
	assert.True(t, cfg.Database.Enabled())
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "/tmp/scout/reports", cfg.ReportsDir())
	assert.Equal(t, "/tmp/scout/runs.json", cfg.RunsFile())
}

func TestUnattendedOverride(t *testing.T) {
	t.Setenv("HEADLESS_MODE", "false")
	t.Setenv("UNATTENDED_MODE", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Challenge.Unattended)
}

func TestApplyHeadless(t *testing.T) {
	tests := []struct {
		name           string
		env            map[string]string
		headless       bool
		wantUnattended bool
	}{
		{"headed run waits for the operator", nil, false, false},
		{"headless flag over headed env", map[string]string{"HEADLESS_MODE": "false"}, true, true},
		{"pinned unattended survives headed flag", map[string]string{"UNATTENDED_MODE": "true"}, false, true},
		{"pinned attended survives headless flag", map[string]string{"UNATTENDED_MODE": "false"}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load()
			require.NoError(t, err)

			cfg.ApplyHeadless(tt.headless)
			assert.Equal(t, tt.headless, cfg.Browser.Headless)
			assert.Equal(t, tt.wantUnattended, cfg.Challenge.Unattended)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"bad port", map[string]string{"SERVER_PORT": "70000"}, "invalid server port"},
		{"zero limit", map[string]string{"SCRAPER_LIMIT": "0"}, "SCRAPER_LIMIT"},
		{"inverted rate limit", map[string]string{"SCRAPER_RATE_LIMIT_MIN": "10s", "SCRAPER_RATE_LIMIT_MAX": "1s"}, "SCRAPER_RATE_LIMIT_MIN"},
		{"negative rate", map[string]string{"EXCHANGE_RATE_USD_CNY": "-1"}, "EXCHANGE_RATE_USD_CNY"},
		{"threshold too high", map[string]string{"MARGIN_THRESHOLD": "1.5"}, "MARGIN_THRESHOLD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
