package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "https://ro.gnjoy.com/itemDeal", cfg.GnjoyBaseURL)
	assert.Equal(t, "https://ro.gnjoy.com/itemDeal/itemDealList.asp", cfg.DealListEndpoint)
	assert.Equal(t, time.Second, cfg.ItemDetailDelay)
	assert.Equal(t, 5*time.Second, cfg.PageDelay)
	assert.Equal(t, 24*time.Hour, cfg.RateLimitBlock)
	assert.Equal(t, 3*time.Second, cfg.ScanInterval)
	assert.Equal(t, 15*time.Second, cfg.ItemTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.ProcessingHold)
	assert.Equal(t, 20, cfg.WatchListMax)
	assert.Equal(t, time.Hour, cfg.SessionStaleAfter)

	require.NoError(t, cfg.Validate())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PAGE_DELAY_SECONDS", "2")
	t.Setenv("ITEM_DETAIL_DELAY_SECONDS", "0.5")
	t.Setenv("WATCH_LIST_MAX", "5")
	t.Setenv("PROCESSING_HOLD_MILLIS", "0")

	cfg := LoadConfig()

	assert.Equal(t, 2*time.Second, cfg.PageDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.ItemDetailDelay)
	assert.Equal(t, 5, cfg.WatchListMax)
	assert.Equal(t, time.Duration(0), cfg.ProcessingHold)

	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsBrokenConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base URL", func(c *Config) { c.GnjoyBaseURL = "" }},
		{"negative page delay", func(c *Config) { c.PageDelay = -time.Second }},
		{"zero max pages", func(c *Config) { c.MaxCrawlPages = 0 }},
		{"zero block duration", func(c *Config) { c.RateLimitBlock = 0 }},
		{"zero scan interval", func(c *Config) { c.ScanInterval = 0 }},
		{"zero item timeout", func(c *Config) { c.ItemTimeout = 0 }},
		{"zero watch list max", func(c *Config) { c.WatchListMax = 0 }},
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := LoadConfig()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
