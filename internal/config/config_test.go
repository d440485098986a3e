package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "groceries.asda.com", cfg.Crawler.AllowedDomain)
	assert.Equal(t, 3, cfg.Crawler.MaxDepth)
	assert.Equal(t, 10, cfg.Crawler.PageLoadTimeout)
	assert.Equal(t, 5, cfg.Crawler.MaxSubcategories)
	assert.Equal(t, 3, cfg.Crawler.MaxPaginationLinks)
	assert.Equal(t, 5, cfg.Recovery.FailureThreshold)
	assert.Equal(t, 60, cfg.Recovery.RecoveryTimeout)
	assert.Equal(t, 1000, cfg.Recovery.TrackerSize)
	assert.InDelta(t, 3.0, cfg.Delays.Phases["between_subcategories"], 0.001)
	assert.InDelta(t, 300.0, cfg.Delays.Phases["after_rate_limit_detected"], 0.001)
	assert.Contains(t, cfg.Delays.RateLimitIndicators, "too many requests")

	network, ok := cfg.Recovery.Policies["network"]
	require.True(t, ok)
	assert.Equal(t, 3, network.MaxAttempts)
	assert.True(t, network.Jitter)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
crawler:
  allowed_domain: groceries.example.com
  max_depth: 2
  start_urls:
    - https://groceries.example.com/dept/1234567890123
delays:
  phases:
    between_pages: 0.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "groceries.example.com", cfg.Crawler.AllowedDomain)
	assert.Equal(t, 2, cfg.Crawler.MaxDepth)
	assert.Equal(t, []string{"https://groceries.example.com/dept/1234567890123"}, cfg.Crawler.StartURLs)
	assert.InDelta(t, 0.5, cfg.Delays.Phases["between_pages"], 0.001)
	assert.Equal(t, 5, cfg.Crawler.MaxSubcategories)
}

func TestLoadFileRejectsInvalidDepth(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crawler:\n  max_depth: 0\n"), 0o600))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_depth")
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CRAWLER_MAX_DEPTH", "4")

	cfg := Default()
	assert.Equal(t, 4, cfg.Crawler.MaxDepth)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, Seconds(1.5))
	assert.Equal(t, "localhost:6379", RedisConfig{Host: "localhost", Port: 6379}.Addr())
	assert.Contains(t, DatabaseConfig{Host: "db", Port: 5432, Name: "grocery"}.DSN(), "dbname=grocery")
}
