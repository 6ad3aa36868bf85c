package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CES-Eats-2026/cesfront/internal/backend"
	"github.com/CES-Eats-2026/cesfront/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, backend.DefaultBaseURL, cfg.APIBaseURL)
	assert.Equal(t, 36.1215699, cfg.Origin.Latitude)
	assert.Equal(t, -115.1651093, cfg.Origin.Longitude)
	assert.True(t, cfg.Region.Contains(cfg.Origin), "fixed origin must lie inside the GPS region")
	assert.Equal(t, 10*time.Minute, cfg.SnapshotWindow)
	assert.Empty(t, cfg.FeedbackWebhookURL)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("API_BASE_URL", "http://localhost:9000/api")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("SNAPSHOT_WINDOW", "90s")
	t.Setenv("ORIGIN_LAT", "36.0")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "not-a-number")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9000/api", cfg.APIBaseURL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 90*time.Second, cfg.SnapshotWindow)
	assert.Equal(t, 36.0, cfg.Origin.Latitude)
	assert.Equal(t, 120, cfg.RateLimitPerMinute, "unparseable values fall back to the default")
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("relative base url", func(t *testing.T) {
		t.Setenv("API_BASE_URL", "/api")
		_, err := config.Load()
		require.Error(t, err)
	})

	t.Run("origin out of range", func(t *testing.T) {
		t.Setenv("ORIGIN_LAT", "123")
		_, err := config.Load()
		require.Error(t, err)
	})

	t.Run("zero window", func(t *testing.T) {
		t.Setenv("SNAPSHOT_WINDOW", "0s")
		_, err := config.Load()
		require.Error(t, err)
	})
}
