package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/CES-Eats-2026/cesfront/internal/backend"
	"github.com/CES-Eats-2026/cesfront/internal/geo"
)

// Config holds all application configuration.
type Config struct {
	Port               string
	APIBaseURL         string
	MapsAPIKey         string
	FeedbackWebhookURL string
	BearerToken        string
	CORSOrigins        []string
	RateLimitPerMinute int

	RedisURL    string
	DatabaseURL string

	Origin            geo.Location
	Region            geo.BoundingBox
	TimeOptionMinutes int
	SnapshotWindow    time.Duration
	SessionIdle       time.Duration
	StateRetention    time.Duration
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		Port:               getEnv("PORT", "8080"),
		APIBaseURL:         getEnv("API_BASE_URL", backend.DefaultBaseURL),
		MapsAPIKey:         getEnv("MAPS_API_KEY", ""),
		FeedbackWebhookURL: getEnv("FEEDBACK_WEBHOOK_URL", ""),
		BearerToken:        getEnv("BEARER_TOKEN", ""),
		CORSOrigins:        getEnvAsSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),

		RedisURL:    getEnv("REDIS_URL", ""),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		// Las Vegas Convention Center, the fixed search anchor.
		Origin: geo.Location{
			Latitude:  getEnvAsFloat("ORIGIN_LAT", 36.1215699),
			Longitude: getEnvAsFloat("ORIGIN_LNG", -115.1651093),
		},
		Region: geo.BoundingBox{
			MinLat: getEnvAsFloat("REGION_MIN_LAT", 35.95),
			MaxLat: getEnvAsFloat("REGION_MAX_LAT", 36.35),
			MinLng: getEnvAsFloat("REGION_MIN_LNG", -115.40),
			MaxLng: getEnvAsFloat("REGION_MAX_LNG", -114.95),
		},
		TimeOptionMinutes: getEnvAsInt("DEFAULT_TIME_OPTION", 15),
		SnapshotWindow:    getEnvAsDuration("SNAPSHOT_WINDOW", 10*time.Minute),
		SessionIdle:       getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		StateRetention:    getEnvAsDuration("STATE_RETENTION", 7*24*time.Hour),
	}

	return cfg, validate(cfg)
}

// validate checks if config is valid
func validate(cfg Config) error {
	u, err := url.Parse(cfg.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute URL, got %q", cfg.APIBaseURL)
	}
	if cfg.Origin.Latitude < -90 || cfg.Origin.Latitude > 90 || cfg.Origin.Longitude < -180 || cfg.Origin.Longitude > 180 {
		return fmt.Errorf("origin %v is out of range", cfg.Origin)
	}
	if cfg.SnapshotWindow <= 0 {
		return fmt.Errorf("SNAPSHOT_WINDOW must be positive")
	}
	if cfg.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
