package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported state backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Config holds all application configuration.
type Config struct {
	// Credentials
	CredentialsPath string

	// State
	StateDir      string
	StateBackend  string        // sqlite, file or memory (default: sqlite)
	DatabasePath  string        // Defaults to $STATE_DIR/littlebird.db
	DBBusyTimeout time.Duration // Wait for locks held by another process

	// Twitter
	TwitterAPIURL    string
	TwitterRateLimit time.Duration // Minimum spacing between API calls
	NotifyScreenName string        // Recipient of direct messages

	// Timeline source
	TimelineAccount  string
	TimelineCount    int
	TimelinePattern  string
	TimelineInterval time.Duration

	// Weather source
	WeatherAPIURL   string
	WeatherLocation string
	WeatherInterval time.Duration

	// Scheduler settings
	SupervisionInterval time.Duration
	FetchTimeout        time.Duration
	ShutdownTimeout     time.Duration

	// Observability
	MetricsAddr string
	LogLevel    string
}

// Load reads configuration from environment variables.
// It automatically loads .env file if present.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	stateDir := getEnv("STATE_DIR", "data")

	cfg := &Config{
		CredentialsPath:  getEnv("CREDENTIALS_PATH", "tokens.txt"),
		StateDir:         stateDir,
		StateBackend:     getEnv("STATE_BACKEND", BackendSQLite),
		DatabasePath:     getEnv("DATABASE_PATH", ""),
		TwitterAPIURL:    getEnv("TWITTER_API_URL", "https://api.twitter.com/1.1"),
		NotifyScreenName: getEnv("NOTIFY_SCREEN_NAME", ""),
		TimelineAccount:  getEnv("TIMELINE_ACCOUNT", "BBCBreaking"),
		TimelinePattern:  getEnv("TIMELINE_PATTERN", `https?://`),
		WeatherAPIURL:    getEnv("WEATHER_API_URL", "https://wttr.in"),
		WeatherLocation:  getEnv("WEATHER_LOCATION", "Portland,OR"),
		MetricsAddr:      getEnv("METRICS_ADDR", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
	}

	// Parse durations
	durations := []struct {
		key, def string
		dst      *time.Duration
	}{
		{"DB_BUSY_TIMEOUT", "5s", &cfg.DBBusyTimeout},
		{"TWITTER_RATE_LIMIT", "1s", &cfg.TwitterRateLimit},
		{"TIMELINE_INTERVAL", "5m", &cfg.TimelineInterval},
		{"WEATHER_INTERVAL", "1h", &cfg.WeatherInterval},
		{"SUPERVISION_INTERVAL", "60s", &cfg.SupervisionInterval},
		{"FETCH_TIMEOUT", "30s", &cfg.FetchTimeout},
		{"SHUTDOWN_TIMEOUT", "10s", &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = v
	}

	// Parse integers
	count, err := strconv.Atoi(getEnv("TIMELINE_COUNT", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMELINE_COUNT: %w", err)
	}
	cfg.TimelineCount = count

	cfg.ApplyStateDir(stateDir)

	return cfg, nil
}

// ApplyStateDir points the state directory at dir and derives the database
// path from it unless DATABASE_PATH was set explicitly.
func (c *Config) ApplyStateDir(dir string) {
	c.StateDir = dir
	if os.Getenv("DATABASE_PATH") == "" {
		c.DatabasePath = filepath.Join(dir, "littlebird.db")
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("STATE_DIR is required")
	}
	switch c.StateBackend {
	case BackendSQLite:
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required for the sqlite backend")
		}
		if c.DBBusyTimeout < 0 {
			return fmt.Errorf("DB_BUSY_TIMEOUT must not be negative")
		}
	case BackendFile, BackendMemory:
	default:
		return fmt.Errorf("invalid STATE_BACKEND: %s (must be 'sqlite', 'file' or 'memory')", c.StateBackend)
	}
	return nil
}

// ValidateForPolling checks configuration needed to run source cycles.
func (c *Config) ValidateForPolling() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.CredentialsPath == "" {
		return fmt.Errorf("CREDENTIALS_PATH is required")
	}
	if c.TimelineAccount == "" {
		return fmt.Errorf("TIMELINE_ACCOUNT is required")
	}
	if c.TimelineCount <= 0 {
		return fmt.Errorf("TIMELINE_COUNT must be positive")
	}
	if _, err := regexp.Compile(c.TimelinePattern); err != nil {
		return fmt.Errorf("invalid TIMELINE_PATTERN: %w", err)
	}
	if c.WeatherLocation == "" {
		return fmt.Errorf("WEATHER_LOCATION is required")
	}
	// wttr.in echoes the location back; the region after the comma is what
	// lets the response be split into place and precipitation.
	if !strings.Contains(c.WeatherLocation, ",") {
		return fmt.Errorf("WEATHER_LOCATION must include a region, e.g. Portland,OR")
	}
	if c.TimelineInterval <= 0 || c.WeatherInterval <= 0 {
		return fmt.Errorf("source intervals must be positive")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	return nil
}

// ValidateForServe checks all configuration needed for serve mode.
// Dry runs log notifications instead of sending them, so no recipient is needed.
func (c *Config) ValidateForServe(dryRun bool) error {
	if err := c.ValidateForPolling(); err != nil {
		return err
	}
	if c.SupervisionInterval <= 0 {
		return fmt.Errorf("SUPERVISION_INTERVAL must be positive")
	}
	if !dryRun && c.NotifyScreenName == "" {
		return fmt.Errorf("NOTIFY_SCREEN_NAME is required for sending notifications")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
