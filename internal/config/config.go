// Package config provides centralized configuration loaded from environment
// variables. Shared by cmd/worker and cmd/matchiq.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Alert types accepted by ALERT_TYPE
// --------------------------------------------------------------------------

var alertTypes = map[string]bool{
	"IN_PLAY":   true,
	"PRE_MATCH": true,
	"ODDS":      true,
}

// Upper bound for ALERT_ATTEMPTS. Backoff is capped, but every extra attempt
// still holds a dispatch worker.
const maxAlertAttempts = 10

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// Redis. An empty host selects the in-process cache and queue.
	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int

	// Telegram. An empty token prints alerts to stdout instead.
	TelegramBotToken string
	TelegramChatID   int64

	// Match data
	SportMonksAPIToken     string
	SportMonksRequestsPerM int
	UseMockData            bool
	MockDataFile           string

	// Scanner
	PollInterval time.Duration
	DedupTTL     time.Duration
	FixtureLimit int
	AlertType    string
	DryRun       bool
	SnapshotMode bool

	// Delivery
	AlertAttempts     int
	AlertBackoff      time.Duration
	AlertConcurrency  int
	DeliveryRetention time.Duration

	// Status API
	APIHost          string
	APIPort          int
	Environment      string // development, staging, production
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads configuration from environment variables with sensible defaults.
// Requirements that depend on the command being run are checked by Validate.
func Load() (*Config, error) {
	chatID, err := envInt64("TELEGRAM_CHAT_ID", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseURL:    envOr("DATABASE_URL", ""),
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 1),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 5),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		RedisHost:     envOr("REDIS_HOST", ""),
		RedisPort:     envInt("REDIS_PORT", 6379),
		RedisPassword: envOr("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),

		TelegramBotToken: envOr("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   chatID,

		SportMonksAPIToken:     envOr("SPORTMONKS_API_TOKEN", ""),
		SportMonksRequestsPerM: envInt("SPORTMONKS_REQUESTS_PER_MINUTE", 180),
		UseMockData:            envBool("USE_MOCK_DATA", false),
		MockDataFile:           envOr("MOCK_DATA_FILE", ""),

		PollInterval: time.Duration(envInt("POLL_INTERVAL", 15000)) * time.Millisecond,
		DedupTTL:     time.Duration(envInt("DEDUP_TTL", 7200)) * time.Second,
		FixtureLimit: envInt("FIXTURE_LIMIT", 10),
		AlertType:    strings.ToUpper(envOr("ALERT_TYPE", "IN_PLAY")),
		DryRun:       envBool("DRY_RUN", false),
		SnapshotMode: envBool("SNAPSHOT_MODE", false),

		AlertAttempts:     envInt("ALERT_ATTEMPTS", 3),
		AlertBackoff:      time.Duration(envInt("ALERT_BACKOFF_MS", 2000)) * time.Millisecond,
		AlertConcurrency:  envInt("ALERT_CONCURRENCY", 5),
		DeliveryRetention: time.Duration(envInt("DELIVERY_RETENTION_DAYS", 30)) * 24 * time.Hour,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8080)),
		Environment: envOr("ENVIRONMENT", "development"),
		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		LogLevel:  strings.ToLower(envOr("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(envOr("LOG_FORMAT", "text")),
	}
	return cfg, nil
}

// Validate reports every missing or invalid value for a process that scans
// live matches. needStore is false for commands that never touch Postgres.
func (c *Config) Validate(needStore bool) error {
	var errs []error
	if needStore && c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL must be set"))
	}
	if !c.UseMockData && c.SportMonksAPIToken == "" {
		errs = append(errs, errors.New("SPORTMONKS_API_TOKEN must be set unless USE_MOCK_DATA=true"))
	}
	if c.TelegramBotToken != "" && c.TelegramChatID == 0 {
		errs = append(errs, errors.New("TELEGRAM_CHAT_ID must be set when TELEGRAM_BOT_TOKEN is set"))
	}
	if !alertTypes[c.AlertType] {
		errs = append(errs, fmt.Errorf("ALERT_TYPE %q is not one of IN_PLAY, PRE_MATCH, ODDS", c.AlertType))
	}
	if c.PollInterval < time.Second {
		errs = append(errs, fmt.Errorf("POLL_INTERVAL %s is below 1s", c.PollInterval))
	}
	if c.DedupTTL <= 0 {
		errs = append(errs, errors.New("DEDUP_TTL must be positive"))
	}
	if c.FixtureLimit < 0 {
		errs = append(errs, errors.New("FIXTURE_LIMIT must not be negative"))
	}
	if c.AlertAttempts < 1 || c.AlertAttempts > maxAlertAttempts {
		errs = append(errs, fmt.Errorf("ALERT_ATTEMPTS must be between 1 and %d", maxAlertAttempts))
	}
	if c.AlertConcurrency < 1 {
		errs = append(errs, errors.New("ALERT_CONCURRENCY must be at least 1"))
	}
	return errors.Join(errs...)
}

// RedisAddr returns host:port, or "" when Redis is not configured.
func (c *Config) RedisAddr() string {
	if c.RedisHost == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo is NewLogger writing to w. The CLI logs to stderr so command
// output stays clean.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// LogValue keeps secrets out of the startup log.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("environment", c.Environment),
		slog.Bool("mock_data", c.UseMockData),
		slog.String("sportmonks_token", MaskToken(c.SportMonksAPIToken)),
		slog.String("telegram_token", MaskToken(c.TelegramBotToken)),
		slog.String("redis", c.RedisAddr()),
		slog.String("alert_type", c.AlertType),
		slog.Duration("poll_interval", c.PollInterval),
		slog.Duration("dedup_ttl", c.DedupTTL),
		slog.Int("fixture_limit", c.FixtureLimit),
		slog.Bool("dry_run", c.DryRun),
	)
}

// MaskToken shows only the last four characters of a secret.
func MaskToken(s string) string {
	switch {
	case s == "":
		return "(unset)"
	case len(s) <= 4:
		return "****"
	default:
		return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
	}
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// envInt64 fails instead of falling back: a mistyped chat ID would
// otherwise send alerts nowhere.
func envInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
