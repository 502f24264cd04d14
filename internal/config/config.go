package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Configuration errors.
var (
	ErrMissingValue = errors.New("required environment variable is not set")
	ErrInvalidValue = errors.New("invalid configuration value")
)

// Supported tracking store backends.
const (
	StoreBackendMemory    = "memory"
	StoreBackendFirestore = "firestore"
	StoreBackendSQL       = "sql"
)

// Supported database/sql drivers for the SQL backend.
const (
	DatabaseDriverSQLite   = "sqlite3"
	DatabaseDriverPostgres = "pgx"
)

// EmojiConfig holds the Slack reaction used for each pull request event.
type EmojiConfig struct {
	Merged           string
	Closed           string
	Commented        string
	ChangesRequested string
	Approved         string
}

// Config holds all application configuration.
type Config struct {
	// Core settings
	SlackBotToken       string
	SlackSigningSecret  string
	SlackAPIURL         string
	GitHubWebhookSecret string
	GitHubHost          string
	APIAdminKey         string

	// Server settings
	Host                  string
	Port                  string
	GinMode               string
	LogLevel              string
	ServerReadTimeout     time.Duration
	ServerWriteTimeout    time.Duration
	ServerShutdownTimeout time.Duration

	// Processing settings
	SlackTimestampMaxAge   time.Duration
	ReactionTimeout        time.Duration
	TrackDuplicateMentions bool

	// Storage settings
	StoreBackend         string
	FirestoreProjectID   string
	FirestoreDatabaseID  string
	DatabaseDriver       string
	DatabaseURL          string
	DatabaseMaxOpenConns int

	// Emoji settings
	Emoji EmojiConfig
}

// Load reads configuration from environment variables, after loading an optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		// Core settings (required)
		SlackBotToken:       getEnvRequired("SLACK_BOT_TOKEN"),
		SlackSigningSecret:  getEnvRequired("SLACK_SIGNING_SECRET"),
		GitHubWebhookSecret: getEnvRequired("GITHUB_WEBHOOK_SECRET"),
		SlackAPIURL:         getEnvDefault("SLACK_API_URL", ""),
		GitHubHost:          getEnvDefault("URL_HOST", "github.com"),
		APIAdminKey:         getEnvDefault("API_ADMIN_KEY", ""),

		// Server settings
		Host:     getEnvDefault("HOST", ""),
		Port:     getEnvDefault("PORT", "8080"),
		GinMode:  getEnvDefault("GIN_MODE", "debug"),
		LogLevel: getEnvDefault("LOG_LEVEL", "info"),

		// Storage settings
		StoreBackend:        getEnvDefault("STORE_BACKEND", StoreBackendMemory),
		FirestoreProjectID:  getEnvDefault("FIRESTORE_PROJECT_ID", ""),
		FirestoreDatabaseID: getEnvDefault("FIRESTORE_DATABASE_ID", "(default)"),
		DatabaseDriver:      getEnvDefault("DATABASE_DRIVER", DatabaseDriverSQLite),
		DatabaseURL:         getEnvDefault("DATABASE_URL", ""),
	}

	var err error
	if cfg.TrackDuplicateMentions, err = getEnvBool("TRACK_DUPLICATE_MENTIONS", true); err != nil {
		return nil, err
	}
	if cfg.DatabaseMaxOpenConns, err = getEnvInt("DATABASE_MAX_OPEN_CONNS", 10); err != nil {
		return nil, err
	}

	durations := []struct {
		target       *time.Duration
		key          string
		defaultValue time.Duration
	}{
		{&cfg.ServerReadTimeout, "SERVER_READ_TIMEOUT", 30 * time.Second},
		{&cfg.ServerWriteTimeout, "SERVER_WRITE_TIMEOUT", 30 * time.Second},
		{&cfg.ServerShutdownTimeout, "SERVER_SHUTDOWN_TIMEOUT", 30 * time.Second},
		{&cfg.SlackTimestampMaxAge, "SLACK_TIMESTAMP_MAX_AGE", 300 * time.Second},
		{&cfg.ReactionTimeout, "REACTION_TIMEOUT", 5 * time.Second},
	}
	for _, d := range durations {
		if *d.target, err = getEnvDuration(d.key, d.defaultValue); err != nil {
			return nil, err
		}
	}

	cfg.Emoji = EmojiConfig{
		Merged:           getEnvDefault("EMOJI_MERGED", "shipit"),
		Closed:           getEnvDefault("EMOJI_CLOSED", "wastebasket"),
		Commented:        getEnvDefault("EMOJI_COMMENTED", "scroll"),
		ChangesRequested: getEnvDefault("EMOJI_CHANGES_REQUESTED", "warning"),
		Approved:         getEnvDefault("EMOJI_APPROVED", "white_check_mark"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// validate checks that all required configuration is present and valid.
func (c *Config) validate() error {
	required := map[string]string{
		"SLACK_BOT_TOKEN":       c.SlackBotToken,
		"SLACK_SIGNING_SECRET":  c.SlackSigningSecret,
		"GITHUB_WEBHOOK_SECRET": c.GitHubWebhookSecret,
	}

	switch c.StoreBackend {
	case StoreBackendMemory:
	case StoreBackendFirestore:
		required["FIRESTORE_PROJECT_ID"] = c.FirestoreProjectID
	case StoreBackendSQL:
		required["DATABASE_URL"] = c.DatabaseURL
		if c.DatabaseDriver != DatabaseDriverSQLite && c.DatabaseDriver != DatabaseDriverPostgres {
			return fmt.Errorf("%w: DATABASE_DRIVER %q (must be %s or %s)",
				ErrInvalidValue, c.DatabaseDriver, DatabaseDriverSQLite, DatabaseDriverPostgres)
		}
	default:
		return fmt.Errorf("%w: STORE_BACKEND %q (must be memory, firestore, or sql)", ErrInvalidValue, c.StoreBackend)
	}

	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%w: %s", ErrMissingValue, name)
		}
	}

	// Validate GIN_MODE
	if c.GinMode != "debug" && c.GinMode != "release" && c.GinMode != "test" {
		return fmt.Errorf("%w: GIN_MODE %q (must be debug, release, or test)", ErrInvalidValue, c.GinMode)
	}

	// Validate log level
	if c.LogLevel != "debug" && c.LogLevel != "info" && c.LogLevel != "warn" && c.LogLevel != "error" {
		return fmt.Errorf("%w: LOG_LEVEL %q (must be debug, info, warn, or error)", ErrInvalidValue, c.LogLevel)
	}

	positive := map[string]time.Duration{
		"SERVER_READ_TIMEOUT":     c.ServerReadTimeout,
		"SERVER_WRITE_TIMEOUT":    c.ServerWriteTimeout,
		"SERVER_SHUTDOWN_TIMEOUT": c.ServerShutdownTimeout,
		"SLACK_TIMESTAMP_MAX_AGE": c.SlackTimestampMaxAge,
		"REACTION_TIMEOUT":        c.ReactionTimeout,
	}
	for name, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidValue, name)
		}
	}
	if c.DatabaseMaxOpenConns <= 0 {
		return fmt.Errorf("%w: DATABASE_MAX_OPEN_CONNS must be positive", ErrInvalidValue)
	}

	return nil
}

// getEnvRequired gets an environment variable or returns empty string if not set.
// validate reports required values that are missing.
func getEnvRequired(key string) string {
	return os.Getenv(key)
}

// getEnvDefault gets an environment variable with a default value.
func getEnvDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%w: boolean value for %s: %s", ErrInvalidValue, key, value)
	}
	return b, nil
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%w: integer value for %s: %s", ErrInvalidValue, key, value)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: duration value for %s: %s", ErrInvalidValue, key, value)
	}
	return d, nil
}
