package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"sitestats/internal/domain"
)

// Storage drivers
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Settings sources
const (
	SettingsSourceEnv   = "env"
	SettingsSourceFile  = "file"
	SettingsSourceRedis = "redis"
)

// Config holds all configuration values for the application
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
	Environment    string

	StorageDriver string
	DataDir       string
	RedisURL      string
	DatabaseURL   string
	SQLitePath    string
	LockTimeout   time.Duration

	SettingsSource string
	SettingsFile   string
	JWTSecret      string
	Timezone       string

	PresenceCleanupInterval time.Duration
	RateLimitRPS            float64
	RateLimitBurst          int

	// Stats holds the base stats settings; settings sources override them at runtime
	Stats domain.Settings
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	defaults := domain.DefaultSettings()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: parseOrigins(getEnv("ALLOWED_ORIGINS", "")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		Environment:    getEnv("ENVIRONMENT", "production"),

		StorageDriver: strings.ToLower(getEnv("STORAGE_DRIVER", DriverFile)),
		DataDir:       getEnv("DATA_DIR", "./data"),
		RedisURL:      getEnv("REDIS_URL", ""),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "./data/sitestats.db"),
		LockTimeout:   getDurationEnv("LOCK_TIMEOUT", 5*time.Second),

		SettingsSource: strings.ToLower(getEnv("SETTINGS_SOURCE", SettingsSourceEnv)),
		SettingsFile:   getEnv("SETTINGS_FILE", "./data/settings.toml"),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		Timezone:       getEnv("STATS_TIMEZONE", ""),

		PresenceCleanupInterval: getDurationEnv("PRESENCE_CLEANUP_INTERVAL", 30*time.Second),
		RateLimitRPS:            getFloatEnv("RATE_LIMIT_RPS", 5),
		RateLimitBurst:          getIntEnv("RATE_LIMIT_BURST", 20),

		Stats: domain.Settings{
			AntiSpamInterval:  getIntEnv("STATS_ANTI_SPAM_INTERVAL", defaults.AntiSpamInterval),
			SessionInterval:   getIntEnv("STATS_SESSION_INTERVAL", defaults.SessionInterval),
			OnlineUserTimeout: getIntEnv("STATS_ONLINE_USER_TIMEOUT", defaults.OnlineUserTimeout),
			UpdateIntervalMs:  getIntEnv("STATS_UPDATE_INTERVAL_MS", defaults.UpdateIntervalMs),
			AnimationSpeed:    getEnv("STATS_ANIMATION_SPEED", defaults.AnimationSpeed),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the combinations Load cannot default its way out of
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverMemory, DriverFile, DriverSQLite:
	case DriverRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis storage driver")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres storage driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}

	switch c.SettingsSource {
	case SettingsSourceEnv, SettingsSourceFile:
	case SettingsSourceRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis settings source")
		}
	default:
		return fmt.Errorf("unknown SETTINGS_SOURCE %q", c.SettingsSource)
	}

	if err := c.Stats.Validate(); err != nil {
		return fmt.Errorf("invalid stats settings: %w", err)
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	return nil
}

// Location returns the time zone used to decide calendar days
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid STATS_TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// NeedsRedis reports whether any component must connect to Redis
func (c *Config) NeedsRedis() bool {
	return c.StorageDriver == DriverRedis || c.SettingsSource == SettingsSourceRedis
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

// getFloatEnv gets a float environment variable with a fallback value
func getFloatEnv(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

// getDurationEnv accepts Go durations ("30s") or a bare number of seconds
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	return fallback
}

// parseOrigins parses comma-separated origins into a slice
func parseOrigins(origins string) []string {
	if origins == "" {
		return []string{}
	}

	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
