// Package config loads the contact sync service configuration from
// environment variables with defaults, and validates it before startup.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 8080)
//   - LOG_LEVEL: Logging level (default: info)
//   - LOG_FORMAT: "console" or "json" (default: console)
//   - LOG_FILE: Log file path; empty logs to stdout
//   - TLS_CERT_FILE, TLS_KEY_FILE: serve HTTPS when both are set
//   - RATE_LIMIT_ENABLED: per-user API rate limiting (default: true)
//   - RATE_LIMIT_RPS: sustained requests per second per user (default: 5)
//   - RATE_LIMIT_BURST: burst size per user (default: 20)
//
// Database Configuration:
//   - DATABASE_TYPE: "sqlite" or "postgres" (default: sqlite)
//   - DATABASE_PATH: SQLite database file path (default: ./data/contacts.db)
//   - POSTGRES_HOST, POSTGRES_PORT, POSTGRES_DB, POSTGRES_USER, POSTGRES_PASSWORD
//   - POSTGRES_SSL_MODE: PostgreSQL SSL mode (default: disable)
//
// Redis Configuration:
//   - REDIS_ADDRESS: Redis address; empty keeps sync locks in process
//   - REDIS_PASSWORD, REDIS_DB (0-15), REDIS_POOL_SIZE (default: 10)
//
// Security Configuration:
//   - JWT_SECRET: bearer token signing secret (required, minimum 32 characters)
//   - CONFIG_ENCRYPTION_KEY: key for CardDAV credentials at rest (required, minimum 32 characters)
//
// CardDAV and Sync:
//   - CARDDAV_TIMEOUT: per-request timeout (default: 30s)
//   - CARDDAV_ALLOW_PRIVATE_HOSTS: allow loopback/private server addresses (default: false)
//   - CARDDAV_ALLOW_INSECURE: allow http:// server URLs (default: false)
//   - SYNC_SWEEP_SCHEDULE: cron spec of the auto-sync sweep (default: @every 1m)
//   - SYNC_INTER_CONNECTION_DELAY: pause between connections in a sweep (default: 2s)
//   - SYNC_LOCK_TTL: lifetime of the per-connection sync lock (default: 10m)
//   - REMINDER_SWEEP_SCHEDULE: cron spec of the reminder sweep (default: @hourly)
//   - PHOTO_DIR: directory for contact photos (default: ./data/photos)
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

// Config holds all configuration values. Load fills it from the
// environment; Validate must pass before use.
type Config struct {
	// Application settings
	Port     string
	LogLevel  string
	LogFormat string
	LogFile   string
	TLSCert   string
	TLSKey    string

	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int

	// Database configuration
	DatabaseType     string // "sqlite" or "postgres"
	DatabasePath     string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string

	// Redis configuration for the distributed sync lock
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	JWTSecret     string
	EncryptionKey string

	// CardDAV transport
	CardDAVTimeout           time.Duration
	CardDAVAllowPrivateHosts bool
	CardDAVAllowInsecure     bool

	// Background work
	SyncSweepSchedule        string
	SyncInterConnectionDelay time.Duration
	SyncLockTTL              time.Duration
	ReminderSweepSchedule    string

	PhotoDir string
}

// Load creates a Config from environment variables, falling back to
// defaults for anything unset. Unparseable numbers and durations keep the
// default so Validate reports only real range errors.
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
		LogFile:   getEnv("LOG_FILE", ""),
		TLSCert:   getEnv("TLS_CERT_FILE", ""),
		TLSKey:    getEnv("TLS_KEY_FILE", ""),

		RateLimitEnabled: getBoolEnv("RATE_LIMIT_ENABLED", true),
		RateLimitRPS:     getFloatEnv("RATE_LIMIT_RPS", 5),
		RateLimitBurst:   getIntEnv("RATE_LIMIT_BURST", 20),

		DatabaseType:     getEnv("DATABASE_TYPE", "sqlite"),
		DatabasePath:     getEnv("DATABASE_PATH", "./data/contacts.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getIntEnv("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "contacts"),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		PostgresSSLMode:  getEnv("POSTGRES_SSL_MODE", "disable"),

		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		RedisPoolSize: getIntEnv("REDIS_POOL_SIZE", 10),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		EncryptionKey: getEnv("CONFIG_ENCRYPTION_KEY", ""),

		CardDAVTimeout:           getDurationEnv("CARDDAV_TIMEOUT", 30*time.Second),
		CardDAVAllowPrivateHosts: getBoolEnv("CARDDAV_ALLOW_PRIVATE_HOSTS", false),
		CardDAVAllowInsecure:     getBoolEnv("CARDDAV_ALLOW_INSECURE", false),

		SyncSweepSchedule:        getEnv("SYNC_SWEEP_SCHEDULE", "@every 1m"),
		SyncInterConnectionDelay: getDurationEnv("SYNC_INTER_CONNECTION_DELAY", 2*time.Second),
		SyncLockTTL:              getDurationEnv("SYNC_LOCK_TTL", 10*time.Minute),
		ReminderSweepSchedule:    getEnv("REMINDER_SWEEP_SCHEDULE", "@hourly"),

		PhotoDir: getEnv("PHOTO_DIR", "./data/photos"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getBoolEnv accepts anything strconv.ParseBool does.
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// Validate checks required fields, ranges and cross-field dependencies.
func (c *Config) Validate() error {
	switch c.LogFormat {
	case "", "console", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.LogFormat)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters long for security")
	}

	if c.EncryptionKey == "" {
		return fmt.Errorf("CONFIG_ENCRYPTION_KEY environment variable is required")
	}
	if len(c.EncryptionKey) < 32 {
		return fmt.Errorf("CONFIG_ENCRYPTION_KEY must be at least 32 characters long")
	}

	if port, err := strconv.Atoi(c.Port); err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a valid port number between 1 and 65535")
	}

	switch c.DatabaseType {
	case "sqlite":
		if c.DatabasePath == "" {
			return fmt.Errorf("DATABASE_PATH is required when using SQLite")
		}
	case "postgres":
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required when using PostgreSQL")
		}
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required when using PostgreSQL")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required when using PostgreSQL")
		}
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("POSTGRES_PORT must be a valid port number")
		}
	default:
		return fmt.Errorf("DATABASE_TYPE must be 'sqlite' or 'postgres'")
	}

	if c.RedisAddress != "" {
		if c.RedisDB < 0 || c.RedisDB > 15 {
			return fmt.Errorf("REDIS_DB must be a number between 0 and 15")
		}
		if c.RedisPoolSize < 1 {
			return fmt.Errorf("REDIS_POOL_SIZE must be a positive number")
		}
	}

	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}

	if c.RateLimitEnabled && (c.RateLimitRPS <= 0 || c.RateLimitBurst < 1) {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive when rate limiting is enabled")
	}

	if c.CardDAVTimeout <= 0 {
		return fmt.Errorf("CARDDAV_TIMEOUT must be a positive duration")
	}
	if c.SyncInterConnectionDelay < 0 {
		return fmt.Errorf("SYNC_INTER_CONNECTION_DELAY must not be negative")
	}
	if c.SyncLockTTL <= 0 {
		return fmt.Errorf("SYNC_LOCK_TTL must be a positive duration")
	}

	if _, err := cron.ParseStandard(c.SyncSweepSchedule); err != nil {
		return fmt.Errorf("SYNC_SWEEP_SCHEDULE is not a valid cron expression: %w", err)
	}
	if _, err := cron.ParseStandard(c.ReminderSweepSchedule); err != nil {
		return fmt.Errorf("REMINDER_SWEEP_SCHEDULE is not a valid cron expression: %w", err)
	}

	if c.PhotoDir == "" {
		return fmt.Errorf("PHOTO_DIR must not be empty")
	}

	return nil
}

// IsProduction reports whether the service refuses insecure CardDAV targets.
func (c *Config) IsProduction() bool {
	return !c.CardDAVAllowInsecure && !c.CardDAVAllowPrivateHosts
}
