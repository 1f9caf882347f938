package storage

import (
	"fmt"
	"net"
	"net/url"
	"strconv"

	"contact-sync/internal/common/errors"
	"contact-sync/internal/config"
)

// Settings is the backend-neutral connection description handed to factories.
type Settings struct {
	Type             string
	SQLitePath       string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string
	PostgresSSLMode  string
}

func (s Settings) GetType() string { return s.Type }

// GetConnectionString returns the sqlite path or a postgres:// URL.
func (s Settings) GetConnectionString() string {
	if s.Type != "postgres" {
		return s.SQLitePath
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(s.PostgresUser, s.PostgresPassword),
		Host:     net.JoinHostPort(s.PostgresHost, strconv.Itoa(s.PostgresPort)),
		Path:     "/" + s.PostgresDB,
		RawQuery: url.Values{"sslmode": []string{s.PostgresSSLMode}}.Encode(),
	}
	return u.String()
}

// NewStorage opens the store selected by DATABASE_TYPE.
func NewStorage(cfg *config.Config) (Store, error) {
	settings := Settings{Type: cfg.DatabaseType}

	switch cfg.DatabaseType {
	case "sqlite":
		settings.SQLitePath = cfg.DatabasePath
	case "postgres":
		settings.PostgresHost = cfg.PostgresHost
		settings.PostgresPort = cfg.PostgresPort
		settings.PostgresDB = cfg.PostgresDB
		settings.PostgresUser = cfg.PostgresUser
		settings.PostgresPassword = cfg.PostgresPassword
		settings.PostgresSSLMode = cfg.PostgresSSLMode
	default:
		return nil, errors.ConfigError(fmt.Sprintf("unsupported database type: %s", cfg.DatabaseType))
	}

	return Create(cfg.DatabaseType, settings)
}
