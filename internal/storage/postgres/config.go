package postgres

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"contact-sync/internal/common/errors"
)

// Config describes one PostgreSQL database and the pool opened against it.
type Config struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Validate fills defaults and rejects configs that cannot connect.
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.ConfigError("PostgreSQL host is required")
	}
	if c.Database == "" {
		return errors.ConfigError("PostgreSQL database name is required")
	}
	if c.Username == "" {
		return errors.ConfigError("PostgreSQL username is required")
	}
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.Port < 1 || c.Port > 65535 {
		return errors.ConfigError(fmt.Sprintf("PostgreSQL port %d is out of range", c.Port))
	}
	if c.SSLMode == "" {
		c.SSLMode = "prefer"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	return nil
}

func (c *Config) GetType() string {
	return "postgres"
}

// GetConnectionString returns a postgres:// URL. Credentials are escaped so
// passwords may contain any character.
func (c *Config) GetConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     c.Host + ":" + strconv.Itoa(c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	} else {
		u.User = url.User(c.Username)
	}
	return u.String()
}

// ParseURL reads a postgres:// URL back into a Config.
func ParseURL(raw string) (*Config, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.ConfigError("invalid PostgreSQL URL").WithCause(err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return nil, errors.ConfigError(fmt.Sprintf("unsupported PostgreSQL URL scheme %q", u.Scheme))
	}

	cfg := &Config{
		Host:     u.Hostname(),
		Database: trimSlash(u.Path),
		SSLMode:  u.Query().Get("sslmode"),
	}
	if u.User != nil {
		cfg.Username = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, errors.ConfigError(fmt.Sprintf("invalid PostgreSQL port %q", p))
		}
		cfg.Port = port
	}
	return cfg, cfg.Validate()
}

func trimSlash(path string) string {
	if len(path) > 0 && path[0] == '/' {
		return path[1:]
	}
	return path
}
