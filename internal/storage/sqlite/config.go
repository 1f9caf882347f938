package sqlite

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

type Config struct {
	DatabasePath string
	// BusyTimeoutMS is how long a writer waits for the database lock.
	BusyTimeoutMS int
}

func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database path is required")
	}
	if c.BusyTimeoutMS <= 0 {
		c.BusyTimeoutMS = 5000
	}

	dir := filepath.Dir(c.DatabasePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return nil
}

func (c *Config) GetType() string {
	return "sqlite"
}

// GetConnectionString returns a go-sqlite3 DSN with foreign keys enforced.
func (c *Config) GetConnectionString() string {
	params := url.Values{}
	params.Set("_busy_timeout", fmt.Sprintf("%d", c.BusyTimeoutMS))
	params.Set("_foreign_keys", "on")
	return "file:" + c.DatabasePath + "?" + params.Encode()
}
