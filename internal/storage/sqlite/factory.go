// Package sqlite registers the SQLite backend of the contact store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"contact-sync/internal/storage"
	"contact-sync/internal/storage/sqlstore"
)

func init() {
	storage.Register("sqlite", &Factory{})
}

type Factory struct{}

func (f *Factory) GetType() string {
	return "sqlite"
}

// Create accepts a *Config or any StorageConfig whose connection string is
// a database path.
func (f *Factory) Create(config storage.StorageConfig) (storage.Store, error) {
	cfg, ok := config.(*Config)
	if !ok {
		cfg = &Config{DatabasePath: config.GetConnectionString()}
	}
	return Open(cfg)
}

// Open opens the database file, applies migrations and returns the store.
func Open(cfg *Config) (*sqlstore.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQLite config: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers and keeps PRAGMAs consistent.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := sqlstore.New(ctx, db, sqlstore.SQLite)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
