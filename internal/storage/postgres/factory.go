// Package postgres registers the PostgreSQL backend of the contact store.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"contact-sync/internal/storage"
	"contact-sync/internal/storage/sqlstore"
)

func init() {
	storage.Register("postgres", &Factory{})
}

type Factory struct{}

func (f *Factory) GetType() string {
	return "postgres"
}

// Create accepts a *Config or any StorageConfig whose connection string is a
// postgres:// URL.
func (f *Factory) Create(config storage.StorageConfig) (storage.Store, error) {
	cfg, ok := config.(*Config)
	if !ok {
		parsed, err := ParseURL(config.GetConnectionString())
		if err != nil {
			return nil, err
		}
		cfg = parsed
	}
	return Open(cfg)
}

// Open connects through pgx's database/sql driver and applies migrations.
func Open(cfg *Config) (*sqlstore.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	connConfig, err := pgx.ParseConfig(cfg.GetConnectionString())
	if err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL connection string: %w", err)
	}

	db := stdlib.OpenDB(*connConfig)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store, err := sqlstore.New(ctx, db, sqlstore.Postgres)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}
