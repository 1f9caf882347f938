package app

import (
	"context"

	"contact-sync/internal/auth"
	"contact-sync/internal/carddav"
	"contact-sync/internal/common/logging"
	"contact-sync/internal/config"
	"contact-sync/internal/conflicts"
	"contact-sync/internal/crypto"
	"contact-sync/internal/locks"
	"contact-sync/internal/merge"
	"contact-sync/internal/photos"
	"contact-sync/internal/redis"
	"contact-sync/internal/reminders"
	"contact-sync/internal/scheduler"
	"contact-sync/internal/storage"
	"contact-sync/internal/syncengine"
)

// App holds all the application dependencies
type App struct {
	Config      *config.Config
	Storage     storage.Store
	RedisClient *redis.Client
	Auth        *auth.Auth
	Secrets     *crypto.AESSecretStore
	Locks       locks.Manager
	Photos      *photos.FileStore
	Connector   *carddav.Connector
	Engine      *syncengine.Engine
	Resolver    *conflicts.Resolver
	Merger      *merge.Engine
	Reminders   *reminders.Service
	Scheduler   *scheduler.Scheduler
	Logger      logging.Logger
}

// New creates a new application instance with all dependencies
func New(cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}
	app.Logger = app.componentLogger("app")

	// Initialize components in order of dependency
	if err := app.initializeStorage(); err != nil {
		return nil, err
	}

	if err := app.initializeRedis(); err != nil {
		// Redis is optional, just log the error
		app.Logger.Warn("Redis initialization failed, continuing without Redis",
			logging.Field{Key: "error", Value: err.Error()})
	}

	steps := []func() error{
		app.initializeAuth,
		app.initializeEncryption,
		app.initializeCardDAV,
		app.initializeEngines,
		app.initializeScheduler,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			app.Cleanup()
			return nil, err
		}
	}

	return app, nil
}

// Shutdown stops background work: the scheduler first so no new run
// starts, then pending conflict pushes.
func (app *App) Shutdown(ctx context.Context) error {
	var firstErr error
	if app.Scheduler != nil {
		if err := app.Scheduler.Stop(ctx); err != nil {
			app.Logger.Warn("Scheduler did not stop in time", logging.Field{Key: "error", Value: err})
			firstErr = err
		}
	}

	if app.Resolver != nil {
		done := make(chan struct{})
		go func() {
			app.Resolver.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			app.Logger.Warn("Pending conflict pushes abandoned")
			if firstErr == nil {
				firstErr = ctx.Err()
			}
		}
	}
	return firstErr
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	if app.Storage != nil {
		app.Storage.Close()
	}
	if app.RedisClient != nil {
		app.RedisClient.Close()
	}
}

// componentLogger tags the global logger with a component name.
func (app *App) componentLogger(name string) logging.Logger {
	return logging.WithFields(logging.Field{Key: "component", Value: name})
}
