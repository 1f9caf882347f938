package app

import (
	"fmt"

	"contact-sync/internal/auth"
	"contact-sync/internal/carddav"
	"contact-sync/internal/circuitbreaker"
	"contact-sync/internal/common/cache"
	"contact-sync/internal/common/logging"
	"contact-sync/internal/common/utils"
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

	// Storage backends register themselves with the storage registry.
	_ "contact-sync/internal/storage/postgres"
	_ "contact-sync/internal/storage/sqlite"
)

func (app *App) initializeStorage() error {
	switch app.Config.DatabaseType {
	case "postgres":
		app.Logger.Info("Database: PostgreSQL",
			logging.Field{Key: "host", Value: app.Config.PostgresHost},
			logging.Field{Key: "port", Value: app.Config.PostgresPort},
			logging.Field{Key: "database", Value: app.Config.PostgresDB},
		)
	default:
		app.Logger.Info("Database: SQLite", logging.Field{Key: "path", Value: app.Config.DatabasePath})
	}

	store, err := storage.NewStorage(app.Config)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.Storage = store
	return nil
}

func (app *App) initializeRedis() error {
	if app.Config.RedisAddress == "" {
		app.Logger.Info("Redis: Not configured (sync locks and token revocations are per process)")
		return nil
	}

	redisClient, err := redis.NewClient(&redis.Config{
		Address:  app.Config.RedisAddress,
		Password: app.Config.RedisPassword,
		DB:       app.Config.RedisDB,
		PoolSize: app.Config.RedisPoolSize,
	})
	if err != nil {
		return err
	}

	app.RedisClient = redisClient
	app.Logger.Info("Redis: Connected", logging.Field{Key: "address", Value: app.Config.RedisAddress})
	app.Logger.Info("Distributed Locks: Enabled")
	return nil
}

func (app *App) initializeAuth() error {
	// Revocations are shared through Redis when available; otherwise a
	// logout only holds on this instance.
	revoked := cache.New(app.RedisClient, "contact-sync:")
	authInstance, err := auth.New(app.Config.JWTSecret, revoked)
	if err != nil {
		return err
	}
	app.Auth = authInstance
	return nil
}

func (app *App) initializeEncryption() error {
	secrets, err := crypto.NewSecretStore(app.Config.EncryptionKey)
	if err != nil {
		return err
	}
	app.Secrets = secrets
	app.Logger.Info("Credential encryption enabled")
	return nil
}

func (app *App) initializeCardDAV() error {
	lockManager, err := locks.NewManager(app.RedisClient)
	if err != nil {
		return err
	}
	app.Locks = lockManager

	photoStore, err := photos.NewFileStore(app.Config.PhotoDir)
	if err != nil {
		return err
	}
	app.Photos = photoStore

	retry := utils.DefaultRetryConfig()
	app.Connector = carddav.NewConnector(app.Secrets, carddav.ConnectorConfig{
		Timeout: app.Config.CardDAVTimeout,
		Policy: carddav.URLPolicy{
			AllowInsecure:     app.Config.CardDAVAllowInsecure,
			AllowPrivateHosts: app.Config.CardDAVAllowPrivateHosts,
		},
		Retry:    retry,
		Breakers: circuitbreaker.NewManager(circuitbreaker.DefaultConfig(), app.Logger),
		Logger:   app.componentLogger("carddav"),
	})

	if !app.Config.IsProduction() {
		app.Logger.Warn("CardDAV URL policy relaxed",
			logging.Field{Key: "allow_insecure", Value: app.Config.CardDAVAllowInsecure},
			logging.Field{Key: "allow_private_hosts", Value: app.Config.CardDAVAllowPrivateHosts},
		)
	}
	return nil
}

func (app *App) initializeEngines() error {
	app.Engine = syncengine.New(app.Storage, app.Connector, app.Locks, app.Photos, syncengine.Config{
		LockTTL: app.Config.SyncLockTTL,
		Logger:  app.componentLogger("sync"),
	})
	app.Resolver = conflicts.NewResolver(app.Storage, app.Engine, conflicts.Config{
		Logger: app.componentLogger("conflicts"),
	})
	app.Merger = merge.NewEngine(app.Storage, app.Connector, merge.Config{
		Logger: app.componentLogger("merge"),
	})
	app.Reminders = reminders.NewService(app.Storage, nil,
		app.componentLogger("reminders"))
	return nil
}

func (app *App) initializeScheduler() error {
	sched, err := scheduler.New(app.Storage, app.Engine, app.Reminders, scheduler.Config{
		SyncSchedule:         app.Config.SyncSweepSchedule,
		ReminderSchedule:     app.Config.ReminderSweepSchedule,
		InterConnectionDelay: app.Config.SyncInterConnectionDelay,
		Logger:               app.componentLogger("scheduler"),
	})
	if err != nil {
		return err
	}
	app.Scheduler = sched
	return nil
}
