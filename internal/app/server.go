package app

import (
	"github.com/gorilla/mux"

	"contact-sync/internal/common/logging"
	"contact-sync/internal/handlers"
	"contact-sync/internal/ratelimit"
	"contact-sync/internal/server"
)

// Router builds the HTTP handler tree.
func (app *App) Router() *mux.Router {
	h := handlers.New(handlers.Deps{
		Store:     app.Storage,
		Sync:      app.Engine,
		Conflicts: app.Resolver,
		Merge:     app.Merger,
		Secrets:   app.Secrets,
		Clients:   app.Connector,
		Policy:    app.Connector.Policy(),
		Auth:      app.Auth,
		Logger:    app.componentLogger("api"),
	})

	var limiter *ratelimit.Limiter
	if app.Config.RateLimitEnabled {
		cfg := ratelimit.DefaultConfig()
		cfg.RequestsPerSecond = app.Config.RateLimitRPS
		cfg.BurstSize = app.Config.RateLimitBurst
		limiter = ratelimit.New(cfg)
		app.Logger.Info("Rate Limiting: Enabled",
			logging.Field{Key: "rps", Value: cfg.RequestsPerSecond},
			logging.Field{Key: "burst", Value: cfg.BurstSize},
		)
	}

	router := mux.NewRouter()
	SetupRoutes(router, h, app.Auth.RequireAuth, limiter,
		app.componentLogger("http"))
	return router
}

// RunServer creates the HTTP server and starts the scheduler.
func (app *App) RunServer() *server.Server {
	srv := server.New(app.Router(), app.Config.Port, app.Config.TLSCert, app.Config.TLSKey)
	app.Scheduler.Start()
	return srv
}
