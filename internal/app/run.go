package app

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"contact-sync/internal/common/logging"
	"contact-sync/internal/config"
)

const version = "1.0.0"

// Run is the main entry point for the application
func Run() error {
	// Load environment variables
	_ = godotenv.Load()

	var sweepOnce bool
	flag.BoolVar(&sweepOnce, "sweep-once", false, "Run one auto-sync sweep and one reminder sweep, then exit")
	flag.Parse()

	closer, err := logging.InitGlobalLogger()
	if err != nil {
		return err
	}
	defer closer.Close()
	defer logging.MustSync()

	logging.Info("Starting contact sync",
		logging.Field{Key: "cpus", Value: runtime.NumCPU()},
		logging.Field{Key: "version", Value: version},
	)

	// Load and validate configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logging.Error("Configuration validation failed", err)
		return err
	}

	app, err := New(cfg)
	if err != nil {
		logging.Error("Failed to initialize application", err)
		return err
	}
	defer app.Cleanup()

	if sweepOnce {
		return app.sweepOnce(context.Background())
	}

	srv := app.RunServer()
	if err := srv.Start(); err != nil {
		logging.Error("Server failed to start", err)
		return err
	}
	logging.Info("Server listening", logging.Field{Key: "port", Value: cfg.Port}, logging.Field{Key: "tls", Value: cfg.TLSCert != ""})

	// Wait for interrupt signal or a fatal serve error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	var serveErr error
	select {
	case <-quit:
	case serveErr = <-srv.Errors():
		logging.Error("Server stopped unexpectedly", serveErr)
	}

	logging.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop taking requests before background work so no new sync starts.
	if err := srv.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", err)
		return err
	}
	if err := app.Shutdown(ctx); err != nil {
		logging.Warn("Error during app shutdown", logging.Field{Key: "error", Value: err})
	}

	logging.Info("Server exited")
	return serveErr
}

func (app *App) sweepOnce(ctx context.Context) error {
	synced, err := app.Scheduler.SweepConnections(ctx)
	if err != nil {
		return err
	}
	sent, err := app.Reminders.Sweep(ctx)
	if err != nil {
		return err
	}
	app.Resolver.Wait()
	logging.Info("Sweep finished", logging.Field{Key: "synced", Value: synced}, logging.Field{Key: "reminders_sent", Value: sent})
	return nil
}
