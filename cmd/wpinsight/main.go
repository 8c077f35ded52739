// main.go - background daemon: migrations, retention and GeoIP reloads
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wpinsight/internal"
	"wpinsight/internal/config"
	"wpinsight/internal/logging"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

func main() {
	cfg := config.GetConfig()

	app, err := internal.NewApp(cfg, logging.Options{})
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}
	logger := app.Logger

	logger.Info("Running database migrations...")
	if err := app.Migrate(); err != nil {
		logger.Error("Failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.IsProduction() && cfg.SiteHostname == "" {
		logger.Warn("WPINSIGHT_SITE_HOSTNAME is not set, self-referrals will count as referral traffic")
	}

	if err := app.Start(); err != nil {
		logger.Error("Failed to start background jobs", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("wpinsight started",
		slog.String("environment", cfg.Environment),
		slog.String("database", cfg.GetDatabasePath()),
		slog.Bool("geoip", app.Geo.Available()))

	waitForShutdownSignal(app)
}

// waitForShutdownSignal blocks until a termination signal and shuts down.
// SIGHUP reloads the GeoIP database instead.
func waitForShutdownSignal(app *internal.Application) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			app.Logger.Info("Received SIGHUP, reloading GeoIP database")
			app.Geo.Reload()
			continue
		}

		app.Logger.Info("Received signal, initiating graceful shutdown", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		err := app.Shutdown(ctx)
		cancel()
		if err != nil {
			app.Logger.Error("Error during shutdown", slog.Any("error", err))
			os.Exit(1)
		}
		app.Logger.Info("Shutdown complete")
		return
	}
}
