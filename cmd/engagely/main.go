// main.go - engagely HTTP server: track, read and admin APIs plus the
// background jobs.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"engagely/internal"
)

const shutdownTimeout = 30 * time.Second

func main() {
	app, err := internal.NewApp()
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}
	logger := app.Services.Logger

	if err := app.DBManager.MigrateDatabase(); err != nil {
		logger.Error("Migrations failed", slog.Any("error", err))
		os.Exit(1)
	}

	if err := app.StartAsync(); err != nil {
		logger.Error("Failed to start application", slog.Any("error", err))
		os.Exit(1)
	}
	cfg := app.Services.Config
	logger.Info("engagely started",
		slog.String("port", cfg.GetPort()),
		slog.String("environment", cfg.Environment),
		slog.Bool("tracking", cfg.TrackingEnabled),
		slog.Bool("aggregation_jobs", cfg.AggregationEnabled),
		slog.Bool("admin_api", cfg.AdminToken != ""))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	<-ctx.Done()
	stop()

	logger.Info("Shutting down", slog.Duration("timeout", shutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Server shutdown complete")
}
