// Package internal contains core application functionality
package internal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge"

	"engagely/internal/config"
	"engagely/internal/database"
	"engagely/internal/jobs"
)

// Application wraps cartridge.Application with engagely's services and
// background jobs.
type Application struct {
	*cartridge.Application
	DBManager *database.DBManager // engagely DB manager with migration methods
	Services  *Services
	Scheduler *jobs.Scheduler
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	return NewAppWithRoutes(cfg, nil)
}

// NewAppWithRoutes creates a new application that mounts extra routes after
// engagely's own. extra may be nil.
func NewAppWithRoutes(cfg *config.Config, extra func(*cartridge.Server, *Services)) (*Application, error) {
	logger := cartridge.NewLogger(cfg, nil)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	svc := NewServices(cfg, dbManager, logger)
	scheduler, err := svc.Scheduler()
	if err != nil {
		svc.Close()
		return nil, err
	}

	mount := MountRoutes(svc)
	app, err := cartridge.NewApplication(cartridge.ApplicationOptions{
		Config:    cfg,
		Logger:    logger,
		DBManager: dbManager,
		RouteMountFunc: func(srv *cartridge.Server) {
			mount(srv)
			if extra != nil {
				extra(srv, svc)
			}
		},
		BackgroundWorkers: []cartridge.BackgroundWorker{scheduler},
	})
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("failed to create application: %w", err)
	}

	return &Application{
		Application: app,
		DBManager:   dbManager,
		Services:    svc,
		Scheduler:   scheduler,
	}, nil
}

// Shutdown stops the server and background jobs, then releases the
// geolocation database and cache.
func (a *Application) Shutdown(ctx context.Context) error {
	err := a.Application.Shutdown(ctx)
	if cerr := a.Services.Close(); cerr != nil {
		a.Services.Logger.Warn("Failed to close services", slog.Any("error", cerr))
	}
	return err
}
