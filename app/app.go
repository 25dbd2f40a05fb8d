// Package app is the public API of engagely for programs that embed it:
// run the HTTP application, or record and read analytics in-process.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge"

	"engagely/internal"
	"engagely/internal/analytics"
	"engagely/internal/config"
	"engagely/internal/database"
	"engagely/internal/models"
	"engagely/internal/tracking"
)

// Re-export core types
type (
	Application    = internal.Application
	Services       = internal.Services
	Config         = config.Config
	DBManager      = database.DBManager
	Trackable      = models.Trackable
	EntityRef      = models.EntityRef
	Actor          = models.Actor
	AnalyticRecord = models.AnalyticRecord
	TrackRequest   = tracking.TrackRequest
	RequestInfo    = tracking.RequestInfo
	RequestScope   = tracking.RequestScope
	Totals         = analytics.Totals
)

var (
	UserActor       = models.UserActor
	VisitorActor    = models.VisitorActor
	NewRequestScope = tracking.NewRequestScope
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	return config.GetConfig()
}

// NewApp creates the HTTP application with default routes
func NewApp() (*Application, error) {
	return internal.NewApp()
}

// NewAppWithRoutes creates the HTTP application and mounts extra routes
// after engagely's own.
func NewAppWithRoutes(cfg *Config, extra func(*cartridge.Server, *Services)) (*Application, error) {
	return internal.NewAppWithRoutes(cfg, extra)
}

// Engine records and reads analytics without the HTTP server.
type Engine struct {
	svc *internal.Services
}

// Open connects to the configured database, migrates it and returns an
// engine over it.
func Open(cfg *Config) (*Engine, error) {
	logger := cartridge.NewLogger(cfg, nil)
	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := dbManager.MigrateDatabase(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return NewEngine(cfg, dbManager, logger), nil
}

// NewEngine returns an engine over an already migrated database.
func NewEngine(cfg *Config, dbManager cartridge.DBManager, logger *slog.Logger) *Engine {
	return &Engine{svc: internal.NewServices(cfg, dbManager, logger)}
}

// Services exposes the underlying components.
func (e *Engine) Services() *Services {
	return e.svc
}

// Track records req in scope. Callers tracking several entities for one
// incoming request share a scope; a nil scope gets a fresh one. It returns
// nil when nothing was recorded and never fails.
func (e *Engine) Track(ctx context.Context, scope *RequestScope, req TrackRequest) *AnalyticRecord {
	if scope == nil {
		scope = tracking.NewRequestScope()
	}
	return e.svc.Tracker.Track(ctx, scope, req)
}

// Like records a like by actor. The other interactions are available
// through Interactions.
func (e *Engine) Like(ctx context.Context, entity Trackable, actor Actor) *AnalyticRecord {
	return e.svc.Tracker.Interactions().TrackLike(ctx, entity, actor)
}

// Interactions returns the recorder for likes, shares, clicks and the other
// counters.
func (e *Engine) Interactions() *tracking.Interactions {
	return e.svc.Tracker.Interactions()
}

// Aggregate rebuilds the base aggregate of entity.
func (e *Engine) Aggregate(ctx context.Context, entity Trackable) (*AnalyticRecord, error) {
	ref := models.RefOf(entity)
	return e.svc.Builder.RebuildBase(ctx, ref.Type, ref.ID)
}

// Totals reads the base aggregate of entity with its derived rates.
func (e *Engine) Totals(ctx context.Context, entity Trackable) (*Totals, error) {
	ref, err := models.ValidateEntity(entity)
	if err != nil {
		return nil, err
	}
	db := e.svc.DBManager.GetConnection().WithContext(ctx)
	return analytics.GetTotals(db, ref, e.svc.Config.EngagementWeights)
}

// RegisterEntityTable tells orphan cleanup that entities of entityType exist
// while their id is present in column of table.
func (e *Engine) RegisterEntityTable(entityType, table, column string) {
	e.svc.Resolvers.RegisterTable(entityType, e.svc.DBManager, table, column)
}

// Close releases the geolocation database and cache.
func (e *Engine) Close() error {
	return e.svc.Close()
}
