package internal

import (
	"fmt"
	"log/slog"

	"github.com/karloscodes/cartridge"

	"engagely/internal/aggregation"
	"engagely/internal/config"
	"engagely/internal/jobs"
	"engagely/internal/pkg/geoip"
	"engagely/internal/retention"
	"engagely/internal/tracking"
)

// Services are the long-lived components shared by the HTTP routes, the
// background jobs and the CLI.
type Services struct {
	Config     *config.Config
	Logger     *slog.Logger
	DBManager  cartridge.DBManager
	Geo        *geoip.Service
	Tracker    *tracking.Tracker
	Builder    *aggregation.Builder
	Sweeper    *retention.Sweeper
	Resolvers  *retention.Registry
	GeoUpdater *jobs.GeoDBUpdaterJob
}

// NewServices wires every component over dbManager.
func NewServices(cfg *config.Config, dbManager cartridge.DBManager, logger *slog.Logger) *Services {
	geo := geoip.NewFromConfig(cfg, logger)
	return &Services{
		Config:     cfg,
		Logger:     logger,
		DBManager:  dbManager,
		Geo:        geo,
		Tracker:    tracking.NewTracker(cfg, dbManager, geo, logger),
		Builder:    aggregation.NewBuilder(cfg, dbManager, logger),
		Sweeper:    retention.NewSweeper(cfg, dbManager, logger),
		Resolvers:  retention.NewRegistry(),
		GeoUpdater: jobs.NewGeoDBUpdaterJob(cfg, geo, logger),
	}
}

// Scheduler registers the enabled background jobs.
func (s *Services) Scheduler() (*jobs.Scheduler, error) {
	var entries []jobs.Entry
	if s.Config.AggregationEnabled {
		entries = append(entries, jobs.Entry{
			Spec: s.Config.AggregationSchedule,
			Job:  jobs.NewAggregationJob(s.Builder, s.Config, s.Logger),
		})
	}
	entries = append(entries, jobs.Entry{
		Spec: s.Config.CleanupSchedule,
		Job:  jobs.NewCleanupJob(s.Sweeper, s.Logger),
	})
	if s.GeoUpdater.Configured() {
		entries = append(entries, jobs.Entry{
			Spec: s.Config.GeoDBUpdateSchedule,
			Job:  s.GeoUpdater,
		})
	}

	scheduler, err := jobs.NewScheduler(s.Config, s.Logger, entries...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jobs: %w", err)
	}
	return scheduler, nil
}

// Close releases the geolocation database and cache connections.
func (s *Services) Close() error {
	return s.Geo.Close()
}
