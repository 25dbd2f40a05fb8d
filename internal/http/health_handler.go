package http

import (
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
)

// GeoDatabase reports the state of the local geolocation database.
type GeoDatabase interface {
	Configured() bool
	LastUpdate() time.Time
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status      string     `json:"status"`
	Timestamp   time.Time  `json:"timestamp"`
	DBStatus    string     `json:"db_status"`
	GeoDBStatus string     `json:"geo_db_status"`
	GeoDBAge    *time.Time `json:"geo_db_updated_at,omitempty"`
}

// HealthHandler reports database connectivity and the geolocation database
// age. Only the database affects the overall status.
func HealthHandler(geo GeoDatabase) func(ctx *cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		dbStatus := "ok"

		db := ctx.DBManager.GetConnection()
		if db == nil {
			dbStatus = "error"
			ctx.Logger.Error("Database connection unavailable")
		} else {
			sqlDB, err := db.DB()
			if err != nil {
				dbStatus = "error"
				ctx.Logger.Error("Database connection error", slog.Any("error", err))
			} else if err := sqlDB.PingContext(ctx.UserContext()); err != nil {
				dbStatus = "error"
				ctx.Logger.Error("Database ping failed", slog.Any("error", err))
			}
		}

		health := HealthStatus{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			DBStatus:    dbStatus,
			GeoDBStatus: "missing",
		}
		if geo != nil {
			if updated := geo.LastUpdate(); !updated.IsZero() {
				health.GeoDBStatus = "ok"
				health.GeoDBAge = &updated
			} else if !geo.Configured() {
				health.GeoDBStatus = "unmanaged"
			}
		}

		if dbStatus != "ok" {
			health.Status = "degraded"
		}

		return ctx.JSON(health)
	}
}
