package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "engagely/api/v1"
	"engagely/internal/config"
	"engagely/internal/http"
	"engagely/internal/http/middleware"
)

// publicCORSConfig returns the standard CORS configuration for public endpoints.
// All public endpoints share this permissive CORS setup for cross-origin access.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Authorization, Referrer, User-Agent",
}

// MountAppRoutes mounts all routes over services built from the server's
// database manager and logger.
func MountAppRoutes(srv *cartridge.Server) {
	svc := NewServices(config.GetConfig(), srv.GetDBManager(), srv.GetLogger())
	MountRoutes(svc)(srv)
}

// MountRoutes returns a route mount function bound to svc.
func MountRoutes(svc *Services) func(*cartridge.Server) {
	return func(srv *cartridge.Server) {
		mountRoutes(srv, svc)
	}
}

func mountRoutes(srv *cartridge.Server, svc *Services) {
	cfg := svc.Config
	logger := srv.GetLogger()

	srv.App().Use(middleware.RequestMetrics())

	// Rate limiting would interfere with tests and local development
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if cfg.IsProduction() {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// Pages usually emit one view per entity shown, so allow bursts
	trackRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(120),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// Admin endpoints are token protected; the limiter slows token guessing
	adminRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(30),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	// ============================================
	// ROUTE CONFIGURATIONS
	// ============================================

	// Track endpoint: browsers through the SDK and backends posting
	// server-to-server, so Sec-Fetch-Site cannot be required
	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:         true,
		WriteConcurrency:   false,
		CustomMiddleware:   []fiber.Handler{trackRateLimiter},
		CORSConfig:         publicCORSConfig,
		EnableSecFetchSite: cartridge.Bool(false),
	}

	sdkConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CustomMiddleware: []fiber.Handler{trackRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	// Read and admin APIs share the admin token
	adminAPIConfig := &cartridge.RouteConfig{
		EnableSecFetchSite: cartridge.Bool(false),
		CustomMiddleware: []fiber.Handler{
			adminRateLimiter,
			middleware.AdminTokenAuth(cfg.AdminToken, logger),
		},
	}

	noContent := func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}

	// === ROOT ROUTES ===
	health := http.HealthHandler(svc.GeoUpdater)
	srv.Get("/_health", health)
	srv.Head("/_health", health)
	srv.Get("/metrics", http.MetricsAction, adminAPIConfig)

	// === PUBLIC API ROUTES ===
	srv.Post("/x/api/v1/track", v1.TrackHandler(svc.Tracker), publicAPIConfig)
	srv.Options("/x/api/v1/track", noContent, publicAPIConfig)
	srv.Get("/x/api/v1/me", v1.VisitorInfoHandler(svc.Geo), publicAPIConfig)
	srv.Options("/x/api/v1/me", noContent, publicAPIConfig)

	// === SDK ROUTES ===
	srv.Get("/y/api/v1/sdk.js", v1.GetSDKAction, sdkConfig)

	// === READ API ROUTES ===
	srv.Get("/api/v1/analytics/:type/trending", http.AnalyticsTrendingAction, adminAPIConfig)
	srv.Get("/api/v1/analytics/:type/movers", http.AnalyticsMoversAction, adminAPIConfig)
	srv.Get("/api/v1/analytics/:type/:id", http.AnalyticsOverviewAction, adminAPIConfig)
	srv.Get("/api/v1/analytics/:type/:id/totals", http.AnalyticsTotalsAction, adminAPIConfig)
	srv.Get("/api/v1/analytics/:type/:id/browsers", http.AnalyticsBrowsersAction, adminAPIConfig)
	srv.Get("/api/v1/analytics/:type/:id/os", http.AnalyticsOSAction, adminAPIConfig)
	srv.Get("/api/v1/analytics/:type/:id/devices", http.AnalyticsDevicesAction, adminAPIConfig)
	srv.Get("/api/v1/analytics/:type/:id/bots", http.AnalyticsBotsAction, adminAPIConfig)
	srv.Get("/api/v1/analytics/:type/:id/referrers", http.AnalyticsReferrersAction, adminAPIConfig)
	srv.Get("/api/v1/analytics/:type/:id/geo", http.AnalyticsGeoAction, adminAPIConfig)
	srv.Get("/api/v1/analytics/:type/:id/periods", http.AnalyticsPeriodsAction, adminAPIConfig)
	srv.Get("/api/v1/analytics/:type/:id/viewers", http.AnalyticsViewersAction, adminAPIConfig)
	srv.Get("/api/v1/analytics/:type/:id/times", http.AnalyticsTimesAction, adminAPIConfig)

	// === ADMIN API ROUTES ===
	admin := &http.AdminHandlers{
		Builder:  svc.Builder,
		Sweeper:  svc.Sweeper,
		Resolver: svc.Resolvers,
	}
	srv.Get("/admin/api/status", admin.StatusAction, adminAPIConfig)
	srv.Post("/admin/api/aggregate", admin.AggregateAction, adminAPIConfig)
	srv.Post("/admin/api/backfill", admin.BackfillAction, adminAPIConfig)
	srv.Post("/admin/api/cleanup", admin.CleanupAction, adminAPIConfig)
	srv.Post("/admin/api/cleanup/orphans", admin.CleanupOrphansAction, adminAPIConfig)
}
