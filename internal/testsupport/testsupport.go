package testsupport

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"engagely/internal"
	"engagely/internal/config"
	"engagely/internal/models"
	"engagely/internal/pkg/geoip"
)

// AdminToken is the admin API token configured by LoadTestConfig.
const AdminToken = "test-admin-token"

// testDBCache caches test databases by root test name so that setup helpers
// called from subtests share one database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

var _ cartridge.DBManager = (*TestDBManager)(nil)

// LoadTestConfig reloads the configuration singleton in the test
// environment with network geolocation disabled. The singleton is reset again
// when the test ends, so tests may mutate the returned value.
func LoadTestConfig(t *testing.T) *config.Config {
	t.Helper()

	t.Setenv("ENGAGELY_ENV", config.Test)
	t.Setenv("ENGAGELY_GEOLOCATION_ENABLED", "false")
	t.Setenv("ENGAGELY_ADMIN_TOKEN", AdminToken)
	t.Setenv("ENGAGELY_LOGS_DIR", "")

	config.Reset()
	t.Cleanup(config.Reset)
	return config.GetConfig()
}

// SetupTestDB creates a test database with every model migrated.
// Uses a named in-memory database with cache=shared so that multiple
// connections share the same database within a test.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	rootName := t.Name()
	if idx := strings.Index(rootName, "/"); idx > 0 {
		rootName = rootName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", rootName, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	// One connection keeps the pragma and the shared cache consistent
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	db.Exec("PRAGMA foreign_keys = ON")

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager loads the test configuration and returns a DB manager
// over a fresh database.
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	t.Helper()

	cfg := LoadTestConfig(t)
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set ENGAGELY_ENV=test", cfg.Environment)
	}

	return NewTestDBManager(SetupTestDB(t)), GetLogger()
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)
	if len(tableNames) == 0 {
		return
	}

	db.Exec("PRAGMA foreign_keys = OFF")
	defer db.Exec("PRAGMA foreign_keys = ON")

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tableNames {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// FixedClock pins "now" for components that take a timeframe.TimeProvider.
type FixedClock struct {
	At time.Time
}

func (c *FixedClock) Now(loc *time.Location) time.Time {
	return c.At.In(loc)
}

// StaticLocator answers every geolocation lookup with the same location.
type StaticLocator struct {
	Location geoip.Location
	Calls    int
	mu       sync.Mutex
}

func (l *StaticLocator) Lookup(_ context.Context, _ string) geoip.Location {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Calls++
	return l.Location
}

// CreateAnalytic inserts an analytic row as given.
func CreateAnalytic(t *testing.T, db *gorm.DB, rec models.AnalyticRecord) models.AnalyticRecord {
	t.Helper()
	if rec.ActorKey == "" {
		rec.ActorKey = "visitor:" + fmt.Sprint(time.Now().UnixNano())
	}
	rec.Status = true
	require.NoError(t, db.Create(&rec).Error)
	return rec
}

// CreateView inserts a view row as given.
func CreateView(t *testing.T, db *gorm.DB, view models.ViewRecord) models.ViewRecord {
	t.Helper()
	if view.VisitedAt.IsZero() {
		view.VisitedAt = time.Now().UTC()
	}
	view.Status = true
	require.NoError(t, db.Create(&view).Error)
	return view
}

// CreateMinimalTestApp creates a test Fiber app with all routes mounted.
func CreateMinimalTestApp(t *testing.T, db *gorm.DB) *fiber.App {
	t.Helper()

	appConfig := config.GetConfig()

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = NewTestDBManager(db)

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	internal.MountAppRoutes(srv)
	return srv.App()
}
