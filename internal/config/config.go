// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Geolocation cache backends
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// EngagementWeights are the per-counter multipliers of the engagement score.
// They are documented as percentages and are not required to sum to 1.0.
type EngagementWeights struct {
	Views     float64 `mapstructure:"views" json:"views"`
	Likes     float64 `mapstructure:"likes" json:"likes"`
	Shares    float64 `mapstructure:"shares" json:"shares"`
	Clicks    float64 `mapstructure:"clicks" json:"clicks"`
	Replies   float64 `mapstructure:"replies" json:"replies"`
	Follows   float64 `mapstructure:"follows" json:"follows"`
	Bookmarks float64 `mapstructure:"bookmarks" json:"bookmarks"`
}

// DefaultEngagementWeights returns the stock weights.
func DefaultEngagementWeights() EngagementWeights {
	return EngagementWeights{
		Views:     0.15,
		Likes:     0.25,
		Shares:    0.20,
		Clicks:    0.15,
		Replies:   0.10,
		Follows:   0.10,
		Bookmarks: 0.05,
	}
}

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	PrivateKey  string   `mapstructure:"privatekey"`
	AdminToken  string   `mapstructure:"admintoken"`
	Timezone    string   `mapstructure:"timezone"`

	// File paths
	DatabasePath    string `mapstructure:"storagepath"`
	DatabaseName    string `mapstructure:"-"` // Derived from other settings
	GeoDBPath       string `mapstructure:"geodbpath"`
	PublicDirectory string `mapstructure:"publicdir"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseMaxOpenConns int `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int `mapstructure:"dbmaxidleconns"`

	// Tracking
	TrackingEnabled bool     `mapstructure:"trackingenabled"`
	TrackBots       bool     `mapstructure:"trackbots"`
	TrackedActions  []string `mapstructure:"trackedactions"`

	// Geolocation
	GeolocationEnabled        bool     `mapstructure:"geolocationenabled"`
	GeolocationCacheTTLDays   int      `mapstructure:"geolocationcachettldays"`
	GeolocationTimeoutSeconds int      `mapstructure:"geolocationtimeoutseconds"`
	GeolocationCacheBackend   string   `mapstructure:"geolocationcachebackend"`
	GeolocationCacheSize      int      `mapstructure:"geolocationcachesize"`
	GeolocationProviders      []string `mapstructure:"geolocationproviders"`
	GeolocationRatePerMinute  int      `mapstructure:"geolocationrateperminute"`
	RedisURL                  string   `mapstructure:"redisurl"`
	MaxMindLicenseKey         string   `mapstructure:"maxmindlicensekey"`
	GeoDBUpdateSchedule       string   `mapstructure:"geodbupdateschedule"`

	// Data retention settings
	RetentionViewsDays     int `mapstructure:"retentionviewsdays"`
	RetentionAnalyticsDays int `mapstructure:"retentionanalyticsdays"`
	RetentionPeriodsDays   int `mapstructure:"retentionperiodsdays"`

	// Aggregation and job scheduling
	AggregationEnabled     bool   `mapstructure:"aggregationenabled"`
	AggregationBatchSize   int    `mapstructure:"aggregationbatchsize"`
	AggregationRecentHours int    `mapstructure:"aggregationrecenthours"`
	AggregationSchedule    string `mapstructure:"aggregationschedule"`
	CleanupSchedule        string `mapstructure:"cleanupschedule"`

	EngagementWeights EngagementWeights `mapstructure:"engagementweights"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "engagely")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", "88888888888888888888888888888888")
		v.SetDefault("timezone", "UTC")
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "storage/GeoLite2-City.mmdb")
		v.SetDefault("publicdir", "public")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)

		v.SetDefault("trackingenabled", true)
		v.SetDefault("trackbots", false)
		v.SetDefault("trackedactions", []string{"show", "index", "view", "display"})

		v.SetDefault("geolocationenabled", true)
		v.SetDefault("geolocationcachettldays", 30)
		v.SetDefault("geolocationtimeoutseconds", 10)
		v.SetDefault("geolocationcachebackend", CacheBackendMemory)
		v.SetDefault("geolocationcachesize", 10000)
		v.SetDefault("geolocationproviders", []string{"maxmind", "ip-api", "ipapi.co", "ipwhois", "ipapi.com", "freeipapi"})
		v.SetDefault("geolocationrateperminute", 45)
		v.SetDefault("geodbupdateschedule", "@weekly")

		v.SetDefault("retentionviewsdays", 365)
		v.SetDefault("retentionanalyticsdays", 730)
		v.SetDefault("retentionperiodsdays", 1095)

		v.SetDefault("aggregationenabled", true)
		v.SetDefault("aggregationbatchsize", 1000)
		v.SetDefault("aggregationrecenthours", 24)
		v.SetDefault("aggregationschedule", "@hourly")
		v.SetDefault("cleanupschedule", "@daily")

		weights := DefaultEngagementWeights()
		v.SetDefault("engagementweights.views", weights.Views)
		v.SetDefault("engagementweights.likes", weights.Likes)
		v.SetDefault("engagementweights.shares", weights.Shares)
		v.SetDefault("engagementweights.clicks", weights.Clicks)
		v.SetDefault("engagementweights.replies", weights.Replies)
		v.SetDefault("engagementweights.follows", weights.Follows)
		v.SetDefault("engagementweights.bookmarks", weights.Bookmarks)

		v.BindEnv("appname", "ENGAGELY_APP_NAME")
		v.BindEnv("appport", "ENGAGELY_APP_PORT")
		v.BindEnv("environment", "ENGAGELY_ENV")
		v.BindEnv("loglevel", "ENGAGELY_LOG_LEVEL")
		v.BindEnv("privatekey", "ENGAGELY_PRIVATE_KEY")
		v.BindEnv("admintoken", "ENGAGELY_ADMIN_TOKEN")
		v.BindEnv("timezone", "ENGAGELY_TIMEZONE")
		v.BindEnv("storagepath", "ENGAGELY_STORAGE_PATH")
		v.BindEnv("geodbpath", "ENGAGELY_GEO_DB_PATH")
		v.BindEnv("publicdir", "ENGAGELY_PUBLIC_DIR")
		v.BindEnv("logsdir", "ENGAGELY_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "ENGAGELY_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "ENGAGELY_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "ENGAGELY_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbmaxopenconns", "ENGAGELY_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "ENGAGELY_DB_MAX_IDLE_CONNS")

		v.BindEnv("trackingenabled", "ENGAGELY_TRACKING_ENABLED")
		v.BindEnv("trackbots", "ENGAGELY_TRACK_BOTS")
		v.BindEnv("trackedactions", "ENGAGELY_TRACKED_ACTIONS")

		v.BindEnv("geolocationenabled", "ENGAGELY_GEOLOCATION_ENABLED")
		v.BindEnv("geolocationcachettldays", "ENGAGELY_GEOLOCATION_CACHE_TTL_DAYS")
		v.BindEnv("geolocationtimeoutseconds", "ENGAGELY_GEOLOCATION_TIMEOUT_SECONDS")
		v.BindEnv("geolocationcachebackend", "ENGAGELY_GEOLOCATION_CACHE_BACKEND")
		v.BindEnv("geolocationcachesize", "ENGAGELY_GEOLOCATION_CACHE_SIZE")
		v.BindEnv("geolocationproviders", "ENGAGELY_GEOLOCATION_PROVIDERS")
		v.BindEnv("geolocationrateperminute", "ENGAGELY_GEOLOCATION_RATE_PER_MINUTE")
		v.BindEnv("redisurl", "ENGAGELY_REDIS_URL")
		v.BindEnv("maxmindlicensekey", "ENGAGELY_MAXMIND_LICENSE_KEY")
		v.BindEnv("geodbupdateschedule", "ENGAGELY_GEO_DB_UPDATE_SCHEDULE")

		v.BindEnv("retentionviewsdays", "ENGAGELY_RETENTION_VIEWS_DAYS")
		v.BindEnv("retentionanalyticsdays", "ENGAGELY_RETENTION_ANALYTICS_DAYS")
		v.BindEnv("retentionperiodsdays", "ENGAGELY_RETENTION_PERIODS_DAYS")

		v.BindEnv("aggregationenabled", "ENGAGELY_AGGREGATION_ENABLED")
		v.BindEnv("aggregationbatchsize", "ENGAGELY_AGGREGATION_BATCH_SIZE")
		v.BindEnv("aggregationrecenthours", "ENGAGELY_AGGREGATION_RECENT_HOURS")
		v.BindEnv("aggregationschedule", "ENGAGELY_AGGREGATION_SCHEDULE")
		v.BindEnv("cleanupschedule", "ENGAGELY_CLEANUP_SCHEDULE")

		v.BindEnv("engagementweights.views", "ENGAGELY_WEIGHT_VIEWS")
		v.BindEnv("engagementweights.likes", "ENGAGELY_WEIGHT_LIKES")
		v.BindEnv("engagementweights.shares", "ENGAGELY_WEIGHT_SHARES")
		v.BindEnv("engagementweights.clicks", "ENGAGELY_WEIGHT_CLICKS")
		v.BindEnv("engagementweights.replies", "ENGAGELY_WEIGHT_REPLIES")
		v.BindEnv("engagementweights.follows", "ENGAGELY_WEIGHT_FOLLOWS")
		v.BindEnv("engagementweights.bookmarks", "ENGAGELY_WEIGHT_BOOKMARKS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}
		cfg.applyFallbacks(slog.Default())

		cfg.DatabaseName = cfg.GetDatabasePath()

		defaultKey := "88888888888888888888888888888888"
		if cfg.IsProduction() && cfg.PrivateKey == defaultKey {
			log.Fatal("Production requires a unique ENGAGELY_PRIVATE_KEY (cannot use default)")
		}
	})
	return cfg
}

// validate checks the configuration for errors that cannot be defaulted away
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}

	return nil
}

// applyFallbacks replaces missing or nonsensical tunables with their
// documented defaults. A bad weight or threshold never stops the process.
func (c *Config) applyFallbacks(logger *slog.Logger) {
	defaults := DefaultEngagementWeights()
	fix := func(name string, value *float64, def float64) {
		if *value < 0 {
			logger.Warn("Negative engagement weight, using default",
				slog.String("weight", name),
				slog.Float64("value", *value),
				slog.Float64("default", def))
			*value = def
		}
	}
	fix("views", &c.EngagementWeights.Views, defaults.Views)
	fix("likes", &c.EngagementWeights.Likes, defaults.Likes)
	fix("shares", &c.EngagementWeights.Shares, defaults.Shares)
	fix("clicks", &c.EngagementWeights.Clicks, defaults.Clicks)
	fix("replies", &c.EngagementWeights.Replies, defaults.Replies)
	fix("follows", &c.EngagementWeights.Follows, defaults.Follows)
	fix("bookmarks", &c.EngagementWeights.Bookmarks, defaults.Bookmarks)

	if c.AggregationBatchSize <= 0 {
		c.AggregationBatchSize = 1000
	}
	if c.AggregationRecentHours <= 0 {
		c.AggregationRecentHours = 24
	}
	if c.GeolocationCacheTTLDays <= 0 {
		c.GeolocationCacheTTLDays = 30
	}
	if c.GeolocationTimeoutSeconds <= 0 {
		c.GeolocationTimeoutSeconds = 10
	}
	if c.GeolocationCacheSize <= 0 {
		c.GeolocationCacheSize = 10000
	}
	if c.GeolocationCacheBackend != CacheBackendRedis {
		c.GeolocationCacheBackend = CacheBackendMemory
	}
	if c.RetentionViewsDays <= 0 {
		c.RetentionViewsDays = 365
	}
	if c.RetentionAnalyticsDays <= 0 {
		c.RetentionAnalyticsDays = 730
	}
	if c.RetentionPeriodsDays <= 0 {
		c.RetentionPeriodsDays = 1095
	}
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// Location returns the timezone period buckets are computed in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsTrackedAction reports whether action is eligible for automatic tracking.
func (c *Config) IsTrackedAction(action string) bool {
	for _, a := range c.TrackedActions {
		if a == action {
			return true
		}
	}
	return false
}

// GeolocationTimeout returns the upper bound for one geolocation lookup.
func (c *Config) GeolocationTimeout() time.Duration {
	return time.Duration(c.GeolocationTimeoutSeconds) * time.Second
}

// GeolocationCacheTTL returns how long a resolved location stays cached.
func (c *Config) GeolocationCacheTTL() time.Duration {
	return time.Duration(c.GeolocationCacheTTLDays) * 24 * time.Hour
}

// RecentWindow returns the window used by recent-only aggregation.
func (c *Config) RecentWindow() time.Duration {
	return time.Duration(c.AggregationRecentHours) * time.Hour
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return "/"
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}
	if c.Environment == Test {
		return 1
	}
	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}
	if c.Environment == Test {
		return 1
	}
	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
