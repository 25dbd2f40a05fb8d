package config

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/karloscodes/cartridge"
	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Environment: Test, Timezone: "Europe/Berlin"}, false},
		{"unknown environment", Config{Environment: "staging", Timezone: "UTC"}, true},
		{"unknown timezone", Config{Environment: Development, Timezone: "Mars/Olympus"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApplyFallbacks(t *testing.T) {
	cfg := Config{
		EngagementWeights: EngagementWeights{
			Views: -1,
			Likes: 0.5,
		},
		GeolocationCacheBackend: "memcached",
		AggregationBatchSize:    -5,
	}
	cfg.applyFallbacks(slog.New(slog.DiscardHandler))

	defaults := DefaultEngagementWeights()
	assert.Equal(t, defaults.Views, cfg.EngagementWeights.Views)
	assert.Equal(t, 0.5, cfg.EngagementWeights.Likes)
	assert.Zero(t, cfg.EngagementWeights.Shares)

	assert.Equal(t, CacheBackendMemory, cfg.GeolocationCacheBackend)
	assert.Equal(t, 1000, cfg.AggregationBatchSize)
	assert.Equal(t, 24*time.Hour, cfg.RecentWindow())
	assert.Equal(t, 10*time.Second, cfg.GeolocationTimeout())
	assert.Equal(t, 30*24*time.Hour, cfg.GeolocationCacheTTL())
	assert.Equal(t, 365, cfg.RetentionViewsDays)
	assert.Equal(t, 730, cfg.RetentionAnalyticsDays)
	assert.Equal(t, 1095, cfg.RetentionPeriodsDays)
}

func TestIsTrackedAction(t *testing.T) {
	cfg := Config{TrackedActions: []string{"show", "index"}}

	assert.True(t, cfg.IsTrackedAction("show"))
	assert.False(t, cfg.IsTrackedAction("destroy"))
	assert.False(t, cfg.IsTrackedAction(""))
}

func TestLocation(t *testing.T) {
	assert.Equal(t, "Europe/Berlin", (&Config{Timezone: "Europe/Berlin"}).Location().String())
	assert.Equal(t, time.UTC, (&Config{Timezone: "nowhere"}).Location())
}

func TestDatabaseSettings(t *testing.T) {
	cfg := Config{AppName: "engagely", Environment: Test, DatabasePath: "storage"}

	assert.Equal(t, filepath.Join("storage", "engagely-test.db"), cfg.GetDatabasePath())
	assert.Equal(t, cfg.GetDatabasePath(), cfg.DatabaseDSN())
	assert.Equal(t, 1, cfg.GetMaxOpenConns())

	cfg.Environment = Production
	assert.Equal(t, 10, cfg.GetMaxOpenConns())

	cfg.DatabaseMaxOpenConns = 3
	assert.Equal(t, 3, cfg.GetMaxOpenConns())
}

func TestLogConfigProvider(t *testing.T) {
	var _ cartridge.LogConfigProvider = (*Config)(nil)

	cfg := &Config{
		Environment:      Production,
		AppName:          "engagely",
		LogLevel:         LogLevelWarn,
		LogsDirectory:    "/var/log/engagely",
		LogsMaxSizeInMb:  5,
		LogsMaxBackups:   3,
		LogsMaxAgeInDays: 7,
	}

	logCfg := cartridge.LogConfigFromProvider(cfg)
	assert.Equal(t, "warn", logCfg.Level)
	assert.Equal(t, "/var/log/engagely", logCfg.Directory)
	assert.Equal(t, 5, logCfg.MaxSizeMB)
	assert.Equal(t, 3, logCfg.MaxBackups)
	assert.Equal(t, 7, logCfg.MaxAgeDays)
	assert.Equal(t, "engagely", logCfg.AppName)
}

func TestNewLoggerLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	logger := cartridge.NewLogger(&Config{Environment: Test, LogLevel: LogLevelWarn}, nil)
	assert.False(t, logger.Enabled(t.Context(), slog.LevelInfo))
	assert.True(t, logger.Enabled(t.Context(), slog.LevelWarn))
}
