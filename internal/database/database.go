package database

import (
	"log/slog"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"engagely/internal/config"
	"engagely/internal/models"
)

// DBManager wraps cartridge's sqlite.Manager with engagely's migrations.
type DBManager struct {
	*sqlite.Manager
	logger *slog.Logger
}

// NewDBManager creates a new database manager using cartridge's sqlite.Manager.
func NewDBManager(cfg *config.Config, logger *slog.Logger) *DBManager {
	sqliteCfg := sqlite.Config{
		Path:         cfg.GetDatabasePath(),
		MaxOpenConns: cfg.GetMaxOpenConns(),
		MaxIdleConns: cfg.GetMaxIdleConns(),
		Logger:       logger,
		EnableWAL:    true,
		TxImmediate:  true,
		BusyTimeout:  5000,
	}

	return &DBManager{
		Manager: sqlite.NewManager(sqliteCfg),
		logger:  logger,
	}
}

// Init opens the connection and enables foreign key enforcement.
func (dm *DBManager) Init() error {
	db, err := dm.Manager.Connect()
	if err != nil {
		return err
	}
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		dm.logger.Warn("Failed to enable foreign keys", slog.Any("error", err))
	}
	return nil
}

// MigrateDatabase creates or updates the analytics, views and periods tables.
func (dm *DBManager) MigrateDatabase() error {
	db := dm.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	return Migrate(db, dm.logger, func() {
		if err := dm.CheckpointWAL("FULL"); err != nil {
			dm.logger.Warn("Failed to checkpoint WAL after migration", slog.Any("error", err))
		}
	})
}

// Migrate runs AutoMigrate for every model in one transaction. after runs
// only when the migration succeeds.
func Migrate(db *gorm.DB, logger *slog.Logger, after func()) error {
	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.AutoMigrate(models.AllModels()...)
	})
	if err != nil {
		logger.Error("Failed to auto-migrate database", slog.Any("error", err))
		return err
	}

	if after != nil {
		after()
	}

	logger.Info("Database migration completed successfully")
	return nil
}
