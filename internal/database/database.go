// Package database opens the gorm connection backing every repository.
package database

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/axellelanca/affiliatelinks/internal/config"
	"github.com/axellelanca/affiliatelinks/internal/models"
)

// Open connects to the configured driver.
func Open(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:         newGormLogger(log, logger.Warn),
		TranslateError: true,
	}

	switch cfg.Database.Driver {
	case "postgres":
		db, err := gorm.Open(postgres.Open(cfg.Database.DSN), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		log.Info("database connected", zap.String("driver", "postgres"))
		return db, nil
	default:
		return OpenSQLite(cfg.Database.Name, gormCfg)
	}
}

// OpenSQLite opens a sqlite database. The pool is limited to one connection
// so transactions queue in the driver instead of failing with SQLITE_BUSY.
func OpenSQLite(dsn string, gormCfg *gorm.Config) (*gorm.DB, error) {
	if gormCfg == nil {
		gormCfg = &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Silent),
			TranslateError: true,
		}
	}
	db, err := gorm.Open(sqlite.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to sqlite %s: %w", dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// Migrate creates or updates the links, daily_stats and activities tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Link{}, &models.DailyStat{}, &models.Activity{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
