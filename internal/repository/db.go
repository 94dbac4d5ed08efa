package repository

import (
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/makeasinger/motionvault/internal/config"
	"github.com/makeasinger/motionvault/internal/logger"
	"github.com/makeasinger/motionvault/internal/model"
)

// Open connects to the configured row store.
func Open(cfg *config.DatabaseConfig, log *logger.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Driver) {
	case "", "postgres", "postgresql":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	log.Info("Connecting to row store...", "driver", cfg.Driver)
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Error("Failed to connect to row store", "error", err)
		return nil, fmt.Errorf("failed to connect to row store: %w", err)
	}
	return db, nil
}

// AutoMigrate creates or updates the videos, categories and generation_tasks tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Asset{},
		&model.Category{},
		&model.GenerationTask{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
