package main

import (
	"fmt"

	"github.com/makeasinger/motionvault/internal/config"
	"github.com/makeasinger/motionvault/internal/logger"
	"github.com/makeasinger/motionvault/internal/repository"
)

func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(cfg.Server.Env, cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer log.Sync()

	db, err := repository.Open(&cfg.Database, log)
	if err != nil {
		return err
	}
	if err := repository.AutoMigrate(db); err != nil {
		return err
	}
	log.Info("Migration complete", "driver", cfg.Database.Driver)
	return nil
}
