// migrate applies the database schema: golang-migrate for Postgres, GORM AutoMigrate for MySQL and SQLite.
package main

import (
	"context"
	"flag"
	"log"

	"go.uber.org/zap"

	"commerce-auth/backend/internal/app"
	"commerce-auth/backend/internal/config"
	"commerce-auth/backend/internal/logging"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := app.Migrate(context.Background(), cfg, *direction, logger); err != nil {
		logger.Fatal("migrate failed", zap.String("driver", cfg.DatabaseDriver), zap.String("direction", *direction), zap.Error(err))
	}
	logger.Info("migrate done", zap.String("driver", cfg.DatabaseDriver), zap.String("direction", *direction))
}
