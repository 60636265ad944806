package db

import "embed"

// MigrationFS embeds the Postgres schema from internal/db/migrations.
// Used by the migrate runner (cmd/migrate). MySQL and SQLite use GORM AutoMigrate instead.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
