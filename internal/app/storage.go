package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"commerce-auth/backend/internal/config"
	"commerce-auth/backend/internal/db"
	"commerce-auth/backend/internal/db/migrate"
	principaldomain "commerce-auth/backend/internal/principal/domain"
	principalrepo "commerce-auth/backend/internal/principal/repository"
	sessionrepo "commerce-auth/backend/internal/session/repository"
)

// PrincipalStore is the principal repository plus the writes used by seeding.
type PrincipalStore interface {
	principalrepo.Repository
	CreateUser(ctx context.Context, u *principaldomain.User) error
	CreateCustomer(ctx context.Context, c *principaldomain.Customer) error
}

// Stores holds the repositories selected by DATABASE_DRIVER.
type Stores struct {
	Principals PrincipalStore
	Sessions   sessionrepo.Repository
	// Driver is "postgres", "mysql", "sqlite" or "memory".
	Driver string

	autoMigrate func(ctx context.Context) error
	close       func() error
}

// OpenStores connects to the configured database. With no DATABASE_URL in development it
// falls back to in-memory repositories.
func OpenStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Stores, error) {
	if cfg.DatabaseURL == "" {
		if !cfg.Development() {
			return nil, errors.New("DATABASE_URL is not set")
		}
		logger.Warn("DATABASE_URL not set; using in-memory stores, data is lost on exit")
		return &Stores{
			Principals: principalrepo.NewMemoryRepository(),
			Sessions:   sessionrepo.NewMemoryRepository(),
			Driver:     "memory",
			close:      func() error { return nil },
		}, nil
	}

	switch cfg.DatabaseDriver {
	case "postgres":
		sqlDB, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return &Stores{
			Principals: principalrepo.NewPostgresRepository(sqlDB),
			Sessions:   sessionrepo.NewPostgresRepository(sqlDB),
			Driver:     cfg.DatabaseDriver,
			close:      sqlDB.Close,
		}, nil
	case "mysql", "sqlite":
		gdb, err := db.OpenGorm(cfg.DatabaseDriver, cfg.DatabaseURL, cfg.Development())
		if err != nil {
			return nil, fmt.Errorf("%s: %w", cfg.DatabaseDriver, err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		principals := principalrepo.NewGormRepository(gdb)
		sessions := sessionrepo.NewGormRepository(gdb)
		return &Stores{
			Principals: principals,
			Sessions:   sessions,
			Driver:     cfg.DatabaseDriver,
			autoMigrate: func(ctx context.Context) error {
				if err := principals.AutoMigrate(ctx); err != nil {
					return err
				}
				return sessions.AutoMigrate(ctx)
			},
			close: sqlDB.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
}

// Close releases the database handle.
func (s *Stores) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}

// Migrate brings the schema up (or down) for the configured driver. Postgres runs the embedded
// SQL migrations through golang-migrate; MySQL and SQLite use GORM AutoMigrate, which only goes up.
func Migrate(ctx context.Context, cfg *config.Config, direction string, logger *zap.Logger) error {
	if cfg.DatabaseDriver == "postgres" {
		return migrate.Run(cfg.DatabaseURL, direction, logger)
	}
	if direction != string(migrate.Up) {
		return fmt.Errorf("%s schema is managed by AutoMigrate and cannot be migrated %s", cfg.DatabaseDriver, direction)
	}
	stores, err := OpenStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = stores.Close() }()
	if stores.autoMigrate == nil {
		return nil
	}
	return stores.autoMigrate(ctx)
}
