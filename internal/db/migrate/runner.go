// Package migrate applies the embedded Postgres schema using golang-migrate.
package migrate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"commerce-auth/backend/internal/db"
)

// Direction is "up" or "down".
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// ParseDirection validates a command-line direction.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(s); d {
	case Up, Down:
		return d, nil
	default:
		return "", fmt.Errorf("direction must be up or down, got %q", s)
	}
}

// Runner applies migrations to one database.
type Runner struct {
	m *migrate.Migrate
}

// New opens dsn with the embedded migrations as source. Close the Runner when done.
func New(dsn string, logger *zap.Logger) (*Runner, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}
	src, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if logger != nil {
		m.Log = zapLogger{logger.Sugar()}
	}
	return &Runner{m: m}, nil
}

// Run migrates all the way in direction d. Being already at the target is not an error.
func (r *Runner) Run(d Direction) error {
	var err error
	switch d {
	case Up:
		err = r.m.Up()
	case Down:
		err = r.m.Down()
	default:
		return fmt.Errorf("direction must be up or down, got %q", d)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Version returns the applied version and whether the last migration left the schema dirty.
func (r *Runner) Version() (uint, bool, error) {
	v, dirty, err := r.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Close releases the source and database handles.
func (r *Runner) Close() error {
	srcErr, dbErr := r.m.Close()
	return errors.Join(srcErr, dbErr)
}

// Run is New, Run and Close in one call.
func Run(dsn, direction string, logger *zap.Logger) error {
	d, err := ParseDirection(direction)
	if err != nil {
		return err
	}
	r, err := New(dsn, logger)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()
	return r.Run(d)
}

type zapLogger struct {
	s *zap.SugaredLogger
}

func (l zapLogger) Printf(format string, v ...any) {
	l.s.Infof(strings.TrimSuffix(format, "\n"), v...)
}

func (l zapLogger) Verbose() bool { return false }
