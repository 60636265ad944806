// worker runs the session janitor: on JANITOR_SCHEDULE it deletes revoked and expired sessions
// older than SESSION_RETENTION. Use -once to purge a single time and exit.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"commerce-auth/backend/internal/app"
	"commerce-auth/backend/internal/config"
	"commerce-auth/backend/internal/logging"
	sessionservice "commerce-auth/backend/internal/session/service"
)

func main() {
	once := flag.Bool("once", false, "purge once and exit")
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("worker: database", zap.Error(err))
	}
	defer func() { _ = stores.Close() }()

	store := sessionservice.NewStore(stores.Sessions, logger)
	janitor, err := sessionservice.NewJanitor(store, cfg.JanitorSchedule, cfg.SessionRetention, logger)
	if err != nil {
		logger.Fatal("worker: janitor", zap.Error(err))
	}

	if *once {
		n := janitor.RunOnce(ctx)
		logger.Info("worker: purged sessions", zap.Int64("count", n))
		return
	}
	if err := janitor.Start(ctx); err != nil {
		logger.Fatal("worker: start janitor", zap.Error(err))
	}
	logger.Info("worker: janitor running",
		zap.String("schedule", cfg.JanitorSchedule),
		zap.Duration("retention", cfg.SessionRetention),
	)
	<-ctx.Done()
	logger.Info("worker: shutting down...")
	janitor.Stop()
	logger.Info("worker: stopped")
}
