package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Purger deletes sessions that ended before now minus retention.
type Purger interface {
	PurgeRevoked(ctx context.Context, retention time.Duration) (int64, error)
}

// Janitor periodically deletes revoked and expired sessions older than the retention window.
type Janitor struct {
	purger    Purger
	schedule  string
	retention time.Duration
	timeout   time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// NewJanitor validates schedule (standard five-field cron or a descriptor such as @hourly).
func NewJanitor(purger Purger, schedule string, retention time.Duration, logger *zap.Logger) (*Janitor, error) {
	if _, err := cronParser.Parse(schedule); err != nil {
		return nil, fmt.Errorf("invalid janitor schedule %q: %w", schedule, err)
	}
	if retention <= 0 {
		return nil, fmt.Errorf("janitor retention must be positive, got %s", retention)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{
		purger:    purger,
		schedule:  schedule,
		retention: retention,
		timeout:   time.Minute,
		logger:    logger,
		cron:      cron.New(cron.WithParser(cronParser)),
	}, nil
}

// Start schedules the purge job. It stops when ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running {
		return nil
	}
	if _, err := j.cron.AddFunc(j.schedule, func() { j.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule janitor: %w", err)
	}
	j.cron.Start()
	j.running = true
	j.logger.Info("session janitor started", zap.String("schedule", j.schedule), zap.Duration("retention", j.retention))
	go func() {
		<-ctx.Done()
		j.Stop()
	}()
	return nil
}

// Stop waits for a running purge to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.running {
		return
	}
	<-j.cron.Stop().Done()
	j.running = false
	j.logger.Info("session janitor stopped")
}

// RunOnce purges once and returns the number of deleted sessions.
func (j *Janitor) RunOnce(ctx context.Context) int64 {
	if ctx.Err() != nil {
		return 0
	}
	runCtx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	n, err := j.purger.PurgeRevoked(runCtx, j.retention)
	if err != nil {
		j.logger.Error("purge sessions", zap.Error(err))
		return 0
	}
	if n > 0 {
		j.logger.Info("purged sessions", zap.Int64("count", n))
	}
	return n
}
