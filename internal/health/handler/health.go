// Package handler reports service health over HTTP and the standard gRPC health protocol.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const checkTimeout = 2 * time.Second

// Pinger is a dependency whose reachability gates readiness (e.g. the session store).
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Checker runs a set of named pingers.
type Checker struct {
	pingers map[string]Pinger
	logger  *zap.Logger
}

// NewChecker returns a Checker over pingers. Nil pingers are skipped.
func NewChecker(pingers map[string]Pinger, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := make(map[string]Pinger, len(pingers))
	for name, p := range pingers {
		if p != nil {
			m[name] = p
		}
	}
	return &Checker{pingers: m, logger: logger}
}

// Check pings every dependency and returns the failures by name.
func (c *Checker) Check(ctx context.Context) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	failed := map[string]error{}
	for name, p := range c.pingers {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err
		}
	}
	return failed
}

// Err returns nil when every dependency is reachable.
func (c *Checker) Err(ctx context.Context) error {
	failed := c.Check(ctx)
	if len(failed) == 0 {
		return nil
	}
	names := make([]string, 0, len(failed))
	for name := range failed {
		names = append(names, name)
	}
	sort.Strings(names)
	errs := make([]error, 0, len(names))
	for _, name := range names {
		errs = append(errs, fmt.Errorf("%s: %w", name, failed[name]))
	}
	return errors.Join(errs...)
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HTTP answers GET /healthz with 200 when healthy and 503 otherwise. Error details stay in the logs.
func (c *Checker) HTTP(ctx *gin.Context) {
	failed := c.Check(ctx.Request.Context())
	if len(failed) == 0 {
		ctx.JSON(http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	checks := make(map[string]string, len(failed))
	for name, err := range failed {
		checks[name] = "unavailable"
		c.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
	}
	ctx.JSON(http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Checks: checks})
}
