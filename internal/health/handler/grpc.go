package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the overall ("") status.
const ServiceName = "commerce-auth.Auth"

// NewGRPCServer returns a health server that starts NOT_SERVING until the first check.
func NewGRPCServer() *health.Server {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return hs
}

// Watch runs the checker every interval and mirrors the result into hs until ctx is done,
// then marks every service NOT_SERVING.
func (c *Checker) Watch(ctx context.Context, hs *health.Server, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	c.update(ctx, hs)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			c.update(ctx, hs)
		}
	}
}

func (c *Checker) update(ctx context.Context, hs *health.Server) {
	status := healthpb.HealthCheckResponse_SERVING
	if err := c.Err(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		c.logger.Warn("grpc health: not serving", zap.Error(err))
	}
	hs.SetServingStatus("", status)
	hs.SetServingStatus(ServiceName, status)
}
