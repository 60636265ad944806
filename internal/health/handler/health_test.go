package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func healthy() Pinger { return PingFunc(func(context.Context) error { return nil }) }

func failing() Pinger {
	return PingFunc(func(context.Context) error { return errors.New("connection refused") })
}

func TestChecker_HTTP(t *testing.T) {
	tests := []struct {
		name    string
		pingers map[string]Pinger
		want    int
	}{
		{"no dependencies", nil, http.StatusOK},
		{"all healthy", map[string]Pinger{"sessions": healthy()}, http.StatusOK},
		{"nil pinger skipped", map[string]Pinger{"sessions": healthy(), "geo": nil}, http.StatusOK},
		{"one failing", map[string]Pinger{"sessions": failing(), "redis": healthy()}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/healthz", NewChecker(tt.pingers, nil).HTTP)
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestChecker_Err(t *testing.T) {
	c := NewChecker(map[string]Pinger{"sessions": failing(), "redis": failing()}, nil)
	err := c.Err(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "redis: connection refused\nsessions: connection refused" {
		t.Errorf("err = %q", got)
	}
	if err := NewChecker(nil, nil).Err(context.Background()); err != nil {
		t.Errorf("empty checker: %v", err)
	}
}

func TestChecker_Watch(t *testing.T) {
	hs := NewGRPCServer()
	resp, err := hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil || resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("initial status = %v, %v", resp, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewChecker(map[string]Pinger{"sessions": healthy()}, nil).Watch(ctx, hs, time.Hour)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ""})
		if err == nil && resp.Status == healthpb.HealthCheckResponse_SERVING {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("status never became SERVING: %v, %v", resp, err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
	resp, _ = hs.Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if resp.Status != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status after shutdown = %v", resp.Status)
	}
}
