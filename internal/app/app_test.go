package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"commerce-auth/backend/internal/config"
	principaldomain "commerce-auth/backend/internal/principal/domain"
	"commerce-auth/backend/internal/security"
)

func devConfig() *config.Config {
	return &config.Config{
		HTTPAddr:           "127.0.0.1:0",
		GRPCAddr:           "127.0.0.1:0",
		Env:                config.EnvDevelopment,
		DatabaseDriver:     "postgres",
		JWTIssuer:          "commerce-auth",
		UserAccessTTL:      8 * time.Hour,
		CustomerAccessTTL:  15 * time.Minute,
		CustomerRefreshTTL: 720 * time.Hour,
		Argon2MemoryKiB:    1024,
		Argon2Iterations:   1,
		Argon2Parallelism:  1,
		SessionRetention:   720 * time.Hour,
		JanitorSchedule:    "@hourly",
	}
}

func TestNew_InMemoryLoginFlow(t *testing.T) {
	ctx := context.Background()
	cfg := devConfig()
	a, err := New(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { a.closeResources(context.Background()) })
	assert.Equal(t, "memory", a.stores.Driver)

	hash, err := security.NewHasher(cfg.HashConfig()).Hash([]byte("s3cret-pass"))
	require.NoError(t, err)
	require.NoError(t, a.stores.Principals.CreateCustomer(ctx, &principaldomain.Customer{
		ID: "c1", Email: "carol@example.com", PasswordHash: hash,
	}))

	body, _ := json.Marshal(map[string]string{"login": "CAROL@example.com", "password": "s3cret-pass", "device_id": "d1"})
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/customers/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	a.Router().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	hz := httptest.NewRecorder()
	a.Router().ServeHTTP(hz, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, hz.Code)
}

func TestRun_StopsOnCancel(t *testing.T) {
	a, err := New(context.Background(), devConfig(), zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestOpenStores_RequiresURLOutsideDevelopment(t *testing.T) {
	cfg := devConfig()
	cfg.Env = "production"
	_, err := OpenStores(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestMigrate_SQLite(t *testing.T) {
	ctx := context.Background()
	cfg := devConfig()
	cfg.DatabaseDriver = "sqlite"
	cfg.DatabaseURL = filepath.Join(t.TempDir(), "auth.db")
	logger := zap.NewNop()

	require.NoError(t, Migrate(ctx, cfg, "up", logger))
	assert.Error(t, Migrate(ctx, cfg, "down", logger))

	stores, err := OpenStores(ctx, cfg, logger)
	require.NoError(t, err)
	defer stores.Close()
	require.NoError(t, stores.Principals.CreateUser(ctx, &principaldomain.User{ID: "u1", Username: "alice", PasswordHash: "x"}))
	u, err := stores.Principals.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.NoError(t, stores.Sessions.Ping(ctx))
}
