package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"commerce-auth/backend/internal/session/domain"
)

func setupGormRepo(t *testing.T) *GormRepository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})
	repo := NewGormRepository(db)
	require.NoError(t, repo.AutoMigrate(context.Background()))
	return repo
}

func newSession(id, customerID, deviceID string, now time.Time) *domain.Session {
	lat, long := 52.52, 13.405
	return &domain.Session{
		ID:         id,
		CustomerID: customerID,
		DeviceID:   deviceID,
		DeviceName: "Chrome on macOS",
		UserAgent:  "Mozilla/5.0",
		IPAddress:  "203.0.113.7",
		Location: domain.Location{
			Country:     "Germany",
			Province:    "Berlin",
			District:    "Berlin",
			Latitude:    &lat,
			Longitude:   &long,
			GeoLocation: "52.52,13.405",
		},
		RefreshTokenHash: "hash-" + id,
		RefreshExpiresAt: now.Add(time.Hour),
		LastActivityAt:   &now,
		Metadata:         map[string]any{"login_method": "password"},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestGormRepository_UpsertByDevice(t *testing.T) {
	repo := setupGormRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	s1, err := repo.UpsertByDevice(ctx, newSession("s1", "c1", "d1", now))
	require.NoError(t, err)
	assert.Equal(t, "s1", s1.ID)
	assert.Equal(t, "Germany", s1.Location.Country)
	require.NotNil(t, s1.Location.Latitude)
	assert.InDelta(t, 52.52, *s1.Location.Latitude, 1e-9)

	relogin := newSession("s-ignored", "c1", "d1", now.Add(time.Minute))
	relogin.IPAddress = "198.51.100.1"
	relogin.Location = domain.Location{}
	relogin.Metadata = map[string]any{"app_version": "2.0"}
	updated, err := repo.UpsertByDevice(ctx, relogin)
	require.NoError(t, err)
	assert.Equal(t, "s1", updated.ID, "same device must update the existing session")
	assert.Equal(t, "198.51.100.1", updated.IPAddress)
	assert.Empty(t, updated.Location.Country)
	assert.Nil(t, updated.Location.Latitude)
	assert.Equal(t, "hash-s-ignored", updated.RefreshTokenHash)
	assert.Equal(t, "password", updated.Metadata["login_method"])
	assert.Equal(t, "2.0", updated.Metadata["app_version"])

	_, err = repo.UpsertByDevice(ctx, newSession("s2", "c1", "d2", now))
	require.NoError(t, err)
	list, err := repo.ListByCustomer(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestGormRepository_UpsertAfterRevokeInserts(t *testing.T) {
	repo := setupGormRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := repo.UpsertByDevice(ctx, newSession("s1", "c1", "d1", now))
	require.NoError(t, err)
	ok, err := repo.Revoke(ctx, "s1", domain.ReasonLogout, now)
	require.NoError(t, err)
	require.True(t, ok)

	s2, err := repo.UpsertByDevice(ctx, newSession("s2", "c1", "d1", now))
	require.NoError(t, err)
	assert.Equal(t, "s2", s2.ID)

	old, err := repo.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, old.Revoked())
	assert.Equal(t, domain.ReasonLogout, old.RevokedReason)
}

func TestGormRepository_RotateRefreshTokenIsCompareAndSwap(t *testing.T) {
	repo := setupGormRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()
	_, err := repo.UpsertByDevice(ctx, newSession("s1", "c1", "d1", now))
	require.NoError(t, err)

	ok, err := repo.RotateRefreshToken(ctx, "s1", "hash-s1", "hash-2", now.Add(2*time.Hour), now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.RotateRefreshToken(ctx, "s1", "hash-s1", "hash-3", now.Add(2*time.Hour), now)
	require.NoError(t, err)
	assert.False(t, ok, "stale expected hash must not rotate")

	got, err := repo.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "hash-2", got.RefreshTokenHash)

	_, err = repo.Revoke(ctx, "s1", domain.ReasonRefreshTokenReuse, now)
	require.NoError(t, err)
	ok, err = repo.RotateRefreshToken(ctx, "s1", "hash-2", "hash-4", now.Add(2*time.Hour), now)
	require.NoError(t, err)
	assert.False(t, ok, "revoked session must not rotate")
}

func TestGormRepository_RevokeAllByCustomer(t *testing.T) {
	repo := setupGormRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()
	for _, s := range []*domain.Session{
		newSession("s1", "c1", "d1", now),
		newSession("s2", "c1", "d2", now),
		newSession("s3", "c1", "d3", now),
		newSession("s4", "c2", "d1", now),
	} {
		_, err := repo.UpsertByDevice(ctx, s)
		require.NoError(t, err)
	}

	n, err := repo.RevokeAllByCustomer(ctx, "c1", "s1", domain.ReasonRevokedOthers, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = repo.RevokeAllByCustomer(ctx, "c1", "", domain.ReasonRevokedAll, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	other, err := repo.GetByID(ctx, "s4")
	require.NoError(t, err)
	assert.False(t, other.Revoked())
}

func TestGormRepository_PurgeBefore(t *testing.T) {
	repo := setupGormRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	expired := newSession("s1", "c1", "d1", now.Add(-48*time.Hour))
	_, err := repo.UpsertByDevice(ctx, expired)
	require.NoError(t, err)
	_, err = repo.UpsertByDevice(ctx, newSession("s2", "c1", "d2", now))
	require.NoError(t, err)

	n, err := repo.PurgeBefore(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	gone, err := repo.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, gone)
	require.NoError(t, repo.Ping(ctx))
}
