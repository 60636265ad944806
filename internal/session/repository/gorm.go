package repository

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"commerce-auth/backend/internal/session/domain"
)

// sessionModel maps customer_sessions for the MySQL and SQLite stores.
type sessionModel struct {
	ID               string         `gorm:"type:varchar(36);primaryKey"`
	CustomerID       string         `gorm:"type:varchar(36);not null;index:idx_customer_sessions_customer"`
	DeviceID         *string        `gorm:"type:varchar(128)"`
	DeviceName       *string        `gorm:"type:varchar(255)"`
	UserAgent        *string        `gorm:"type:text"`
	IPAddress        *string        `gorm:"type:varchar(64)"`
	Country          *string        `gorm:"type:varchar(128)"`
	Province         *string        `gorm:"type:varchar(128)"`
	District         *string        `gorm:"type:varchar(128)"`
	Latitude         *float64
	Longitude        *float64
	GeoLocation      *string        `gorm:"type:varchar(64)"`
	RefreshTokenHash string         `gorm:"type:varchar(64);not null"`
	RefreshExpiresAt time.Time      `gorm:"not null"`
	LastActivityAt   *time.Time
	RevokedAt        *time.Time     `gorm:"index"`
	RevokedReason    *string        `gorm:"type:varchar(64)"`
	Metadata         map[string]any `gorm:"type:text;serializer:json"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (sessionModel) TableName() string { return "customer_sessions" }

// GormRepository stores sessions through GORM. The upsert runs in a transaction and takes a
// row lock on MySQL; SQLite serializes writers.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository returns a session repository over db.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// AutoMigrate creates or updates the customer_sessions table. On SQLite it also adds the
// partial unique index over active (customer_id, device_id) pairs.
func (r *GormRepository) AutoMigrate(ctx context.Context) error {
	db := r.db.WithContext(ctx)
	if err := db.AutoMigrate(&sessionModel{}); err != nil {
		return fmt.Errorf("migrate customer_sessions: %w", err)
	}
	if db.Dialector.Name() == "sqlite" {
		err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_customer_sessions_active_device
			ON customer_sessions (customer_id, device_id) WHERE revoked_at IS NULL`).Error
		if err != nil {
			return fmt.Errorf("migrate customer_sessions index: %w", err)
		}
	}
	return nil
}

// GetByID returns the session for id, or nil if not found.
func (r *GormRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	var m sessionModel
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return m.toDomain(), nil
}

// ListByCustomer returns all sessions for the customer, most recent activity first.
func (r *GormRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Session, error) {
	var list []sessionModel
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("COALESCE(last_activity_at, created_at) DESC, created_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := make([]*domain.Session, len(list))
	for i := range list {
		out[i] = list[i].toDomain()
	}
	return out, nil
}

// UpsertByDevice overwrites the active session for the device or inserts a new one.
func (r *GormRepository) UpsertByDevice(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	var stored sessionModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("customer_id = ? AND device_id = ? AND revoked_at IS NULL", s.CustomerID, s.DeviceID)
		if tx.Dialector.Name() == "mysql" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var existing sessionModel
		err := q.Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound) || s.DeviceID == "":
			stored = fromDomain(s)
			return tx.Create(&stored).Error
		case err != nil:
			return err
		}
		incoming := fromDomain(s)
		incoming.ID = existing.ID
		incoming.CreatedAt = existing.CreatedAt
		incoming.Metadata = mergeMetadata(existing.Metadata, s.Metadata)
		stored = incoming
		return tx.Save(&stored).Error
	})
	if err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}
	return stored.toDomain(), nil
}

// RotateRefreshToken is a compare-and-swap on refresh_token_hash.
func (r *GormRepository) RotateRefreshToken(ctx context.Context, id, expectedHash, newHash string, expiresAt, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&sessionModel{}).
		Where("id = ? AND refresh_token_hash = ? AND revoked_at IS NULL", id, expectedHash).
		Updates(map[string]any{
			"refresh_token_hash": newHash,
			"refresh_expires_at": expiresAt,
			"last_activity_at":   now,
			"updated_at":         now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("rotate refresh token: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Revoke marks the session revoked unless it already is.
func (r *GormRepository) Revoke(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&sessionModel{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Updates(map[string]any{"revoked_at": at, "revoked_reason": reason, "updated_at": at})
	if res.Error != nil {
		return false, fmt.Errorf("revoke session: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// RevokeAllByCustomer revokes the customer's active sessions, skipping exceptID when set.
func (r *GormRepository) RevokeAllByCustomer(ctx context.Context, customerID, exceptID, reason string, at time.Time) (int64, error) {
	q := r.db.WithContext(ctx).Model(&sessionModel{}).
		Where("customer_id = ? AND revoked_at IS NULL", customerID)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	res := q.Updates(map[string]any{"revoked_at": at, "revoked_reason": reason, "updated_at": at})
	if res.Error != nil {
		return 0, fmt.Errorf("revoke customer sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// PurgeBefore deletes sessions that were revoked or whose refresh window ended before cutoff.
func (r *GormRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("(revoked_at IS NOT NULL AND revoked_at < ?) OR refresh_expires_at < ?", cutoff, cutoff).
		Delete(&sessionModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("purge sessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Ping checks the database connection.
func (r *GormRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func mergeMetadata(old, incoming map[string]any) map[string]any {
	out := make(map[string]any, len(old)+len(incoming))
	maps.Copy(out, old)
	maps.Copy(out, incoming)
	return out
}

func fromDomain(s *domain.Session) sessionModel {
	meta := s.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return sessionModel{
		ID:               s.ID,
		CustomerID:       s.CustomerID,
		DeviceID:         strPtr(s.DeviceID),
		DeviceName:       strPtr(s.DeviceName),
		UserAgent:        strPtr(s.UserAgent),
		IPAddress:        strPtr(s.IPAddress),
		Country:          strPtr(s.Location.Country),
		Province:         strPtr(s.Location.Province),
		District:         strPtr(s.Location.District),
		Latitude:         s.Location.Latitude,
		Longitude:        s.Location.Longitude,
		GeoLocation:      strPtr(s.Location.GeoLocation),
		RefreshTokenHash: s.RefreshTokenHash,
		RefreshExpiresAt: s.RefreshExpiresAt,
		LastActivityAt:   s.LastActivityAt,
		RevokedAt:        s.RevokedAt,
		RevokedReason:    strPtr(s.RevokedReason),
		Metadata:         meta,
		CreatedAt:        s.CreatedAt,
		UpdatedAt:        s.UpdatedAt,
	}
}

func (m *sessionModel) toDomain() *domain.Session {
	meta := m.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return &domain.Session{
		ID:         m.ID,
		CustomerID: m.CustomerID,
		DeviceID:   deref(m.DeviceID),
		DeviceName: deref(m.DeviceName),
		UserAgent:  deref(m.UserAgent),
		IPAddress:  deref(m.IPAddress),
		Location: domain.Location{
			Country:     deref(m.Country),
			Province:    deref(m.Province),
			District:    deref(m.District),
			Latitude:    m.Latitude,
			Longitude:   m.Longitude,
			GeoLocation: deref(m.GeoLocation),
		},
		RefreshTokenHash: m.RefreshTokenHash,
		RefreshExpiresAt: m.RefreshExpiresAt,
		LastActivityAt:   m.LastActivityAt,
		RevokedAt:        m.RevokedAt,
		RevokedReason:    deref(m.RevokedReason),
		Metadata:         meta,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
