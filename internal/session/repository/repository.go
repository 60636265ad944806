package repository

import (
	"context"
	"time"

	"commerce-auth/backend/internal/session/domain"
)

// Repository defines persistence for customer sessions. Every mutation is a single atomic write.
type Repository interface {
	// GetByID returns the session for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// ListByCustomer returns all sessions of the customer, most recent activity first.
	ListByCustomer(ctx context.Context, customerID string) ([]*domain.Session, error)
	// UpsertByDevice inserts s, or overwrites the mutable fields of the existing non-revoked
	// session for (s.CustomerID, s.DeviceID), and returns the stored row. s.ID is only used on insert.
	UpsertByDevice(ctx context.Context, s *domain.Session) (*domain.Session, error)
	// RotateRefreshToken replaces the refresh token hash only if the stored hash still equals
	// expectedHash and the session is not revoked. Returns false when the condition did not hold.
	RotateRefreshToken(ctx context.Context, id, expectedHash, newHash string, expiresAt, now time.Time) (bool, error)
	// Revoke marks a non-revoked session revoked. Returns false if the session was absent or already revoked.
	Revoke(ctx context.Context, id, reason string, at time.Time) (bool, error)
	// RevokeAllByCustomer revokes every non-revoked session of the customer except exceptID (may be empty).
	RevokeAllByCustomer(ctx context.Context, customerID, exceptID, reason string, at time.Time) (int64, error)
	// PurgeBefore deletes sessions revoked, or with refresh expiry, before cutoff.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
	// Ping checks the store is reachable.
	Ping(ctx context.Context) error
}
