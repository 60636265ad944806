package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"commerce-auth/backend/internal/security"
	"commerce-auth/backend/internal/session/domain"
	"commerce-auth/backend/internal/session/repository"
)

// Sentinel errors for session operations; handlers map them to HTTP status codes.
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionRevoked      = errors.New("session revoked")
	ErrSessionExpired      = errors.New("session expired")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrForbidden           = errors.New("session belongs to another customer")
)

// CreateParams describes the device a customer logged in from.
type CreateParams struct {
	CustomerID string
	DeviceID   string
	DeviceName string
	UserAgent  string
	IP         string
	Location   domain.Location
	TTL        time.Duration
	Metadata   map[string]any
}

// Store manages customer sessions and refresh token rotation.
type Store struct {
	repo   repository.Repository
	logger *zap.Logger
	now    func() time.Time
}

// NewStore returns a Store over repo. A nil logger discards output.
func NewStore(repo repository.Repository, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{repo: repo, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// lookup loads a session by id. Ids are UUIDs, so anything else cannot name a stored
// session and is reported as ErrSessionNotFound without reaching the repository.
func (s *Store) lookup(ctx context.Context, sessionID string) (*domain.Session, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, ErrSessionNotFound
	}
	sess, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Create opens a session for the device, or refreshes the customer's active session on the
// same device in place. The raw refresh token is returned once and only its hash is stored.
func (s *Store) Create(ctx context.Context, p CreateParams) (*domain.Session, string, error) {
	if p.CustomerID == "" {
		return nil, "", errors.New("create session: customer id is required")
	}
	if p.TTL <= 0 {
		return nil, "", errors.New("create session: ttl must be positive")
	}
	raw, err := security.GenerateRefreshToken()
	if err != nil {
		return nil, "", err
	}
	now := s.now()
	sess, err := s.repo.UpsertByDevice(ctx, &domain.Session{
		ID:               uuid.New().String(),
		CustomerID:       p.CustomerID,
		DeviceID:         p.DeviceID,
		DeviceName:       p.DeviceName,
		UserAgent:        p.UserAgent,
		IPAddress:        p.IP,
		Location:         p.Location,
		RefreshTokenHash: security.HashRefreshToken(raw),
		RefreshExpiresAt: now.Add(p.TTL),
		LastActivityAt:   &now,
		Metadata:         p.Metadata,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return nil, "", err
	}
	return sess, raw, nil
}

// Rotate exchanges the presented refresh token for a new one and extends the session by ttl.
// A token that does not match the stored hash revokes the session; so does losing a race
// against a concurrent rotation with the same token.
func (s *Store) Rotate(ctx context.Context, sessionID, presented string, ttl time.Duration) (*domain.Session, string, error) {
	sess, err := s.lookup(ctx, sessionID)
	if err != nil {
		return nil, "", err
	}
	now := s.now()
	if sess.Revoked() {
		return nil, "", ErrSessionRevoked
	}
	if sess.Expired(now) {
		return nil, "", ErrSessionExpired
	}
	if !security.RefreshTokenHashEqual(presented, sess.RefreshTokenHash) {
		s.revokeOnReuse(ctx, sess, now)
		return nil, "", ErrInvalidRefreshToken
	}
	raw, err := security.GenerateRefreshToken()
	if err != nil {
		return nil, "", err
	}
	newHash := security.HashRefreshToken(raw)
	expiresAt := now.Add(ttl)
	ok, err := s.repo.RotateRefreshToken(ctx, sess.ID, sess.RefreshTokenHash, newHash, expiresAt, now)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		s.revokeOnReuse(ctx, sess, now)
		return nil, "", ErrInvalidRefreshToken
	}
	sess.RefreshTokenHash = newHash
	sess.RefreshExpiresAt = expiresAt
	sess.LastActivityAt = &now
	sess.UpdatedAt = now
	return sess, raw, nil
}

func (s *Store) revokeOnReuse(ctx context.Context, sess *domain.Session, now time.Time) {
	s.logger.Warn("refresh token mismatch; revoking session",
		zap.String("session_id", sess.ID),
		zap.String("customer_id", sess.CustomerID),
	)
	if _, err := s.repo.Revoke(ctx, sess.ID, domain.ReasonRefreshTokenReuse, now); err != nil {
		s.logger.Error("revoke session after refresh token mismatch", zap.String("session_id", sess.ID), zap.Error(err))
	}
}

// Revoke revokes a session owned by requesterCustomerID. Revoking an already revoked session is a no-op.
func (s *Store) Revoke(ctx context.Context, sessionID, requesterCustomerID, reason string) error {
	sess, err := s.lookup(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.CustomerID != requesterCustomerID {
		return ErrForbidden
	}
	if sess.Revoked() {
		return nil
	}
	_, err = s.repo.Revoke(ctx, sessionID, reason, s.now())
	return err
}

// RevokeOthers revokes every active session of the customer except currentSessionID.
func (s *Store) RevokeOthers(ctx context.Context, currentSessionID, customerID string) (int64, error) {
	return s.repo.RevokeAllByCustomer(ctx, customerID, currentSessionID, domain.ReasonRevokedOthers, s.now())
}

// RevokeAll revokes every active session of the customer.
func (s *Store) RevokeAll(ctx context.Context, customerID string) (int64, error) {
	return s.repo.RevokeAllByCustomer(ctx, customerID, "", domain.ReasonRevokedAll, s.now())
}

// ListByCustomer returns all of the customer's sessions, most recent first, including revoked ones.
func (s *Store) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Session, error) {
	return s.repo.ListByCustomer(ctx, customerID)
}

// Get returns the session or ErrSessionNotFound.
func (s *Store) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.lookup(ctx, sessionID)
}

// CheckActive returns nil when the session exists, belongs to customerID and is neither revoked nor expired.
func (s *Store) CheckActive(ctx context.Context, sessionID, customerID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.CustomerID != customerID {
		return ErrForbidden
	}
	switch sess.Status(s.now()) {
	case domain.StatusRevoked:
		return ErrSessionRevoked
	case domain.StatusExpired:
		return ErrSessionExpired
	}
	return nil
}

// PurgeRevoked deletes sessions revoked or expired more than retention ago.
func (s *Store) PurgeRevoked(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.PurgeBefore(ctx, s.now().Add(-retention))
}

// Ping checks the session store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
