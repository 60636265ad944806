package repository

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"commerce-auth/backend/internal/session/domain"
)

// MemoryRepository is an in-process Repository for tests and local development.
// A single mutex makes every method atomic, matching the single-statement guarantees of the SQL stores.
type MemoryRepository struct {
	mu sync.Mutex
	m  map[string]*domain.Session
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]*domain.Session)}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	return clone(s), nil
}

func (r *MemoryRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.m {
		if s.CustomerID == customerID {
			out = append(out, clone(s))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return activity(out[i]).After(activity(out[j]))
	})
	return out, nil
}

func (r *MemoryRepository) UpsertByDevice(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.DeviceID != "" {
		for _, existing := range r.m {
			if existing.CustomerID != s.CustomerID || existing.DeviceID != s.DeviceID || existing.Revoked() {
				continue
			}
			updated := clone(s)
			updated.ID = existing.ID
			updated.CreatedAt = existing.CreatedAt
			updated.Metadata = make(map[string]any, len(existing.Metadata)+len(s.Metadata))
			maps.Copy(updated.Metadata, existing.Metadata)
			maps.Copy(updated.Metadata, s.Metadata)
			r.m[existing.ID] = updated
			return clone(updated), nil
		}
	}
	stored := clone(s)
	if stored.Metadata == nil {
		stored.Metadata = map[string]any{}
	}
	r.m[s.ID] = stored
	return clone(stored), nil
}

func (r *MemoryRepository) RotateRefreshToken(ctx context.Context, id, expectedHash, newHash string, expiresAt, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[id]
	if !ok || s.Revoked() || s.RefreshTokenHash != expectedHash {
		return false, nil
	}
	s.RefreshTokenHash = newHash
	s.RefreshExpiresAt = expiresAt
	s.LastActivityAt = &now
	s.UpdatedAt = now
	return true, nil
}

func (r *MemoryRepository) Revoke(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.m[id]
	if !ok || s.Revoked() {
		return false, nil
	}
	s.RevokedAt = &at
	s.RevokedReason = reason
	s.UpdatedAt = at
	return true, nil
}

func (r *MemoryRepository) RevokeAllByCustomer(ctx context.Context, customerID, exceptID, reason string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.m {
		if s.CustomerID != customerID || s.Revoked() || (exceptID != "" && id == exceptID) {
			continue
		}
		t := at
		s.RevokedAt = &t
		s.RevokedReason = reason
		s.UpdatedAt = at
		n++
	}
	return n, nil
}

func (r *MemoryRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.m {
		if (s.RevokedAt != nil && s.RevokedAt.Before(cutoff)) || s.RefreshExpiresAt.Before(cutoff) {
			delete(r.m, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) Ping(ctx context.Context) error { return nil }

func activity(s *domain.Session) time.Time {
	if s.LastActivityAt != nil {
		return *s.LastActivityAt
	}
	return s.CreatedAt
}

func clone(s *domain.Session) *domain.Session {
	c := *s
	if s.Metadata != nil {
		c.Metadata = maps.Clone(s.Metadata)
	}
	if s.RevokedAt != nil {
		t := *s.RevokedAt
		c.RevokedAt = &t
	}
	if s.LastActivityAt != nil {
		t := *s.LastActivityAt
		c.LastActivityAt = &t
	}
	return &c
}
