package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"commerce-auth/backend/internal/session/domain"
)

const sessionColumns = `id, customer_id, device_id, device_name, user_agent, ip_address,
	country, province, district, latitude, longitude, geo_location,
	refresh_token_hash, refresh_expires_at, last_activity_at, revoked_at, revoked_reason,
	metadata, created_at, updated_at`

const upsertSessionSQL = `
INSERT INTO customer_sessions (` + sessionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NULL, NULL, $16, $17, $17)
ON CONFLICT (customer_id, device_id) WHERE revoked_at IS NULL DO UPDATE SET
	device_name = EXCLUDED.device_name,
	user_agent = EXCLUDED.user_agent,
	ip_address = EXCLUDED.ip_address,
	country = EXCLUDED.country,
	province = EXCLUDED.province,
	district = EXCLUDED.district,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	geo_location = EXCLUDED.geo_location,
	refresh_token_hash = EXCLUDED.refresh_token_hash,
	refresh_expires_at = EXCLUDED.refresh_expires_at,
	last_activity_at = EXCLUDED.last_activity_at,
	metadata = customer_sessions.metadata || EXCLUDED.metadata,
	updated_at = EXCLUDED.updated_at
RETURNING ` + sessionColumns

// PostgresRepository stores sessions in the customer_sessions table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM customer_sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// ListByCustomer returns all sessions for the customer, most recent activity first.
func (r *PostgresRepository) ListByCustomer(ctx context.Context, customerID string) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM customer_sessions
		WHERE customer_id = $1
		ORDER BY COALESCE(last_activity_at, created_at) DESC, created_at DESC`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// UpsertByDevice relies on the partial unique index over (customer_id, device_id) of non-revoked
// rows, so concurrent logins from one device converge on a single active session.
func (r *PostgresRepository) UpsertByDevice(ctx context.Context, s *domain.Session) (*domain.Session, error) {
	meta, err := encodeMetadata(s.Metadata)
	if err != nil {
		return nil, err
	}
	now := s.UpdatedAt
	if now.IsZero() {
		now = time.Now().UTC()
	}
	row := r.db.QueryRowContext(ctx, upsertSessionSQL, upsertArgs(s, meta, now)...)
	out, err := scanSession(row)
	if err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}
	return out, nil
}

// upsertArgs binds $1..$17 of upsertSessionSQL; $17 fills both created_at and updated_at.
func upsertArgs(s *domain.Session, meta []byte, now time.Time) []any {
	return []any{
		s.ID,
		s.CustomerID,
		nullString(s.DeviceID),
		nullString(s.DeviceName),
		nullString(s.UserAgent),
		nullString(s.IPAddress),
		nullString(s.Location.Country),
		nullString(s.Location.Province),
		nullString(s.Location.District),
		nullFloat(s.Location.Latitude),
		nullFloat(s.Location.Longitude),
		nullString(s.Location.GeoLocation),
		s.RefreshTokenHash,
		s.RefreshExpiresAt,
		timeToNullTime(s.LastActivityAt),
		meta,
		now,
	}
}

// RotateRefreshToken is a compare-and-swap on refresh_token_hash.
func (r *PostgresRepository) RotateRefreshToken(ctx context.Context, id, expectedHash, newHash string, expiresAt, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE customer_sessions
		SET refresh_token_hash = $3, refresh_expires_at = $4, last_activity_at = $5, updated_at = $5
		WHERE id = $1 AND refresh_token_hash = $2 AND revoked_at IS NULL`,
		id, expectedHash, newHash, expiresAt, now)
	if err != nil {
		return false, fmt.Errorf("rotate refresh token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Revoke marks the session revoked unless it already is.
func (r *PostgresRepository) Revoke(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE customer_sessions
		SET revoked_at = $2, revoked_reason = $3, updated_at = $2
		WHERE id = $1 AND revoked_at IS NULL`, id, at, reason)
	if err != nil {
		return false, fmt.Errorf("revoke session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RevokeAllByCustomer revokes the customer's active sessions, skipping exceptID when set.
func (r *PostgresRepository) RevokeAllByCustomer(ctx context.Context, customerID, exceptID, reason string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE customer_sessions
		SET revoked_at = $2, revoked_reason = $3, updated_at = $2
		WHERE customer_id = $1 AND revoked_at IS NULL AND ($4::uuid IS NULL OR id <> $4::uuid)`,
		customerID, at, reason, nullString(exceptID))
	if err != nil {
		return 0, fmt.Errorf("revoke customer sessions: %w", err)
	}
	return res.RowsAffected()
}

// PurgeBefore deletes sessions that were revoked or whose refresh window ended before cutoff.
func (r *PostgresRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM customer_sessions
		WHERE (revoked_at IS NOT NULL AND revoked_at < $1) OR refresh_expires_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return res.RowsAffected()
}

// Ping checks the database connection.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s                                        domain.Session
		deviceID, deviceName, userAgent, ip      sql.NullString
		country, province, district, geoLocation sql.NullString
		lat, long                                sql.NullFloat64
		lastActivity, revokedAt                  sql.NullTime
		revokedReason                            sql.NullString
		meta                                     []byte
	)
	err := row.Scan(
		&s.ID, &s.CustomerID, &deviceID, &deviceName, &userAgent, &ip,
		&country, &province, &district, &lat, &long, &geoLocation,
		&s.RefreshTokenHash, &s.RefreshExpiresAt, &lastActivity, &revokedAt, &revokedReason,
		&meta, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.DeviceID = deviceID.String
	s.DeviceName = deviceName.String
	s.UserAgent = userAgent.String
	s.IPAddress = ip.String
	s.Location = domain.Location{
		Country:     country.String,
		Province:    province.String,
		District:    district.String,
		Latitude:    nullFloatToPtr(lat),
		Longitude:   nullFloatToPtr(long),
		GeoLocation: geoLocation.String,
	}
	s.LastActivityAt = nullTimeToPtr(lastActivity)
	s.RevokedAt = nullTimeToPtr(revokedAt)
	s.RevokedReason = revokedReason.String
	if s.Metadata, err = decodeMetadata(meta); err != nil {
		return nil, err
	}
	return &s, nil
}

func encodeMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode session metadata: %w", err)
	}
	return b, nil
}

func decodeMetadata(b []byte) (map[string]any, error) {
	m := map[string]any{}
	if len(b) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode session metadata: %w", err)
	}
	return m, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullFloatToPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}
