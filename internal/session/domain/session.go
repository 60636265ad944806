package domain

import "time"

// Revocation reasons recorded in revoked_reason.
const (
	ReasonLogout            = "logout"
	ReasonRevokedByCustomer = "revoked_by_customer"
	ReasonRevokedOthers     = "revoked_other_sessions"
	ReasonRevokedAll        = "revoked_all_sessions"
	ReasonRefreshTokenReuse = "refresh_token_reuse_or_invalid"
)

// Status is the lifecycle state of a session. Expired is derived from RefreshExpiresAt and never stored.
type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// Location is advisory geolocation derived from the client IP.
type Location struct {
	Country     string
	Province    string
	District    string
	Latitude    *float64
	Longitude   *float64
	GeoLocation string // "lat,long" when both coordinates are known
}

// Empty reports whether no location field is set.
func (l Location) Empty() bool {
	return l.Country == "" && l.Province == "" && l.District == "" &&
		l.Latitude == nil && l.Longitude == nil && l.GeoLocation == ""
}

// Session is one customer's authenticated device. Empty strings are stored as NULL.
type Session struct {
	ID               string
	CustomerID       string
	DeviceID         string
	DeviceName       string
	UserAgent        string
	IPAddress        string
	Location         Location
	RefreshTokenHash string // SHA-256 hex of the current refresh token; never the raw token
	RefreshExpiresAt time.Time
	LastActivityAt   *time.Time
	RevokedAt        *time.Time // nil when not revoked
	RevokedReason    string
	Metadata         map[string]any
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Revoked reports whether the session has been revoked.
func (s *Session) Revoked() bool {
	return s.RevokedAt != nil
}

// Expired reports whether the refresh window has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.RefreshExpiresAt)
}

// Status returns the session state at now. Revocation takes precedence over expiry.
func (s *Session) Status(now time.Time) Status {
	switch {
	case s.Revoked():
		return StatusRevoked
	case s.Expired(now):
		return StatusExpired
	default:
		return StatusActive
	}
}
