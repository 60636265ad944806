package handler

import (
	"time"

	"commerce-auth/backend/internal/session/domain"
)

// LocationView is the advisory location of a session.
type LocationView struct {
	Country     string   `json:"country,omitempty"`
	Province    string   `json:"province,omitempty"`
	District    string   `json:"district,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	GeoLocation string   `json:"geo_location,omitempty"`
}

// View is the client-facing shape of a session. It never includes the refresh token hash.
type View struct {
	ID               string         `json:"id"`
	DeviceID         string         `json:"device_id,omitempty"`
	DeviceName       string         `json:"device_name,omitempty"`
	UserAgent        string         `json:"user_agent,omitempty"`
	IPAddress        string         `json:"ip_address,omitempty"`
	Location         *LocationView  `json:"location,omitempty"`
	Status           domain.Status  `json:"status"`
	Current          bool           `json:"current"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	RefreshExpiresAt time.Time      `json:"refresh_expires_at"`
	LastActivityAt   *time.Time     `json:"last_activity_at,omitempty"`
	RevokedAt        *time.Time     `json:"revoked_at,omitempty"`
	RevokedReason    string         `json:"revoked_reason,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// NewView renders s as seen at now. Current marks the session the request was made from.
func NewView(s *domain.Session, currentSessionID string, now time.Time) View {
	v := View{
		ID:               s.ID,
		DeviceID:         s.DeviceID,
		DeviceName:       s.DeviceName,
		UserAgent:        s.UserAgent,
		IPAddress:        s.IPAddress,
		Status:           s.Status(now),
		Current:          s.ID == currentSessionID,
		Metadata:         s.Metadata,
		RefreshExpiresAt: s.RefreshExpiresAt,
		LastActivityAt:   s.LastActivityAt,
		RevokedAt:        s.RevokedAt,
		RevokedReason:    s.RevokedReason,
		CreatedAt:        s.CreatedAt,
	}
	if !s.Location.Empty() {
		v.Location = &LocationView{
			Country:     s.Location.Country,
			Province:    s.Location.Province,
			District:    s.Location.District,
			Latitude:    s.Location.Latitude,
			Longitude:   s.Location.Longitude,
			GeoLocation: s.Location.GeoLocation,
		}
	}
	return v
}
