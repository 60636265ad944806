package telemetry

import "time"

// Security event types.
const (
	EventLoginSucceeded    = "auth.login_succeeded"
	EventLoginFailed       = "auth.login_failed"
	EventTokenRefreshed    = "auth.token_refreshed"
	EventRefreshRejected   = "auth.refresh_rejected"
	EventRefreshTokenReuse = "auth.refresh_token_reuse"
	EventSessionRevoked    = "auth.session_revoked"
	EventLogout            = "auth.logout"
)

// Event is an authentication security event. Never carries passwords or raw tokens.
type Event struct {
	Type          string    `json:"type"`
	PrincipalType string    `json:"principal_type,omitempty"`
	SubjectID     string    `json:"subject_id,omitempty"`
	SessionID     string    `json:"session_id,omitempty"`
	DeviceID      string    `json:"device_id,omitempty"`
	IP            string    `json:"ip,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	Count         int64     `json:"count,omitempty"`
	At            time.Time `json:"at"`
}
