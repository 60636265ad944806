package device

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

const (
	idLength         = 32
	maxDeviceIDLen   = 128
	maxDeviceNameLen = 255
	unknownName      = "Unknown device"
)

// Context is what the client told us about itself at login.
type Context struct {
	UserAgent  string
	IP         string
	DeviceID   string // optional, client-supplied
	DeviceName string // optional, client-supplied
}

// Device is the resolved identity of a login device.
type Device struct {
	ID    string
	Name  string
	Agent Agent
}

// Fingerprint resolves the device id and display name for c. Client-supplied values win;
// otherwise the id is derived deterministically so the same device on the same network
// maps to the same session.
func Fingerprint(c Context) Device {
	agent := ParseUserAgent(c.UserAgent)
	id := strings.TrimSpace(c.DeviceID)
	if id == "" || len(id) > maxDeviceIDLen {
		id = DeriveID(c.UserAgent, c.IP, agent)
	}
	name := strings.TrimSpace(c.DeviceName)
	if name == "" {
		name = DisplayName(agent)
	}
	return Device{ID: id, Name: truncate(name, maxDeviceNameLen), Agent: agent}
}

// DeriveID returns the first 32 hex characters of SHA-256 over the user agent, IP and parsed
// vendor, model, browser and OS.
func DeriveID(userAgent, ip string, a Agent) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		strings.TrimSpace(userAgent),
		strings.TrimSpace(ip),
		a.Vendor,
		a.Model,
		a.Browser,
		a.OS,
	}, "|")))
	return hex.EncodeToString(sum[:])[:idLength]
}

// DisplayName is "<vendor> <model>", else "<browser> on <OS>", else a generic label.
func DisplayName(a Agent) string {
	switch {
	case a.Vendor != "" && a.Model != "":
		return a.Vendor + " " + a.Model
	case a.Browser != "" && a.OS != "":
		return a.Browser + " on " + a.OS
	case a.Browser != "":
		return a.Browser
	default:
		return unknownName
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
