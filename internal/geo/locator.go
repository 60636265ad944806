// Package geo resolves advisory locations for client IP addresses.
package geo

import (
	"context"
	"net/netip"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Record is what a GeoIP source knows about an address.
type Record struct {
	Country   string  `json:"country,omitempty"`
	Region    string  `json:"region,omitempty"`
	City      string  `json:"city,omitempty"`
	Latitude  float64 `json:"lat,omitempty"`
	Longitude float64 `json:"long,omitempty"`
	HasCoords bool    `json:"has_coords,omitempty"`
}

// Source looks up an address in a GeoIP database. A nil record with nil error means unknown.
type Source interface {
	Lookup(ctx context.Context, ip netip.Addr) (*Record, error)
}

// Location is the resolved, display-ready location. The zero value means unknown.
type Location struct {
	Country   string
	Province  string
	District  string
	Latitude  *float64
	Longitude *float64
}

// Empty reports whether nothing is known.
func (l Location) Empty() bool {
	return l.Country == "" && l.Province == "" && l.District == "" && l.Latitude == nil && l.Longitude == nil
}

// Coordinates returns "lat,long" when both are known.
func (l Location) Coordinates() string {
	if l.Latitude == nil || l.Longitude == nil {
		return ""
	}
	return strconv.FormatFloat(*l.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(*l.Longitude, 'f', -1, 64)
}

// Locator turns client IPs into locations. It never fails: local addresses, parse errors and
// source errors all produce an empty Location.
type Locator struct {
	source Source
	logger *zap.Logger
}

// NewLocator returns a Locator over source. A nil source always yields empty locations.
func NewLocator(source Source, logger *zap.Logger) *Locator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locator{source: source, logger: logger}
}

// Lookup resolves ip. Loopback, private, link-local, unspecified and multicast addresses are
// never sent to the source.
func (l *Locator) Lookup(ctx context.Context, ip string) Location {
	addr, ok := PublicAddr(ip)
	if !ok || l.source == nil {
		return Location{}
	}
	rec, err := l.source.Lookup(ctx, addr)
	if err != nil {
		l.logger.Debug("geo lookup failed", zap.String("ip", addr.String()), zap.Error(err))
		return Location{}
	}
	if rec == nil {
		return Location{}
	}
	loc := Location{Country: rec.Country, Province: rec.Region, District: rec.City}
	if rec.HasCoords {
		lat, long := rec.Latitude, rec.Longitude
		loc.Latitude, loc.Longitude = &lat, &long
	}
	return loc
}

// PublicAddr parses ip and reports whether it is a globally routable address worth looking up.
func PublicAddr(ip string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return netip.Addr{}, false
	}
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() ||
		addr.IsUnspecified() || addr.IsMulticast() || addr.IsInterfaceLocalMulticast() {
		return netip.Addr{}, false
	}
	return addr, true
}
