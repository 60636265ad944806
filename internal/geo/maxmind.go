package geo

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/oschwald/geoip2-golang"
)

// MaxMindSource reads a GeoLite2/GeoIP2 City database.
type MaxMindSource struct {
	reader *geoip2.Reader
	lang   string
}

// OpenMaxMind opens the .mmdb file at path. Caller must call Close when done.
func OpenMaxMind(path string) (*MaxMindSource, error) {
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &MaxMindSource{reader: r, lang: "en"}, nil
}

// Lookup returns the city record for ip, or nil when the database has no country for it.
func (m *MaxMindSource) Lookup(ctx context.Context, ip netip.Addr) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	city, err := m.reader.City(net.IP(ip.AsSlice()))
	if err != nil {
		return nil, err
	}
	if city.Country.IsoCode == "" && len(city.City.Names) == 0 {
		return nil, nil
	}
	rec := &Record{
		Country: city.Country.Names[m.lang],
		City:    city.City.Names[m.lang],
	}
	if rec.Country == "" {
		rec.Country = city.Country.IsoCode
	}
	if len(city.Subdivisions) > 0 {
		rec.Region = city.Subdivisions[0].Names[m.lang]
	}
	if city.Location.Latitude != 0 || city.Location.Longitude != 0 {
		rec.Latitude = city.Location.Latitude
		rec.Longitude = city.Location.Longitude
		rec.HasCoords = true
	}
	return rec, nil
}

// Close releases the database.
func (m *MaxMindSource) Close() error {
	return m.reader.Close()
}
