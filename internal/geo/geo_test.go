package geo

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeSource struct {
	mu    sync.Mutex
	calls int
	rec   *Record
	err   error
}

func (f *fakeSource) Lookup(ctx context.Context, ip netip.Addr) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.rec, f.err
}

func berlin() *Record {
	return &Record{Country: "Germany", Region: "Land Berlin", City: "Berlin", Latitude: 52.52, Longitude: 13.405, HasCoords: true}
}

func TestLocator_LocalAddressesShortCircuit(t *testing.T) {
	src := &fakeSource{rec: berlin()}
	l := NewLocator(src, nil)
	for _, ip := range []string{
		"127.0.0.1", "::1", "10.1.2.3", "172.16.0.1", "172.31.255.254", "192.168.1.10",
		"169.254.1.1", "fe80::1", "fd00::1", "0.0.0.0", "::", "224.0.0.1", "::ffff:192.168.0.1",
		"", "not-an-ip", "300.1.1.1",
	} {
		if loc := l.Lookup(context.Background(), ip); !loc.Empty() {
			t.Errorf("Lookup(%q) = %+v, want empty", ip, loc)
		}
	}
	if src.calls != 0 {
		t.Errorf("source called %d times for local addresses", src.calls)
	}
}

func TestLocator_PublicAddress(t *testing.T) {
	src := &fakeSource{rec: berlin()}
	l := NewLocator(src, nil)
	loc := l.Lookup(context.Background(), "172.32.0.1")
	if loc.Country != "Germany" || loc.Province != "Land Berlin" || loc.District != "Berlin" {
		t.Errorf("loc = %+v", loc)
	}
	if loc.Latitude == nil || *loc.Latitude != 52.52 || loc.Longitude == nil || *loc.Longitude != 13.405 {
		t.Errorf("coords = %v,%v", loc.Latitude, loc.Longitude)
	}
	if got := loc.Coordinates(); got != "52.52,13.405" {
		t.Errorf("Coordinates() = %q", got)
	}
}

func TestLocator_FailuresDegradeToEmpty(t *testing.T) {
	ctx := context.Background()
	if loc := NewLocator(&fakeSource{err: errors.New("db closed")}, nil).Lookup(ctx, "8.8.8.8"); !loc.Empty() {
		t.Errorf("source error: got %+v", loc)
	}
	if loc := NewLocator(&fakeSource{}, nil).Lookup(ctx, "8.8.8.8"); !loc.Empty() {
		t.Errorf("unknown address: got %+v", loc)
	}
	if loc := NewLocator(nil, nil).Lookup(ctx, "8.8.8.8"); !loc.Empty() {
		t.Errorf("nil source: got %+v", loc)
	}
}

func TestLocator_NoCoordinates(t *testing.T) {
	loc := NewLocator(&fakeSource{rec: &Record{Country: "France"}}, nil).Lookup(context.Background(), "2001:db8::1")
	if loc.Country != "France" || loc.Latitude != nil || loc.Coordinates() != "" {
		t.Errorf("loc = %+v", loc)
	}
}

func TestCachedSource_FallsThroughWhenRedisIsDown(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	src := &fakeSource{rec: berlin()}
	cached := NewCachedSource(src, rdb, time.Hour, nil)

	rec, err := cached.Lookup(context.Background(), netip.MustParseAddr("8.8.8.8"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rec == nil || rec.City != "Berlin" {
		t.Errorf("rec = %+v", rec)
	}
	if src.calls != 1 {
		t.Errorf("source calls = %d, want 1", src.calls)
	}

	src.err = errors.New("boom")
	if _, err := cached.Lookup(context.Background(), netip.MustParseAddr("8.8.4.4")); err == nil {
		t.Error("source error must propagate through the cache")
	}
}
