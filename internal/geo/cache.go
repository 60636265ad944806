package geo

import (
	"context"
	"encoding/json"
	"errors"
	"net/netip"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "geo:ip:"

// CachedSource is a Redis read-through cache in front of another Source. Misses are cached
// too, so unknown addresses do not hit the database repeatedly. Redis failures fall through
// to the underlying source.
type CachedSource struct {
	next   Source
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedSource wraps next with a cache of the given ttl.
func NewCachedSource(next Source, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedSource{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

// ConnectRedis parses url, creates a client and verifies connectivity.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func (c *CachedSource) Lookup(ctx context.Context, ip netip.Addr) (*Record, error) {
	key := cacheKeyPrefix + ip.String()
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var rec Record
		if jsonErr := json.Unmarshal(raw, &rec); jsonErr == nil {
			if rec == (Record{}) {
				return nil, nil
			}
			return &rec, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Debug("geo cache read failed", zap.Error(err))
	}

	rec, err := c.next.Lookup(ctx, ip)
	if err != nil {
		return nil, err
	}
	toStore := Record{}
	if rec != nil {
		toStore = *rec
	}
	if b, err := json.Marshal(toStore); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
			c.logger.Debug("geo cache write failed", zap.Error(err))
		}
	}
	return rec, nil
}
