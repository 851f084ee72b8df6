package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cacheKeyPrefix = "calendar:events:"

// ErrCacheMiss is returned by a Cache when a key is absent.
var ErrCacheMiss = errors.New("cache miss")

// Cache stores serialized listings.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache is a Cache on a go-redis client.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the cached value or ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return b, err
}

// Set stores value for ttl.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// CachedLister serves upcoming events from a cache, refreshing from the
// underlying Lister when the entry expires. Cache failures fall through to the Lister.
type CachedLister struct {
	next   Lister
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewCachedLister wraps next with cache.
func NewCachedLister(next Lister, cache Cache, ttl time.Duration, logger *zap.Logger) *CachedLister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedLister{next: next, cache: cache, ttl: ttl, logger: logger, now: time.Now}
}

// ListUpcoming returns the cached listing for calendarID and max, ignoring from
// within one TTL window so every caller in the window shares one entry.
func (l *CachedLister) ListUpcoming(ctx context.Context, calendarID string, from time.Time, max int) ([]Event, error) {
	key := fmt.Sprintf("%s%s:%d", cacheKeyPrefix, calendarID, max)
	if raw, err := l.cache.Get(ctx, key); err == nil {
		var events []Event
		if err := json.Unmarshal(raw, &events); err == nil {
			return upcoming(events, from), nil
		}
	} else if !errors.Is(err, ErrCacheMiss) {
		l.logger.Warn("events cache read failed", zap.Error(err))
	}

	events, err := l.next.ListUpcoming(ctx, calendarID, from, max)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(events); err == nil {
		if err := l.cache.Set(ctx, key, raw, l.ttl); err != nil {
			l.logger.Warn("events cache write failed", zap.Error(err))
		}
	}
	return events, nil
}

// upcoming drops cached events that ended before from.
func upcoming(events []Event, from time.Time) []Event {
	out := events[:0]
	for _, ev := range events {
		if !ev.End.IsZero() && ev.End.Before(from) {
			continue
		}
		out = append(out, ev)
	}
	return out
}
