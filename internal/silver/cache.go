package silver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/enercast/enercast/internal/cache"
)

// DegreeDayCache is a read-through cache over ListDegreeDays. Every unit of
// a building run asks for the same station pivot, so hits dominate after
// the first unit. An in-process LRU answers first; an optional Redis layer
// (JSON values with TTL) is consulted before falling through to the store.
type DegreeDayCache struct {
	reader DegreeDayReader
	local  *cache.LRUWithTTL[string, []DegreeDayRecord]
	redis  *redis.Client
	ttl    time.Duration

	hits   prometheus.Counter
	misses prometheus.Counter
}

// WithCounters attaches hit/miss counters. Either may be nil.
func (c *DegreeDayCache) WithCounters(hits, misses prometheus.Counter) *DegreeDayCache {
	c.hits, c.misses = hits, misses
	return c
}

// NewDegreeDayCache wraps reader with an LRU of the given size. rdb may be
// nil for LRU-only operation.
func NewDegreeDayCache(reader DegreeDayReader, size int, ttl time.Duration, rdb *redis.Client) (*DegreeDayCache, error) {
	local, err := cache.NewLRUWithTTL[string, []DegreeDayRecord](size, ttl)
	if err != nil {
		return nil, fmt.Errorf("degree-day cache: %w", err)
	}
	return &DegreeDayCache{reader: reader, local: local, redis: rdb, ttl: ttl}, nil
}

func (c *DegreeDayCache) ListDegreeDays(ctx context.Context, stationID string, months []string) ([]DegreeDayRecord, error) {
	key := cacheKey(stationID, months)

	if recs, ok := c.local.Get(key); ok {
		c.count(c.hits)
		return recs, nil
	}

	if c.redis != nil {
		data, err := c.redis.Get(ctx, key).Result()
		if err == nil {
			var recs []DegreeDayRecord
			if err := json.Unmarshal([]byte(data), &recs); err == nil {
				c.local.Set(key, recs)
				c.count(c.hits)
				return recs, nil
			}
		}
		// redis.Nil and decode failures both fall through to the store
	}

	c.count(c.misses)
	recs, err := c.reader.ListDegreeDays(ctx, stationID, months)
	if err != nil {
		return nil, err
	}

	c.local.Set(key, recs)
	if c.redis != nil {
		if data, err := json.Marshal(recs); err == nil {
			c.redis.Set(ctx, key, data, c.ttl)
		}
	}
	return recs, nil
}

func (c *DegreeDayCache) count(counter prometheus.Counter) {
	if counter != nil {
		counter.Inc()
	}
}

// Stats exposes the local-layer hit counters.
func (c *DegreeDayCache) Stats() cache.Stats {
	return c.local.Stats()
}

func cacheKey(stationID string, months []string) string {
	span := ""
	if len(months) > 0 {
		span = months[0] + ".." + months[len(months)-1] + "." + fmt.Sprint(len(months))
	}
	return strings.Join([]string{"dju", stationID, span}, ":")
}
