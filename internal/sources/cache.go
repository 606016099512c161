package sources

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// absentDelay marks a cached "no delay known" answer.
const absentDelay = "N/A"

// stringCache is the part of cache.Cache[string] the decorator needs.
type stringCache interface {
	Get(ctx context.Context, key any) (string, error)
	Set(ctx context.Context, key any, object string, options ...store.Option) error
}

// CachedDelays answers delay lookups from a shared cache and falls through to
// the wrapped source on a miss. Both present and absent answers are cached;
// errors are not.
type CachedDelays struct {
	next  DelaySource
	cache stringCache
	log   zerolog.Logger
}

// NewRedisDelayCache wraps next with a Redis-backed cache whose entries live
// for ttl.
func NewRedisDelayCache(next DelaySource, client *redis.Client, ttl time.Duration, logger zerolog.Logger) *CachedDelays {
	redisStore := redisstore.NewRedis(client, store.WithExpiration(ttl))
	return newCachedDelays(next, cache.New[string](redisStore), logger)
}

func newCachedDelays(next DelaySource, c stringCache, logger zerolog.Logger) *CachedDelays {
	return &CachedDelays{
		next:  next,
		cache: c,
		log:   logger.With().Str("component", "delay-cache").Logger(),
	}
}

func (c *CachedDelays) Delay(ctx context.Context, tripID, stopID string) (int, bool, error) {
	key := fmt.Sprintf("stop_delay:%s:%s", tripID, stopID)

	if v, err := c.cache.Get(ctx, key); err == nil {
		if v == absentDelay {
			return 0, false, nil
		}
		if n, err := strconv.Atoi(v); err == nil {
			return n, true, nil
		}
		c.log.Warn().Str("key", key).Str("value", v).Msg("ignoring malformed cached delay")
	}

	seconds, ok, err := c.next.Delay(ctx, tripID, stopID)
	if err != nil {
		return 0, false, err
	}

	value := absentDelay
	if ok {
		value = strconv.Itoa(seconds)
	}
	if err := c.cache.Set(ctx, key, value); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("delay cache write failed")
	}
	return seconds, ok, nil
}
