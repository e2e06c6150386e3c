package policy

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	activeCacheKey     = "policy:active"
	generationCacheKey = "policy:generation"
)

// activeCache is what Service needs from the active-version cache. A fill is
// only stored when the generation observed before the database read is still
// current, so a reader that raced an activation cannot put the old version back.
type activeCache interface {
	get(ctx context.Context) (*Version, bool)
	generation(ctx context.Context) (int64, bool)
	setIfGeneration(ctx context.Context, gen int64, v *Version)
	invalidate(ctx context.Context)
}

// Cache keeps the active version in Redis so hot paths (apply, claims) skip the
// policy_versions read. A nil client disables it.
type Cache struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates the active-policy cache
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{redis: client, ttl: ttl}
}

func (c *Cache) get(ctx context.Context) (*Version, bool) {
	if c == nil || c.redis == nil {
		return nil, false
	}
	raw, err := c.redis.Get(ctx, activeCacheKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Msg("policy cache read failed")
		}
		return nil, false
	}
	var v Version
	if err := json.Unmarshal(raw, &v); err != nil {
		log.Warn().Err(err).Msg("policy cache entry corrupt")
		return nil, false
	}
	return &v, true
}

func (c *Cache) generation(ctx context.Context) (int64, bool) {
	if c == nil || c.redis == nil {
		return 0, false
	}
	gen, err := c.redis.Get(ctx, generationCacheKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		log.Warn().Err(err).Msg("policy cache generation read failed")
		return 0, false
	}
	return gen, true
}

func (c *Cache) setIfGeneration(ctx context.Context, gen int64, v *Version) {
	if c == nil || c.redis == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}

	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, generationCacheKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, activeCacheKey, raw, c.ttl)
			return nil
		})
		return err
	}, generationCacheKey)
	if err != nil && !errors.Is(err, redis.TxFailedErr) {
		log.Warn().Err(err).Msg("policy cache write failed")
	}
}

func (c *Cache) invalidate(ctx context.Context) {
	if c == nil || c.redis == nil {
		return
	}
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationCacheKey)
		pipe.Del(ctx, activeCacheKey)
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("policy cache invalidation failed")
	}
}
