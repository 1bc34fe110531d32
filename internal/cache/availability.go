// Package cache provides a Redis read-through layer over availability
// search. Redis being down never fails a request: every cache error falls
// back to a direct search.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"washplan/internal/metrics"
	"washplan/internal/models"
	"washplan/internal/scheduling"
)

// Searcher is the piece of the availability engine the cache wraps.
type Searcher interface {
	FindAvailable(ctx context.Context, req scheduling.SearchRequest, customerID int64, prefs *models.SchedulingPreferences) (*scheduling.SearchResult, error)
}

// AvailabilitySearchCache serves repeated availability queries from Redis.
type AvailabilitySearchCache struct {
	inner  Searcher
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewAvailabilitySearchCache wraps inner with a Redis cache. A nil client or
// non-positive ttl disables caching entirely.
func NewAvailabilitySearchCache(inner Searcher, rdb *redis.Client, ttl time.Duration, logger zerolog.Logger) *AvailabilitySearchCache {
	return &AvailabilitySearchCache{
		inner:  inner,
		redis:  rdb,
		ttl:    ttl,
		logger: logger.With().Str("component", "availability_cache").Logger(),
	}
}

// FindAvailable answers from cache when possible. Results with conflicts are
// cached too: the conflict is as stable as the slot list within the TTL.
func (c *AvailabilitySearchCache) FindAvailable(ctx context.Context, req scheduling.SearchRequest, customerID int64, prefs *models.SchedulingPreferences) (*scheduling.SearchResult, error) {
	if c.redis == nil || c.ttl <= 0 {
		metrics.IncCacheRequest("bypass")
		return c.inner.FindAvailable(ctx, req, customerID, prefs)
	}

	key, err := cacheKey(req, prefs)
	if err != nil {
		metrics.IncCacheRequest("bypass")
		return c.inner.FindAvailable(ctx, req, customerID, prefs)
	}

	if cached := c.read(ctx, key); cached != nil {
		metrics.IncCacheRequest("hit")
		return cached, nil
	}

	result, err := c.inner.FindAvailable(ctx, req, customerID, prefs)
	if err != nil {
		return nil, err
	}
	c.write(ctx, key, result)
	return result, nil
}

// Invalidate drops every cached availability answer. Called after any write
// that changes the slot picture: booking, cancel, block, walk-in.
func (c *AvailabilitySearchCache) Invalidate(ctx context.Context) {
	if c.redis == nil {
		return
	}
	iter := c.redis.Scan(ctx, 0, "availability:*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn().Err(err).Msg("Cache invalidation scan failed")
		return
	}
	if len(keys) > 0 {
		if err := c.redis.Del(ctx, keys...).Err(); err != nil {
			c.logger.Warn().Err(err).Msg("Cache invalidation delete failed")
		}
	}
}

func (c *AvailabilitySearchCache) read(ctx context.Context, key string) *scheduling.SearchResult {
	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		metrics.IncCacheRequest("miss")
		return nil
	}
	if err != nil {
		metrics.IncCacheRequest("error")
		c.logger.Warn().Err(err).Msg("Cache read failed, searching directly")
		return nil
	}
	var result scheduling.SearchResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		metrics.IncCacheRequest("error")
		return nil
	}
	return &result
}

func (c *AvailabilitySearchCache) write(ctx context.Context, key string, result *scheduling.SearchResult) {
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("Cache write failed")
	}
}

// cacheKey hashes the full request and preferences. Customer identity stays
// out of the key: two customers with identical queries share an answer.
func cacheKey(req scheduling.SearchRequest, prefs *models.SchedulingPreferences) (string, error) {
	payload, err := json.Marshal(struct {
		Req   scheduling.SearchRequest      `json:"req"`
		Prefs *models.SchedulingPreferences `json:"prefs,omitempty"`
	}{Req: req, Prefs: prefs})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("availability:%s", hex.EncodeToString(sum[:16])), nil
}
