package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/docuflow-inc/docuflow-engine/pkg/models"
)

const redisKeyPrefix = "ruleset:"

// RedisCache is a RuleSetCache backed by Redis, for deployments where several
// engine instances should share invalidations. Values are JSON-encoded rule
// sets with the cache TTL applied per key.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisCache creates a Redis-backed rule-set cache.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func redisKey(key Key) string {
	return redisKeyPrefix + key.String()
}

// Get returns the cached rule set for key. Redis errors are treated as
// cache misses and logged; the resolver rebuilds instead of failing.
func (c *RedisCache) Get(ctx context.Context, key Key) (*models.EffectiveRuleSet, bool) {
	payload, err := c.client.Get(ctx, redisKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Rule set cache read failed, treating as miss",
			zap.String("key", key.String()),
			zap.Error(err))
		return nil, false
	}

	var ruleSet models.EffectiveRuleSet
	if err := json.Unmarshal(payload, &ruleSet); err != nil {
		c.logger.Warn("Rule set cache entry is corrupt, dropping",
			zap.String("key", key.String()),
			zap.Error(err))
		c.client.Del(ctx, redisKey(key))
		return nil, false
	}
	return &ruleSet, true
}

// Set stores a rule set under key with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, key Key, ruleSet *models.EffectiveRuleSet) {
	payload, err := json.Marshal(ruleSet)
	if err != nil {
		c.logger.Warn("Failed to encode rule set for caching",
			zap.String("key", key.String()),
			zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, redisKey(key), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("Rule set cache write failed",
			zap.String("key", key.String()),
			zap.Error(err))
	}
}

// Invalidate drops the entry for key.
func (c *RedisCache) Invalidate(ctx context.Context, key Key) {
	if err := c.client.Del(ctx, redisKey(key)).Err(); err != nil {
		c.logger.Warn("Rule set cache invalidation failed",
			zap.String("key", key.String()),
			zap.Error(err))
	}
}

// InvalidateCompany drops every entry for one company.
func (c *RedisCache) InvalidateCompany(ctx context.Context, companyID uuid.UUID) {
	c.deletePattern(ctx, fmt.Sprintf("%s%s:*", redisKeyPrefix, companyID))
}

// InvalidateFormat drops every entry for one document format.
func (c *RedisCache) InvalidateFormat(ctx context.Context, formatID uuid.UUID) {
	c.deletePattern(ctx, fmt.Sprintf("%s*:%s", redisKeyPrefix, formatID))
}

// Clear drops every cached rule set.
func (c *RedisCache) Clear(ctx context.Context) {
	c.deletePattern(ctx, redisKeyPrefix+"*")
}

// deletePattern scans for keys matching pattern and deletes them.
func (c *RedisCache) deletePattern(ctx context.Context, pattern string) {
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Warn("Rule set cache delete failed",
				zap.String("key", iter.Val()),
				zap.Error(err))
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("Rule set cache scan failed",
			zap.String("pattern", pattern),
			zap.Error(err))
	}
}
