package permissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cache stores resolved sets per (user, event).
type Cache interface {
	Get(ctx context.Context, userID, eventID uuid.UUID) (Set, bool, error)
	Set(ctx context.Context, userID, eventID uuid.UUID, s Set) error
	Invalidate(ctx context.Context, userID, eventID uuid.UUID) error
}

// RedisCache keeps sets as JSON arrays under perms:{user}:{event}.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache creates a cache with the given TTL.
func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func cacheKey(userID, eventID uuid.UUID) string {
	return fmt.Sprintf("perms:%s:%s", userID, eventID)
}

// Get returns the cached set, if any.
func (c *RedisCache) Get(ctx context.Context, userID, eventID uuid.UUID) (Set, bool, error) {
	raw, err := c.rdb.Get(ctx, cacheKey(userID, eventID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var keys []Key
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, false, err
	}
	return NewSet(keys...), true, nil
}

// Set stores s.
func (c *RedisCache) Set(ctx context.Context, userID, eventID uuid.UUID, s Set) error {
	raw, err := json.Marshal(s.Keys())
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, cacheKey(userID, eventID), raw, c.ttl).Err()
}

// Invalidate drops the cached set.
func (c *RedisCache) Invalidate(ctx context.Context, userID, eventID uuid.UUID) error {
	return c.rdb.Del(ctx, cacheKey(userID, eventID)).Err()
}
