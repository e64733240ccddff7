package authz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "authz:perms:version"

// Cache memoizes effective permission sets in Redis, keyed by principal
// identifier, with a bounded TTL. Entries are derived and expendable: a full
// invalidation bumps a version counter, orphaning every existing entry
// without scanning the keyspace.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached permission set for a principal. The bool result is
// false on a miss. A store failure surfaces as an error so the caller can
// degrade to direct resolution.
func (c *Cache) Get(ctx context.Context, principalID int64) (PermissionSet, bool, error) {
	key, err := c.entryKey(ctx, principalID)
	if err != nil {
		return nil, false, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("authz cache get: %w", err)
	}
	var names []string
	if err := json.Unmarshal(payload, &names); err != nil {
		return nil, false, fmt.Errorf("authz cache decode: %w", err)
	}
	return NewPermissionSet(names...), true, nil
}

// Set stores the permission set for a principal under the configured TTL.
func (c *Cache) Set(ctx context.Context, principalID int64, set PermissionSet) error {
	key, err := c.entryKey(ctx, principalID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(set.Names())
	if err != nil {
		return fmt.Errorf("authz cache encode: %w", err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("authz cache set: %w", err)
	}
	return nil
}

// Invalidate removes the cached entry for a principal. Deleting an absent
// entry is not an error; the operation is idempotent.
func (c *Cache) Invalidate(ctx context.Context, principalID int64) error {
	key, err := c.entryKey(ctx, principalID)
	if err != nil {
		return err
	}
	if err := c.client.Del(ctx, key).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("authz cache invalidate: %w", err)
	}
	return nil
}

// InvalidateAll orphans every cached entry by bumping the version counter.
// Orphaned entries expire through their TTL.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	if err := c.client.Incr(ctx, cacheVersionKey).Err(); err != nil {
		return fmt.Errorf("authz cache invalidate all: %w", err)
	}
	return nil
}

func (c *Cache) entryKey(ctx context.Context, principalID int64) (string, error) {
	ver, err := c.version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("authz:perms:v%d:%d", ver, principalID), nil
}

func (c *Cache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, fmt.Errorf("authz cache version init: %w", err)
		}
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("authz cache version: %w", err)
	}
	return ver, nil
}
