package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
)

// RoleCache is the shared tier of the role cache, visible to every portal process.
type RoleCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRoleCache creates a Redis-backed role cache.
func NewRoleCache(client redis.UniversalClient) *RoleCache {
	return &RoleCache{client: client, prefix: "role:"}
}

// Get returns the cached record for key; ok is false on a miss.
func (c *RoleCache) Get(ctx context.Context, key string) (domainauth.RoleRecord, bool, error) {
	if key == "" {
		return domainauth.RoleRecord{}, false, errors.New("key cannot be empty")
	}

	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.RoleRecord{}, false, nil
		}
		return domainauth.RoleRecord{}, false, fmt.Errorf("redis get: %w", err)
	}

	var rec domainauth.RoleRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domainauth.RoleRecord{}, false, fmt.Errorf("unmarshal role: %w", err)
	}
	return rec, true, nil
}

// Set stores rec under its key for ttl.
func (c *RoleCache) Set(ctx context.Context, rec domainauth.RoleRecord, ttl time.Duration) error {
	if rec.Key == "" {
		return errors.New("key cannot be empty")
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal role: %w", err)
	}
	return c.client.Set(ctx, c.prefix+rec.Key, data, ttl).Err()
}

// Delete drops the cached record for key.
func (c *RoleCache) Delete(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
