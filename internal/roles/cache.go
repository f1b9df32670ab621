package roles

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	"github.com/civicwatch/portal/internal/ports"
)

// CacheConfig groups constructor options for Cache.
type CacheConfig struct {
	// TTL is the freshness window of the shared tier.
	TTL time.Duration
	// LocalCapacity and LocalTTL size the process-local tier; LocalTTL is capped at TTL.
	LocalCapacity int
	LocalTTL      time.Duration
	Logger        *slog.Logger
}

// Cache is the role cache shared by every portal client: a process-local
// expirable LRU in front of an optional shared store.
// Every Invalidate bumps the key's version; a write carrying an older version
// is dropped so a lookup that raced an invalidation cannot restore stale facts.
// Concurrency: methods are safe for concurrent use.
type Cache struct {
	local  *expirable.LRU[string, domainauth.RoleRecord]
	shared ports.RoleCache
	ttl    time.Duration
	logger *slog.Logger

	mu       sync.Mutex
	versions map[string]uint64
}

// NewCache creates a Cache. shared may be nil for a local-only cache.
func NewCache(shared ports.RoleCache, cfg CacheConfig) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	localTTL := cfg.LocalTTL
	if localTTL <= 0 || localTTL > ttl {
		localTTL = ttl
	}
	capacity := cfg.LocalCapacity
	if capacity <= 0 {
		capacity = 4096
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		local:  expirable.NewLRU[string, domainauth.RoleRecord](capacity, nil, localTTL),
		shared: shared,
		ttl:      ttl,
		logger:   logger,
		versions: make(map[string]uint64),
	}
}

// Lookup returns a fresh record for key. Shared-tier errors are logged and treated as a miss.
func (c *Cache) Lookup(ctx context.Context, key string) (domainauth.RoleRecord, bool) {
	if rec, ok := c.local.Get(key); ok {
		return rec, true
	}
	if c.shared == nil {
		return domainauth.RoleRecord{}, false
	}
	rec, ok, err := c.shared.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "shared role cache lookup failed", "key", key, "error", err)
		return domainauth.RoleRecord{}, false
	}
	if !ok {
		return domainauth.RoleRecord{}, false
	}
	c.local.Add(key, rec)
	return rec, true
}

// Version returns the invalidation version of key. Capture it before fetching
// and hand it to StoreIf.
func (c *Cache) Version(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[key]
}

// Store writes rec to both tiers at the key's current version.
func (c *Cache) Store(ctx context.Context, rec domainauth.RoleRecord) {
	c.StoreIf(ctx, rec, c.Version(rec.Key))
}

// StoreIf writes rec to both tiers unless key was invalidated since version was
// read. It reports whether the record was kept.
func (c *Cache) StoreIf(ctx context.Context, rec domainauth.RoleRecord, version uint64) bool {
	c.mu.Lock()
	if c.versions[rec.Key] != version {
		c.mu.Unlock()
		return false
	}
	c.local.Add(rec.Key, rec)
	c.mu.Unlock()

	if c.shared == nil {
		return true
	}
	if err := c.shared.Set(ctx, rec, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "shared role cache write failed", "key", rec.Key, "error", err)
		return true
	}
	// An invalidation may have deleted the shared entry while the write was in flight.
	if c.Version(rec.Key) != version {
		c.local.Remove(rec.Key)
		if err := c.shared.Delete(ctx, rec.Key); err != nil {
			c.logger.WarnContext(ctx, "shared role cache rollback failed", "key", rec.Key, "error", err)
		}
		return false
	}
	return true
}

// Invalidate drops key from both tiers and bumps its version.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	c.versions[key]++
	c.local.Remove(key)
	c.mu.Unlock()
	if c.shared == nil {
		return nil
	}
	return c.shared.Delete(ctx, key)
}
