package config

import "time"

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool     `env:"USE_CLUSTER"          envDefault:"false"`
}

// RoleCacheConfig controls the shared role record cache.
type RoleCacheConfig struct {
	// TTL is the freshness window for a cached role record.
	TTL time.Duration `env:"TTL" envDefault:"5m"`

	// LocalCapacity bounds the in-process tier.
	LocalCapacity int `env:"LOCAL_CAPACITY" envDefault:"4096"`

	// LocalTTL bounds the in-process tier; it is clamped to TTL.
	LocalTTL time.Duration `env:"LOCAL_TTL" envDefault:"30s"`
}

// Sanitize applies guardrails to role cache values.
func (c *RoleCacheConfig) Sanitize() {
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	if c.LocalCapacity <= 0 {
		c.LocalCapacity = 4096
	}
	if c.LocalTTL <= 0 || c.LocalTTL > c.TTL {
		c.LocalTTL = c.TTL
	}
}
