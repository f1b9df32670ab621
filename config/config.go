package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Identity provider configuration
//   - backend.go: Issue backend and request gateway configuration
//   - database.go: Redis and role cache configuration
//   - http.go: HTTP server and route guard configuration
//   - observability.go: Metrics configuration
type AppConfig struct {
	// IsDev controls development mode behavior (insecure cookies, verbose logs).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Identity provider configuration
	Auth AuthConfig

	// External issue backend and the authenticated request gateway
	Backend BackendConfig `envPrefix:"BACKEND_"`
	Gateway GatewayConfig `envPrefix:"GATEWAY_"`

	// Storage and caching
	Redis     RedisConfig     `envPrefix:"REDIS_"`
	RoleCache RoleCacheConfig `envPrefix:"ROLE_CACHE_"`

	// HTTP server and guard configuration
	HTTP  HTTPConfig
	Guard GuardConfig `envPrefix:"GUARD_"`

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Guard.Sanitize()
	c.Backend.Sanitize()
	c.Gateway.Sanitize()
	c.RoleCache.Sanitize()
	c.Auth.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}
