package config

import (
	"strings"
	"time"
)

// DefaultBlockedSignal matches the backend's "user is blocked" error payload.
const DefaultBlockedSignal = "message == 'user is blocked'"

// BackendConfig describes the external issue backend.
type BackendConfig struct {
	// BaseURL is the REST API root (e.g., "https://issues.example.com").
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:5000"`

	// Timeout bounds a single backend request.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to backend configuration values.
func (b *BackendConfig) Sanitize() {
	b.BaseURL = strings.TrimRight(strings.TrimSpace(b.BaseURL), "/")
	if b.Timeout <= 0 {
		b.Timeout = 10 * time.Second
	}
}

// GatewayConfig controls how the authenticated request gateway treats credentials
// and authorization failures.
type GatewayConfig struct {
	// BlockedSignal is a JMESPath expression evaluated against a 403 JSON body.
	// A truthy result marks the account as blocked.
	BlockedSignal string `env:"BLOCKED_SIGNAL" envDefault:"message == 'user is blocked'"`

	// SignOutOnForbidden forces sign-out on any 403, not only the blocked signal.
	// Set it to false to surface a plain 403 as access denied and keep the session.
	SignOutOnForbidden bool `env:"SIGN_OUT_ON_FORBIDDEN" envDefault:"true"`

	// TokenRefreshSkew re-mints the backend credential this long before it expires.
	TokenRefreshSkew time.Duration `env:"TOKEN_REFRESH_SKEW" envDefault:"1m"`

	// TokenFallbackTTL is used for minted tokens without a readable expiry.
	TokenFallbackTTL time.Duration `env:"TOKEN_FALLBACK_TTL" envDefault:"1h"`
}

// Sanitize applies guardrails to gateway configuration values.
func (g *GatewayConfig) Sanitize() {
	g.BlockedSignal = strings.TrimSpace(g.BlockedSignal)
	if g.BlockedSignal == "" {
		g.BlockedSignal = DefaultBlockedSignal
	}
	if g.TokenRefreshSkew < 0 {
		g.TokenRefreshSkew = 0
	}
	if g.TokenFallbackTTL <= 0 {
		g.TokenFallbackTTL = time.Hour
	}
}
