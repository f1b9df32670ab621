package config

import (
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppConfig_ParseEnv(t *testing.T) {
	t.Setenv("AUTH_MODE", "oauth")
	t.Setenv("OAUTH_CLIENT_ID", "portal")
	t.Setenv("OAUTH_CLIENT_SECRET", "super-secret")
	t.Setenv("OAUTH_DISCOVERY_URL", "https://login.example.com/.well-known/openid-configuration")
	t.Setenv("BACKEND_BASE_URL", "https://issues.example.com/ ")
	t.Setenv("GATEWAY_SIGN_OUT_ON_FORBIDDEN", "false")
	t.Setenv("ROLE_CACHE_TTL", "2m")
	t.Setenv("GUARD_SETTLE_TIMEOUT", "750ms")

	var cfg AppConfig
	require.NoError(t, env.Parse(&cfg))
	cfg.Sanitize()

	assert.Equal(t, AuthModeOAuth, cfg.Auth.Mode)
	assert.Equal(t, "portal", cfg.Auth.OAuth.ClientID)
	assert.Equal(t, "http://localhost:8080/auth/callback", cfg.Auth.OAuth.RedirectURL)
	assert.Equal(t, "https://issues.example.com", cfg.Backend.BaseURL)
	assert.False(t, cfg.Gateway.SignOutOnForbidden)
	assert.Equal(t, DefaultBlockedSignal, cfg.Gateway.BlockedSignal)
	assert.Equal(t, 2*time.Minute, cfg.RoleCache.TTL)
	assert.Equal(t, 30*time.Second, cfg.RoleCache.LocalTTL)
	assert.Equal(t, 750*time.Millisecond, cfg.Guard.SettleTimeout)
	assert.Equal(t, 12*time.Hour, cfg.Auth.SessionTTL)
}

func TestGatewayConfig_Defaults(t *testing.T) {
	var cfg GatewayConfig
	require.NoError(t, env.Parse(&cfg))

	assert.True(t, cfg.SignOutOnForbidden, "any 403 ends the session unless opted out")
	assert.Equal(t, DefaultBlockedSignal, cfg.BlockedSignal)
	assert.Equal(t, time.Minute, cfg.TokenRefreshSkew)
}

func TestAuthMode_UnmarshalText(t *testing.T) {
	var mode AuthMode
	require.NoError(t, mode.UnmarshalText([]byte("MOCK")))
	assert.Equal(t, AuthModeMock, mode)

	err := mode.UnmarshalText([]byte("saml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid AuthMode")
}

func TestDevAuthConfig_ParseUsers(t *testing.T) {
	cfg := DevAuthConfig{Users: []string{
		"Admin@Example.com:pw:Ada Admin",
		"staff@example.com:pw",
		"broken-entry",
		":pw",
	}}

	users := cfg.ParseUsers()

	require.Len(t, users, 2)
	assert.Equal(t, DevUser{Email: "admin@example.com", Password: "pw", DisplayName: "Ada Admin"}, users[0])
	assert.Equal(t, DevUser{Email: "staff@example.com", Password: "pw"}, users[1])
}

func TestHTTPConfig_Sanitize(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		want   string
	}{
		{name: "registrable domain kept", domain: "portal.example.com", want: "portal.example.com"},
		{name: "leading dot stripped", domain: ".Example.com", want: "example.com"},
		{name: "public suffix rejected", domain: "co.uk", want: ""},
		{name: "empty stays empty", domain: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := HTTPConfig{CookieDomain: tt.domain}
			cfg.Sanitize()
			assert.Equal(t, tt.want, cfg.CookieDomain)
			assert.Equal(t, 5, cfg.LoginBurst)
		})
	}
}

func TestRoleCacheConfig_Sanitize(t *testing.T) {
	cfg := RoleCacheConfig{TTL: time.Minute, LocalTTL: 10 * time.Minute}
	cfg.Sanitize()

	assert.Equal(t, time.Minute, cfg.LocalTTL)
	assert.Equal(t, 4096, cfg.LocalCapacity)
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{Enabled: true, StatsdAddress: " "}
	cfg.Sanitize()
	assert.False(t, cfg.IsEnabled(), "no address disables metrics")

	cfg = ObservabilityMetricsConfig{
		Enabled:       true,
		StatsdAddress: " statsd:1234 ",
		Prefix:        ".portal.",
		Tags:          map[string]string{" env ": " prod ", " ": "dropped"},
	}
	cfg.Sanitize()

	assert.True(t, cfg.IsEnabled())
	assert.Equal(t, "statsd:1234", cfg.StatsdAddress)
	assert.Equal(t, "portal", cfg.Prefix)
	assert.Equal(t, map[string]string{"env": "prod"}, cfg.Tags)
}
