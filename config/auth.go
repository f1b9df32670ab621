package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the identity provider used by the portal.
type AuthMode string

const (
	// AuthModeOAuth uses OAuth/OIDC for authentication.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses config-driven email/password users (development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "oauth", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock)", v)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email offline_access"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
}

// DevAuthConfig controls the mock identity provider.
// Users are "email:password[:display name]" entries separated by ';'.
type DevAuthConfig struct {
	Users []string `env:"USERS" envDefault:"citizen@example.com:citizen:Casey Citizen" envSeparator:";"`
}

// DevUser is a parsed DevAuthConfig entry.
type DevUser struct {
	Email       string
	Password    string
	DisplayName string
}

// ParseUsers returns the well-formed dev users; malformed entries are skipped.
func (c DevAuthConfig) ParseUsers() []DevUser {
	users := make([]DevUser, 0, len(c.Users))
	for _, raw := range c.Users {
		parts := strings.SplitN(strings.TrimSpace(raw), ":", 3)
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		u := DevUser{Email: strings.ToLower(parts[0]), Password: parts[1]}
		if len(parts) == 3 {
			u.DisplayName = strings.TrimSpace(parts[2])
		}
		users = append(users, u)
	}
	return users
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which identity provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"oauth"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// SessionTTL bounds how long a browser session keeps its identity record.
	SessionTTL time.Duration `env:"AUTH_SESSION_TTL" envDefault:"12h"`
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize() {
	if a.SessionTTL <= 0 {
		a.SessionTTL = 12 * time.Hour
	}
	a.OAuth.Scope = strings.TrimSpace(a.OAuth.Scope)
	if a.OAuth.Scope == "" {
		a.OAuth.Scope = "openid profile email"
	}
}
