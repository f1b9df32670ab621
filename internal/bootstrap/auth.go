package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/civicwatch/portal/config"
	"github.com/civicwatch/portal/internal/adapters/authstate"
	"github.com/civicwatch/portal/internal/adapters/devauth"
	"github.com/civicwatch/portal/internal/adapters/oidc"
	"github.com/civicwatch/portal/internal/ports"
)

// AuthConfig contains what the identity provider needs.
type AuthConfig struct {
	Auth   config.AuthConfig
	Store  ports.IdentityRecordStore
	Hub    *authstate.Hub
	Logger *slog.Logger
}

// AuthProviders are the per-session identity providers plus, for redirect
// sign-in, the flow starter.
type AuthProviders struct {
	Sessions ports.IdentityProviders
	Redirect ports.RedirectAuthenticator // nil for password sign-in
}

// BuildAuthProviders creates the identity provider for the configured auth mode.
func BuildAuthProviders(cfg AuthConfig) (AuthProviders, error) {
	if cfg.Store == nil {
		return AuthProviders{}, errors.New("identity store is required")
	}
	hub := cfg.Hub
	if hub == nil {
		hub = authstate.NewHub()
	}

	switch cfg.Auth.Mode {
	case config.AuthModeMock:
		return buildDevAuth(cfg, hub)
	case config.AuthModeOAuth:
		return buildOAuth(cfg, hub)
	default:
		return AuthProviders{}, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
}

func buildDevAuth(cfg AuthConfig, hub *authstate.Hub) (AuthProviders, error) {
	parsed := cfg.Auth.DevAuth.ParseUsers()
	users := make([]devauth.User, 0, len(parsed))
	for _, u := range parsed {
		users = append(users, devauth.User{Email: u.Email, Password: u.Password, DisplayName: u.DisplayName})
	}
	prov, err := devauth.NewProvider(devauth.Config{
		Users:           users,
		SessionDuration: cfg.Auth.SessionTTL,
		Store:           cfg.Store,
		Hub:             hub,
	})
	if err != nil {
		return AuthProviders{}, fmt.Errorf("create dev auth provider: %w", err)
	}
	if cfg.Logger != nil {
		cfg.Logger.Warn("mock auth mode enabled; do not use in production", "users", len(users))
	}
	return AuthProviders{Sessions: prov}, nil
}

func buildOAuth(cfg AuthConfig, hub *authstate.Hub) (AuthProviders, error) {
	oauth := cfg.Auth.OAuth
	prov, err := oidc.NewProvider(oidc.ProviderConfig{
		ClientID:     oauth.ClientID,
		ClientSecret: oauth.ClientSecret,
		RedirectURL:  oauth.RedirectURL,
		Scope:        oauth.Scope,
		DiscoveryURL: oauth.DiscoveryURL,
		SessionTTL:   cfg.Auth.SessionTTL,
		Store:        cfg.Store,
		Hub:          hub,
	})
	if err != nil {
		return AuthProviders{}, fmt.Errorf("create oidc provider: %w", err)
	}
	return AuthProviders{Sessions: prov, Redirect: prov}, nil
}
