package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/session,
// internal/roles and internal/service.

import (
	"context"
	"errors"
	"time"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// IdentityProvider is the per-browser-session view of an external identity provider.
type IdentityProvider interface {
	// Watch streams auth-state events. The first event reports the current state.
	// The channel is closed when ctx ends.
	Watch(ctx context.Context) (<-chan domainauth.AuthEvent, error)

	// SignIn starts or completes a sign-in. Success is observed through Watch only.
	SignIn(ctx context.Context, creds domainauth.Credentials) error

	// SignOut ends the provider session. The result is observed through Watch.
	SignOut(ctx context.Context) error
}

// Registrar is implemented by session providers that can create accounts.
// A successful registration signs the new account in.
type Registrar interface {
	Register(ctx context.Context, creds domainauth.Credentials) error
}

// IdentityProviders hands out per-session provider views.
type IdentityProviders interface {
	ForSession(sessionID string) IdentityProvider
}

// BeginInput carries inputs for initiating a redirect-based auth flow.
type BeginInput struct {
	RedirectURL string
}

// RedirectAuthenticator is implemented by providers that sign in via a browser redirect.
type RedirectAuthenticator interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)
}

// CredentialSupplier manages the auxiliary backend credential for one session.
type CredentialSupplier interface {
	// Establish obtains and persists a credential for id.
	Establish(ctx context.Context, id domainauth.Identity) error
	// Token returns a valid credential, refreshing it when near expiry.
	// It returns domainauth.ErrNoCredential when nothing has been established.
	Token(ctx context.Context) (string, error)
	// Clear removes the persisted credential.
	Clear(ctx context.Context) error
}

// TokenStore persists auxiliary credentials keyed by browser session.
type TokenStore interface {
	Save(ctx context.Context, sessionID, token string, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (string, error)
	Delete(ctx context.Context, sessionID string) error
}

// IdentityRecordStore persists the signed-in identity of a browser session.
type IdentityRecordStore interface {
	Save(ctx context.Context, sessionID string, rec domainauth.IdentityRecord) error
	Get(ctx context.Context, sessionID string) (domainauth.IdentityRecord, error)
	Delete(ctx context.Context, sessionID string) error
}
