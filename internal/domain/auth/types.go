package auth

// Package auth contains domain-level types for identities, roles and sign-in.
// It is pure and free of framework/adapter concerns.

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Role represents a portal authorization tier as stored by the issue backend.
// Valid values are defined as constants below.
type Role string

const (
	RoleCitizen Role = "citizen"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

// ParseRole normalises s into a known Role.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleCitizen, RoleStaff, RoleAdmin:
		return r, true
	default:
		return "", false
	}
}

// ErrNoCredential is returned when no token can be produced for outbound requests.
var ErrNoCredential = errors.New("no credential available")

// CredentialFunc yields a short-lived token for the identity.
type CredentialFunc func(ctx context.Context) (string, error)

// Identity represents the authenticated principal reported by the identity provider.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	Key         string // stable unique identifier; the lower-cased email
	DisplayName string
	PhotoURL    string
	ExpiresAt   time.Time

	// Credential mints the provider's own short-lived token.
	Credential CredentialFunc `json:"-"`
}

// Token returns a fresh provider token for the identity.
func (i Identity) Token(ctx context.Context) (string, error) {
	if i.Credential == nil {
		return "", ErrNoCredential
	}
	return i.Credential(ctx)
}

// NormalizeKey lower-cases and trims an identity key.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// RoleRecord holds the authorization facts the backend stores for a key.
type RoleRecord struct {
	Key       string    `json:"key"`
	Role      Role      `json:"role"`
	IsPremium bool      `json:"is_premium"`
	IsBlocked bool      `json:"is_blocked"`
	FetchedAt time.Time `json:"fetched_at"`
}

// DefaultRoleRecord is the record used when the backend has no entry for key yet.
func DefaultRoleRecord(key string) RoleRecord {
	return RoleRecord{Key: key, Role: RoleCitizen}
}

// AuthEvent is one element of an identity provider's auth-state stream.
// A nil Identity means "signed out"; Err reports a stream failure.
type AuthEvent struct {
	Identity *Identity
	Err      error
}

// Credentials carries sign-in input. Password providers use Email/Password,
// OIDC providers use Code/State/Nonce from the authorization callback.
type Credentials struct {
	Email       string
	Password    string
	DisplayName string // registration only

	Code  string
	State string
	Nonce string
}

// IdentityRecord is the persisted form of a signed-in identity for one browser session.
type IdentityRecord struct {
	Key          string    `json:"key"`
	DisplayName  string    `json:"display_name"`
	PhotoURL     string    `json:"photo_url,omitempty"`
	AccessToken  string    `json:"access_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenExpiry  time.Time `json:"token_expiry,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the record is past its session lifetime.
func (r IdentityRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}
