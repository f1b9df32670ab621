package oidc

// Package oidc provides the OIDC/OAuth identity provider for the civic portal.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/civicwatch/portal/internal/adapters/authstate"
	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	"github.com/civicwatch/portal/internal/ports"
)

// Provider signs browser sessions in through an OIDC authorization-code flow.
// Identities are persisted per session and announced through the auth-state hub.
type Provider struct {
	config     *oauth2.Config
	httpClient *http.Client
	sessionTTL time.Duration
	now        func() time.Time

	store ports.IdentityRecordStore
	hub   *authstate.Hub

	// go-oidc provider and verifier
	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	DiscoveryURL string
	SessionTTL   time.Duration // default 12h when zero
	HTTPClient   *http.Client  // Optional, defaults to a 30s client

	Store ports.IdentityRecordStore
	Hub   *authstate.Hub
}

// DiscoveryDocument represents the OIDC discovery document.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
}

// NewProvider creates a new OIDC provider.
func NewProvider(config ProviderConfig) (*Provider, error) {
	if config.ClientID == "" {
		return nil, errors.New("client ID is required")
	}
	if config.ClientSecret == "" {
		return nil, errors.New("client secret is required")
	}
	if config.RedirectURL == "" {
		return nil, errors.New("redirect URL is required")
	}
	if config.DiscoveryURL == "" {
		return nil, errors.New("discovery URL is required")
	}
	if config.Store == nil {
		return nil, errors.New("identity store is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	hub := config.Hub
	if hub == nil {
		hub = authstate.NewHub()
	}
	ttl := config.SessionTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}

	p := &Provider{
		httpClient: httpClient,
		sessionTTL: ttl,
		now:        time.Now,
		store:      config.Store,
		hub:        hub,
	}

	ctx := p.clientContext(context.Background())
	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}
	p.oidcProvider = op
	p.verifier = op.Verifier(&gooidc.Config{ClientID: config.ClientID})

	p.config = &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RedirectURL:  config.RedirectURL,
		Scopes:       strings.Fields(config.Scope),
		Endpoint:     op.Endpoint(),
	}

	return p, nil
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// Begin starts the code flow and returns the provider auth URL, state and nonce.
func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}

	state, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}

	nonce, err := generateRandomString(32)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}

	// redirect_uri stays the configured one; the IdP matches it exactly.
	authURL := p.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)

	return authURL, state, nonce, nil
}

// ForSession returns the provider view bound to one browser session.
func (p *Provider) ForSession(sessionID string) ports.IdentityProvider {
	return &sessionProvider{p: p, sessionID: sessionID}
}

type sessionProvider struct {
	p         *Provider
	sessionID string
}

func (s *sessionProvider) Watch(ctx context.Context) (<-chan domainauth.AuthEvent, error) {
	return s.p.hub.Watch(ctx, s.sessionID, s.p.load)
}

// SignIn completes the authorization-code flow. State is checked by the caller
// against the value it issued; the nonce is checked against the ID token here.
func (s *sessionProvider) SignIn(ctx context.Context, creds domainauth.Credentials) error {
	rec, err := s.p.exchange(ctx, creds)
	if err != nil {
		return err
	}
	if err := s.p.store.Save(ctx, s.sessionID, rec); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	s.p.hub.Publish(s.sessionID, s.p.identity(rec))
	return nil
}

func (s *sessionProvider) SignOut(ctx context.Context) error {
	if err := s.p.store.Delete(ctx, s.sessionID); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	s.p.hub.Publish(s.sessionID, nil)
	return nil
}

func (p *Provider) load(ctx context.Context, sessionID string) (*domainauth.Identity, error) {
	rec, err := p.store.Get(ctx, sessionID)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load identity: %w", err)
	}
	return p.identity(rec), nil
}

func (p *Provider) exchange(ctx context.Context, in domainauth.Credentials) (domainauth.IdentityRecord, error) {
	if in.Code == "" {
		return domainauth.IdentityRecord{}, errors.New("authorization code is required")
	}
	if in.State == "" {
		return domainauth.IdentityRecord{}, errors.New("state is required")
	}
	if in.Nonce == "" {
		return domainauth.IdentityRecord{}, errors.New("nonce is required")
	}

	token, err := p.config.Exchange(p.clientContext(ctx), in.Code)
	if err != nil {
		return domainauth.IdentityRecord{}, fmt.Errorf("exchange code for token: %w", err)
	}

	rawID, err := getIDTokenFromToken(token)
	if err != nil {
		return domainauth.IdentityRecord{}, err
	}
	fields, err := p.extractFromIDToken(ctx, rawID, in.Nonce)
	if err != nil {
		return domainauth.IdentityRecord{}, fmt.Errorf("extract id_token: %w", err)
	}

	if fields.email == "" {
		if fillErr := p.fillFromUserInfo(ctx, token, &fields); fillErr != nil {
			return domainauth.IdentityRecord{}, fmt.Errorf("get user info: %w", fillErr)
		}
	}
	if fields.email == "" {
		return domainauth.IdentityRecord{}, errors.New("identity has no email")
	}

	return domainauth.IdentityRecord{
		Key:          domainauth.NormalizeKey(fields.email),
		DisplayName:  fields.displayName(),
		PhotoURL:     fields.picture,
		AccessToken:  token.AccessToken,
		IDToken:      rawID,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  token.Expiry,
		ExpiresAt:    p.now().Add(p.sessionTTL),
	}, nil
}

// identity maps a persisted record to a domain identity whose credential is the
// provider's ID token, refreshed through the oauth2 token source when it expires.
func (p *Provider) identity(rec domainauth.IdentityRecord) *domainauth.Identity {
	base := (&oauth2.Token{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		Expiry:       rec.TokenExpiry,
	}).WithExtra(map[string]any{"id_token": rec.IDToken})
	ts := oauth2.ReuseTokenSource(base, p.config.TokenSource(p.clientContext(context.Background()), base))

	return &domainauth.Identity{
		Key:         rec.Key,
		DisplayName: rec.DisplayName,
		PhotoURL:    rec.PhotoURL,
		ExpiresAt:   rec.ExpiresAt,
		Credential: func(context.Context) (string, error) {
			tok, err := ts.Token()
			if err != nil {
				return "", fmt.Errorf("refresh provider token: %w", err)
			}
			return getIDTokenFromToken(tok)
		},
	}
}

// UserInfo represents the user information from the OIDC userinfo endpoint.
type UserInfo struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Given   string `json:"given_name"`
	Family  string `json:"family_name"`
	Picture string `json:"picture"`
}

func (p *Provider) fillFromUserInfo(ctx context.Context, tok *oauth2.Token, f *idFields) error {
	ui, err := p.oidcProvider.UserInfo(p.clientContext(ctx), oauth2.StaticTokenSource(tok))
	if err != nil {
		return fmt.Errorf("fetch user info: %w", err)
	}
	var info UserInfo
	if claimsErr := ui.Claims(&info); claimsErr != nil {
		return fmt.Errorf("decode user info: %w", claimsErr)
	}
	fillFromUserInfoClaims(f, info)
	return nil
}

type idFields struct {
	subject    string
	email      string
	name       string
	givenName  string
	familyName string
	picture    string
}

func (f idFields) displayName() string {
	if f.name != "" {
		return f.name
	}
	if full := strings.TrimSpace(f.givenName + " " + f.familyName); full != "" {
		return full
	}
	return f.email
}

type idTokenClaims struct {
	Sub        string `json:"sub"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Picture    string `json:"picture"`
	Nonce      string `json:"nonce"`
}

func (p *Provider) extractFromIDToken(ctx context.Context, rawID, expectedNonce string) (idFields, error) {
	idTok, err := p.verifier.Verify(p.clientContext(ctx), rawID)
	if err != nil {
		return idFields{}, fmt.Errorf("verify id_token: %w", err)
	}
	var claims idTokenClaims
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return idFields{}, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	if expectedNonce != "" && claims.Nonce != expectedNonce {
		return idFields{}, errors.New("invalid nonce")
	}
	return mapIDTokenClaims(claims), nil
}

func mapIDTokenClaims(c idTokenClaims) idFields {
	return idFields{
		subject:    c.Sub,
		email:      c.Email,
		name:       c.Name,
		givenName:  c.GivenName,
		familyName: c.FamilyName,
		picture:    c.Picture,
	}
}

// fillFromUserInfoClaims fills only the fields the ID token left empty.
func fillFromUserInfoClaims(f *idFields, ui UserInfo) {
	f.subject = firstNonEmpty(f.subject, ui.Subject)
	f.email = firstNonEmpty(f.email, ui.Email)
	f.name = firstNonEmpty(f.name, ui.Name)
	f.givenName = firstNonEmpty(f.givenName, ui.Given)
	f.familyName = firstNonEmpty(f.familyName, ui.Family)
	f.picture = firstNonEmpty(f.picture, ui.Picture)
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// generateRandomString generates a cryptographically secure URL-safe random string of exact length.
func generateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	b := make([]byte, (length*3+3)/4+1)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:length], nil
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	s, ok := tok.Extra("id_token").(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
