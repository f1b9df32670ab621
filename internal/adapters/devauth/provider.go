package devauth

// Package devauth provides a config-driven email/password identity provider for local development.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/civicwatch/portal/internal/adapters/authstate"
	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	apperrors "github.com/civicwatch/portal/internal/errors"
	"github.com/civicwatch/portal/internal/ports"
)

// ErrInvalidCredentials is returned when the email/password pair does not match.
var ErrInvalidCredentials = apperrors.Unauthorized("invalid email or password")

// ErrAccountExists is returned by Register when the email is already taken.
var ErrAccountExists = apperrors.ValidationField("email", "an account with this email already exists")

const minPasswordLen = 6

// User is a dev account.
type User struct {
	Email       string
	Password    string
	DisplayName string
}

// Config controls the dev auth provider behavior.
type Config struct {
	Users           []User
	SessionDuration time.Duration // default 8h when zero

	Store ports.IdentityRecordStore
	Hub   *authstate.Hub
}

type account struct {
	hash        []byte
	displayName string
}

// Provider implements email/password sign-in against in-memory accounts.
// Tokens it issues are opaque strings, not verifiable JWTs.
type Provider struct {
	mu       sync.RWMutex
	accounts map[string]account

	sessionDuration time.Duration
	now             func() time.Time
	store           ports.IdentityRecordStore
	hub             *authstate.Hub
}

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.Store == nil {
		return nil, errors.New("dev auth: identity store is required")
	}
	dur := cfg.SessionDuration
	if dur == 0 {
		dur = 8 * time.Hour
	}
	hub := cfg.Hub
	if hub == nil {
		hub = authstate.NewHub()
	}
	p := &Provider{
		accounts:        make(map[string]account, len(cfg.Users)),
		sessionDuration: dur,
		now:             time.Now,
		store:           cfg.Store,
		hub:             hub,
	}
	for _, u := range cfg.Users {
		if err := p.add(u); err != nil {
			return nil, fmt.Errorf("dev auth: %w", err)
		}
	}
	return p, nil
}

func (p *Provider) add(u User) error {
	email := domainauth.NormalizeKey(u.Email)
	if email == "" || u.Password == "" {
		return apperrors.ValidationField("email", "email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.MinCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	name := strings.TrimSpace(u.DisplayName)
	if name == "" {
		name = email
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.accounts[email]; ok {
		return ErrAccountExists
	}
	p.accounts[email] = account{hash: hash, displayName: name}
	return nil
}

func (p *Provider) authenticate(email, password string) (account, error) {
	p.mu.RLock()
	acct, ok := p.accounts[email]
	p.mu.RUnlock()
	if !ok {
		return account{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword(acct.hash, []byte(password)) != nil {
		return account{}, ErrInvalidCredentials
	}
	return acct, nil
}

// ForSession returns the provider view bound to one browser session.
func (p *Provider) ForSession(sessionID string) ports.IdentityProvider {
	return &sessionProvider{p: p, sessionID: sessionID}
}

type sessionProvider struct {
	p         *Provider
	sessionID string
}

var _ ports.Registrar = (*sessionProvider)(nil)

func (s *sessionProvider) Watch(ctx context.Context) (<-chan domainauth.AuthEvent, error) {
	return s.p.hub.Watch(ctx, s.sessionID, s.p.load)
}

func (s *sessionProvider) SignIn(ctx context.Context, creds domainauth.Credentials) error {
	email := domainauth.NormalizeKey(creds.Email)
	acct, err := s.p.authenticate(email, creds.Password)
	if err != nil {
		return err
	}
	return s.p.persist(ctx, s.sessionID, email, acct.displayName)
}

// Register creates the account and signs it in.
func (s *sessionProvider) Register(ctx context.Context, creds domainauth.Credentials) error {
	if strings.TrimSpace(creds.DisplayName) == "" {
		return apperrors.ValidationField("displayName", "name is required")
	}
	if len(creds.Password) < minPasswordLen {
		return apperrors.ValidationField("password", "password must be at least 6 characters")
	}
	u := User{Email: creds.Email, Password: creds.Password, DisplayName: creds.DisplayName}
	if err := s.p.add(u); err != nil {
		return err
	}
	return s.SignIn(ctx, creds)
}

func (s *sessionProvider) SignOut(ctx context.Context) error {
	if err := s.p.store.Delete(ctx, s.sessionID); err != nil {
		return fmt.Errorf("delete identity: %w", err)
	}
	s.p.hub.Publish(s.sessionID, nil)
	return nil
}

func (p *Provider) persist(ctx context.Context, sessionID, email, name string) error {
	tok, err := randomString(32)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	now := p.now()
	rec := domainauth.IdentityRecord{
		Key:         email,
		DisplayName: name,
		IDToken:     "dev." + tok,
		TokenExpiry: now.Add(p.sessionDuration),
		ExpiresAt:   now.Add(p.sessionDuration),
	}
	if err := p.store.Save(ctx, sessionID, rec); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	p.hub.Publish(sessionID, identity(rec))
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
	return identity(rec), nil
}

func identity(rec domainauth.IdentityRecord) *domainauth.Identity {
	token := rec.IDToken
	return &domainauth.Identity{
		Key:         rec.Key,
		DisplayName: rec.DisplayName,
		PhotoURL:    rec.PhotoURL,
		ExpiresAt:   rec.ExpiresAt,
		Credential: func(context.Context) (string, error) {
			return token, nil
		},
	}
}

func randomString(n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	b := make([]byte, (n*3+3)/4+1)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b)[:n], nil
}
