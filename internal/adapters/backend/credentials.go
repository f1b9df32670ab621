package backend

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	"github.com/civicwatch/portal/internal/ports"
)

// Minter exchanges an identity provider token for a backend token.
type Minter interface {
	MintToken(ctx context.Context, providerToken, key string) (string, error)
}

// CredentialsConfig configures MintedCredentials.
type CredentialsConfig struct {
	SessionID string
	Minter    Minter
	Store     ports.TokenStore
	// RefreshSkew re-mints a token this long before it expires.
	RefreshSkew time.Duration
	// FallbackTTL applies to tokens without a readable exp claim.
	FallbackTTL time.Duration
	Now         func() time.Time
}

// MintedCredentials is the credential supplier of one browser session.
// The backend token is minted from the provider token and persisted per session.
type MintedCredentials struct {
	sessionID   string
	minter      Minter
	store       ports.TokenStore
	skew        time.Duration
	fallbackTTL time.Duration
	now         func() time.Time
	group       singleflight.Group

	// mu guards identity and epoch, and is held while a minted token is persisted
	// so a save can never land after the Clear that ended its identity.
	mu       sync.Mutex
	identity *domainauth.Identity
	epoch    uint64
}

// errSignedOut is returned by a mint whose identity was cleared meanwhile.
var errSignedOut = errors.New("session signed out during token mint")

var _ ports.CredentialSupplier = (*MintedCredentials)(nil)

// NewMintedCredentials validates cfg and returns a supplier with no identity.
func NewMintedCredentials(cfg CredentialsConfig) (*MintedCredentials, error) {
	if cfg.SessionID == "" {
		return nil, errors.New("session id is required")
	}
	if cfg.Minter == nil || cfg.Store == nil {
		return nil, errors.New("minter and token store are required")
	}
	if cfg.FallbackTTL <= 0 {
		cfg.FallbackTTL = time.Hour
	}
	if cfg.RefreshSkew < 0 {
		cfg.RefreshSkew = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &MintedCredentials{
		sessionID:   cfg.SessionID,
		minter:      cfg.Minter,
		store:       cfg.Store,
		skew:        cfg.RefreshSkew,
		fallbackTTL: cfg.FallbackTTL,
		now:         cfg.Now,
	}, nil
}

// Establish mints and persists a backend token for id.
func (m *MintedCredentials) Establish(ctx context.Context, id domainauth.Identity) error {
	m.mu.Lock()
	m.epoch++
	epoch := m.epoch
	m.identity = &id
	m.mu.Unlock()

	if _, err := m.mint(ctx, id, epoch); err != nil {
		m.mu.Lock()
		if m.epoch == epoch {
			m.identity = nil
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

// Token returns the persisted token, re-minting it when it is missing or near expiry.
// Without an identity there is no credential, whatever the store holds.
func (m *MintedCredentials) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	id, epoch := m.identity, m.epoch
	m.mu.Unlock()
	if id == nil {
		return "", domainauth.ErrNoCredential
	}

	tok, err := m.store.Get(ctx, m.sessionID)
	switch {
	case errors.Is(err, ports.ErrNotFound):
		tok = ""
	case err != nil:
		return "", fmt.Errorf("load backend token: %w", err)
	}

	if tok != "" && !m.nearExpiry(tok) {
		if !m.current(epoch) {
			return "", domainauth.ErrNoCredential
		}
		return tok, nil
	}
	return m.mint(ctx, *id, epoch)
}

// Clear forgets the identity and deletes the persisted token.
func (m *MintedCredentials) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch++
	m.identity = nil

	if err := m.store.Delete(ctx, m.sessionID); err != nil && !errors.Is(err, ports.ErrNotFound) {
		return fmt.Errorf("delete backend token: %w", err)
	}
	return nil
}

func (m *MintedCredentials) current(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch == epoch && m.identity != nil
}

func (m *MintedCredentials) mint(ctx context.Context, id domainauth.Identity, epoch uint64) (string, error) {
	flight := id.Key + "#" + strconv.FormatUint(epoch, 10)
	v, err, _ := m.group.Do(flight, func() (any, error) {
		providerToken, err := id.Token(ctx)
		if err != nil {
			return "", fmt.Errorf("provider token: %w", err)
		}
		tok, err := m.minter.MintToken(ctx, providerToken, id.Key)
		if err != nil {
			return "", fmt.Errorf("mint backend token: %w", err)
		}
		return tok, m.persist(ctx, tok, epoch)
	})
	if err != nil {
		return "", err
	}
	tok, _ := v.(string)
	return tok, nil
}

// persist saves tok unless the identity it was minted for has been cleared.
func (m *MintedCredentials) persist(ctx context.Context, tok string, epoch uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch || m.identity == nil {
		return errSignedOut
	}
	if err := m.store.Save(ctx, m.sessionID, tok, m.ttl(tok)); err != nil {
		return fmt.Errorf("save backend token: %w", err)
	}
	return nil
}

func (m *MintedCredentials) ttl(tok string) time.Duration {
	exp, ok := tokenExpiry(tok)
	if !ok {
		return m.fallbackTTL
	}
	if ttl := exp.Sub(m.now()); ttl > 0 {
		return ttl
	}
	return time.Second
}

func (m *MintedCredentials) nearExpiry(tok string) bool {
	exp, ok := tokenExpiry(tok)
	if !ok {
		return false
	}
	return !m.now().Add(m.skew).Before(exp)
}

// tokenExpiry reads the exp claim without verifying the signature;
// the backend remains the authority on validity.
func tokenExpiry(tok string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
