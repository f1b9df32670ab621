package oidc

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/civicwatch/portal/internal/adapters/authstate"
	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	mockauth "github.com/civicwatch/portal/internal/mocks/auth"
	"github.com/civicwatch/portal/internal/ports"
)

const testKeyID = "test-key"

// fakeIdP serves discovery, JWKS and token endpoints backed by a local RSA key.
type fakeIdP struct {
	server *httptest.Server
	key    *rsa.PrivateKey
	claims jwt.MapClaims
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	idp := &fakeIdP{key: key}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(DiscoveryDocument{
			Issuer:                idp.server.URL,
			AuthorizationEndpoint: idp.server.URL + "/auth",
			TokenEndpoint:         idp.server.URL + "/token",
			UserinfoEndpoint:      idp.server.URL + "/userinfo",
			JwksURI:               idp.server.URL + "/jwks",
		})
	})
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": testKeyID,
				"alg": "RS256",
				"use": "sig",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, _ *http.Request) {
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, idp.claims)
		tok.Header["kid"] = testKeyID
		signed, signErr := tok.SignedString(key)
		if signErr != nil {
			http.Error(w, signErr.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "refresh-1",
			"id_token":      signed,
		})
	})
	idp.server = httptest.NewServer(mux)
	t.Cleanup(idp.server.Close)
	return idp
}

func (f *fakeIdP) issue(nonce, email string) {
	f.claims = jwt.MapClaims{
		"iss":     f.server.URL,
		"aud":     "test-client",
		"sub":     "sub-123",
		"email":   email,
		"name":    "Casey Citizen",
		"picture": "https://example.com/casey.png",
		"nonce":   nonce,
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
}

func newTestProvider(t *testing.T, idp *fakeIdP, store ports.IdentityRecordStore) *Provider {
	t.Helper()
	provider, err := NewProvider(ProviderConfig{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		RedirectURL:  "http://localhost:8080/auth/callback",
		Scope:        "openid profile email offline_access",
		DiscoveryURL: idp.server.URL + "/.well-known/openid-configuration",
		Store:        store,
		Hub:          authstate.NewHub(),
	})
	require.NoError(t, err)
	return provider
}

func TestNewProvider_Success(t *testing.T) {
	idp := newFakeIdP(t)
	provider := newTestProvider(t, idp, mockauth.NewMemoryIdentityStore())

	assert.Equal(t, idp.server.URL+"/auth", provider.config.Endpoint.AuthURL)
	assert.Equal(t, idp.server.URL+"/token", provider.config.Endpoint.TokenURL)
	assert.Equal(t, 12*time.Hour, provider.sessionTTL)
}

func TestNewProvider_ValidationErrors(t *testing.T) {
	store := mockauth.NewMemoryIdentityStore()
	tests := []struct {
		name   string
		config ProviderConfig
		errMsg string
	}{
		{
			name:   "missing client ID",
			config: ProviderConfig{ClientSecret: "s", RedirectURL: "r", DiscoveryURL: "d", Store: store},
			errMsg: "client ID is required",
		},
		{
			name:   "missing client secret",
			config: ProviderConfig{ClientID: "c", RedirectURL: "r", DiscoveryURL: "d", Store: store},
			errMsg: "client secret is required",
		},
		{
			name:   "missing redirect URL",
			config: ProviderConfig{ClientID: "c", ClientSecret: "s", DiscoveryURL: "d", Store: store},
			errMsg: "redirect URL is required",
		},
		{
			name:   "missing discovery URL",
			config: ProviderConfig{ClientID: "c", ClientSecret: "s", RedirectURL: "r", Store: store},
			errMsg: "discovery URL is required",
		},
		{
			name:   "missing store",
			config: ProviderConfig{ClientID: "c", ClientSecret: "s", RedirectURL: "r", DiscoveryURL: "d"},
			errMsg: "identity store is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestProvider_Begin(t *testing.T) {
	idp := newFakeIdP(t)
	provider := newTestProvider(t, idp, mockauth.NewMemoryIdentityStore())

	authURL, state, nonce, err := provider.Begin(context.Background(), ports.BeginInput{RedirectURL: "/dashboard"})
	require.NoError(t, err)
	assert.Len(t, state, 32)
	assert.Len(t, nonce, 32)
	assert.Contains(t, authURL, idp.server.URL+"/auth")
	assert.Contains(t, authURL, "client_id=test-client")
	assert.Contains(t, authURL, "state="+state)
	assert.Contains(t, authURL, "nonce="+nonce)
	assert.Contains(t, authURL, "access_type=offline")

	_, _, _, err = provider.Begin(context.Background(), ports.BeginInput{})
	require.Error(t, err)
}

func TestSessionProvider_SignInValidation(t *testing.T) {
	idp := newFakeIdP(t)
	provider := newTestProvider(t, idp, mockauth.NewMemoryIdentityStore())
	session := provider.ForSession("sid")

	tests := []struct {
		name   string
		creds  domainauth.Credentials
		errMsg string
	}{
		{"missing code", domainauth.Credentials{State: "s", Nonce: "n"}, "authorization code is required"},
		{"missing state", domainauth.Credentials{Code: "c", Nonce: "n"}, "state is required"},
		{"missing nonce", domainauth.Credentials{Code: "c", State: "s"}, "nonce is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := session.SignIn(context.Background(), tt.creds)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSessionProvider_SignInPublishesIdentity(t *testing.T) {
	idp := newFakeIdP(t)
	store := mockauth.NewMemoryIdentityStore()
	provider := newTestProvider(t, idp, store)
	session := provider.ForSession("sid")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := session.Watch(ctx)
	require.NoError(t, err)
	assert.Nil(t, (<-events).Identity, "first event reports signed out")

	idp.issue("nonce-1", "Casey@Example.com")
	require.NoError(t, session.SignIn(ctx, domainauth.Credentials{Code: "code", State: "state", Nonce: "nonce-1"}))

	ev := <-events
	require.NotNil(t, ev.Identity)
	assert.Equal(t, "casey@example.com", ev.Identity.Key)
	assert.Equal(t, "Casey Citizen", ev.Identity.DisplayName)
	assert.Equal(t, "https://example.com/casey.png", ev.Identity.PhotoURL)

	tok, err := ev.Identity.Token(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, tok)

	rec, err := store.Get(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, "refresh-1", rec.RefreshToken)

	require.NoError(t, session.SignOut(ctx))
	assert.Nil(t, (<-events).Identity)
	_, err = store.Get(ctx, "sid")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestSessionProvider_SignInRejectsWrongNonce(t *testing.T) {
	idp := newFakeIdP(t)
	provider := newTestProvider(t, idp, mockauth.NewMemoryIdentityStore())

	idp.issue("other-nonce", "casey@example.com")
	err := provider.ForSession("sid").SignIn(context.Background(),
		domainauth.Credentials{Code: "code", State: "state", Nonce: "nonce-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid nonce")
}

func TestGenerateRandomString(t *testing.T) {
	str1, err := generateRandomString(16)
	require.NoError(t, err)
	assert.Len(t, str1, 16)

	str2, err := generateRandomString(16)
	require.NoError(t, err)
	assert.NotEqual(t, str1, str2)
}

func TestGetIDTokenFromToken(t *testing.T) {
	tok := (&oauth2.Token{}).WithExtra(map[string]any{"id_token": "abc.def.ghi"})
	idTok, err := getIDTokenFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", idTok)

	_, err = getIDTokenFromToken((&oauth2.Token{}).WithExtra(map[string]any{"not_id": "x"}))
	assert.ErrorContains(t, err, "missing id_token")

	_, err = getIDTokenFromToken(nil)
	assert.ErrorContains(t, err, "nil token")
}

func TestFillFromUserInfoClaims(t *testing.T) {
	ui := UserInfo{Subject: "sub", Email: "a@example.com", Given: "Ada", Family: "L", Picture: "p"}

	var f idFields
	fillFromUserInfoClaims(&f, ui)
	assert.Equal(t, "a@example.com", f.email)
	assert.Equal(t, "Ada L", f.displayName())

	keep := idFields{email: "keep@example.com", name: "Keep"}
	fillFromUserInfoClaims(&keep, ui)
	assert.Equal(t, "keep@example.com", keep.email)
	assert.Equal(t, "Keep", keep.displayName())
}
