package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"sync"
	"time"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	"github.com/civicwatch/portal/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.IdentityProvider    = (*MockIdentityProvider)(nil)
	_ ports.IdentityRecordStore = (*MemoryIdentityStore)(nil)
	_ ports.TokenStore          = (*MemoryTokenStore)(nil)
	_ ports.RoleCache           = (*MemoryRoleCache)(nil)
	_ ports.CredentialSupplier  = (*StubCredentials)(nil)
)

// ErrNotFound is returned by the memory stores when an entity is not present.
var ErrNotFound = ports.ErrNotFound

// CallLog records calls across doubles so tests can assert ordering.
type CallLog struct {
	mu      sync.Mutex
	entries []string
}

// Add appends an entry; a nil log is a no-op.
func (l *CallLog) Add(entry string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

// Entries returns a copy of the recorded entries.
func (l *CallLog) Entries() []string {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// MockIdentityProvider is a test-driven auth-state stream.
// Tests push events with Emit/Fail; SignOut emits a signed-out event by default.
type MockIdentityProvider struct {
	SignInFunc  func(ctx context.Context, creds domainauth.Credentials) error
	SignOutFunc func(ctx context.Context) error
	WatchErr    error
	Log         *CallLog

	mu      sync.Mutex
	ch      chan domainauth.AuthEvent
	closed  bool
	signIns []domainauth.Credentials
}

// NewMockIdentityProvider creates a provider with no pending events.
func NewMockIdentityProvider() *MockIdentityProvider {
	return &MockIdentityProvider{}
}

func (m *MockIdentityProvider) Watch(ctx context.Context) (<-chan domainauth.AuthEvent, error) {
	if m.WatchErr != nil {
		return nil, m.WatchErr
	}
	m.mu.Lock()
	ch := make(chan domainauth.AuthEvent, 16)
	m.ch = ch
	m.closed = false
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.ch == ch && !m.closed {
			m.closed = true
			close(ch)
		}
	}()
	return ch, nil
}

// Emit sends an identity event (nil means signed out). It reports false when nobody watches.
func (m *MockIdentityProvider) Emit(id *domainauth.Identity) bool {
	return m.send(domainauth.AuthEvent{Identity: id})
}

// Fail sends a stream error event.
func (m *MockIdentityProvider) Fail(err error) bool {
	return m.send(domainauth.AuthEvent{Err: err})
}

func (m *MockIdentityProvider) send(ev domainauth.AuthEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ch == nil || m.closed {
		return false
	}
	m.ch <- ev
	return true
}

// Watching reports whether a watcher is attached.
func (m *MockIdentityProvider) Watching() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ch != nil && !m.closed
}

func (m *MockIdentityProvider) SignIn(ctx context.Context, creds domainauth.Credentials) error {
	m.Log.Add("provider.SignIn")
	m.mu.Lock()
	m.signIns = append(m.signIns, creds)
	m.mu.Unlock()
	if m.SignInFunc != nil {
		return m.SignInFunc(ctx, creds)
	}
	return nil
}

// SignIns returns the credentials passed to SignIn.
func (m *MockIdentityProvider) SignIns() []domainauth.Credentials {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domainauth.Credentials(nil), m.signIns...)
}

func (m *MockIdentityProvider) SignOut(ctx context.Context) error {
	m.Log.Add("provider.SignOut")
	if m.SignOutFunc != nil {
		return m.SignOutFunc(ctx)
	}
	m.Emit(nil)
	return nil
}

// StubCredentials is a CredentialSupplier double that hands out a fixed token.
type StubCredentials struct {
	EstablishFunc func(ctx context.Context, id domainauth.Identity) error
	Log           *CallLog

	mu    sync.Mutex
	token string
}

// NewStubCredentials returns a supplier that establishes "token-<key>".
func NewStubCredentials() *StubCredentials {
	return &StubCredentials{}
}

func (s *StubCredentials) Establish(ctx context.Context, id domainauth.Identity) error {
	s.Log.Add("credentials.Establish")
	if s.EstablishFunc != nil {
		if err := s.EstablishFunc(ctx, id); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = "token-" + id.Key
	return nil
}

func (s *StubCredentials) Token(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		return "", domainauth.ErrNoCredential
	}
	return s.token, nil
}

func (s *StubCredentials) Clear(_ context.Context) error {
	s.Log.Add("credentials.Clear")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	return nil
}

// MemoryIdentityStore is an in-memory identity record store for unit tests.
type MemoryIdentityStore struct {
	mu      sync.Mutex
	records map[string]domainauth.IdentityRecord
}

// NewMemoryIdentityStore creates a new in-memory identity store.
func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{records: make(map[string]domainauth.IdentityRecord)}
}

func (m *MemoryIdentityStore) Save(_ context.Context, sessionID string, rec domainauth.IdentityRecord) error {
	if sessionID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[sessionID] = rec
	return nil
}

func (m *MemoryIdentityStore) Get(_ context.Context, sessionID string) (domainauth.IdentityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[sessionID]
	if !ok || rec.Expired(time.Now()) {
		return domainauth.IdentityRecord{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryIdentityStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, sessionID)
	return nil
}

// MemoryTokenStore is an in-memory token store for unit tests. TTLs are recorded, not enforced.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]string
	ttls   map[string]time.Duration
}

// NewMemoryTokenStore creates a new in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *MemoryTokenStore) Save(_ context.Context, sessionID, token string, ttl time.Duration) error {
	if sessionID == "" || token == "" {
		return errors.New("session ID and token are required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[sessionID] = token
	m.ttls[sessionID] = ttl
	return nil
}

func (m *MemoryTokenStore) Get(_ context.Context, sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[sessionID]
	if !ok {
		return "", ErrNotFound
	}
	return tok, nil
}

func (m *MemoryTokenStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, sessionID)
	delete(m.ttls, sessionID)
	return nil
}

// TTL returns the ttl recorded for sessionID.
func (m *MemoryTokenStore) TTL(sessionID string) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[sessionID]
}

// MemoryRoleCache is an in-memory shared role cache for unit tests. TTLs are ignored.
type MemoryRoleCache struct {
	mu      sync.Mutex
	records map[string]domainauth.RoleRecord
}

// NewMemoryRoleCache creates an empty role cache.
func NewMemoryRoleCache() *MemoryRoleCache {
	return &MemoryRoleCache{records: make(map[string]domainauth.RoleRecord)}
}

func (m *MemoryRoleCache) Get(_ context.Context, key string) (domainauth.RoleRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	return rec, ok, nil
}

func (m *MemoryRoleCache) Set(_ context.Context, rec domainauth.RoleRecord, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.Key] = rec
	return nil
}

func (m *MemoryRoleCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}
