package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	mockauth "github.com/civicwatch/portal/internal/mocks/auth"
)

type fixture struct {
	provider *mockauth.MockIdentityProvider
	creds    *mockauth.StubCredentials
	log      *mockauth.CallLog
	store    *Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := &mockauth.CallLog{}
	provider := &mockauth.MockIdentityProvider{Log: log}
	creds := &mockauth.StubCredentials{Log: log}
	store := New(provider, creds, nil)
	require.NoError(t, store.Observe(context.Background()))
	t.Cleanup(store.Close)
	return &fixture{provider: provider, creds: creds, log: log, store: store}
}

func waitFor(t *testing.T, s *Store, cond func(State) bool) State {
	t.Helper()
	var st State
	require.Eventually(t, func() bool {
		st = s.State()
		return cond(st)
	}, time.Second, 5*time.Millisecond)
	return st
}

func identity(key string) *domainauth.Identity {
	return &domainauth.Identity{Key: key, DisplayName: key}
}

func TestStore_ResolvingUntilFirstEvent(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.store.State().Resolving)

	f.provider.Emit(nil)
	st := waitFor(t, f.store, func(s State) bool { return !s.Resolving })
	assert.Nil(t, st.Identity)
	assert.NoError(t, st.Err)
}

func TestStore_ExchangeRunsBeforeSettling(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	var establishCalls atomic.Int32
	f.creds.EstablishFunc = func(context.Context, domainauth.Identity) error {
		establishCalls.Add(1)
		<-release
		return nil
	}

	f.provider.Emit(identity("a@example.com"))
	st := waitFor(t, f.store, func(s State) bool { return s.Identity != nil })
	assert.True(t, st.Resolving, "must stay resolving while the exchange runs")
	_, err := f.creds.Token(context.Background())
	assert.ErrorIs(t, err, domainauth.ErrNoCredential)

	close(release)
	st = waitFor(t, f.store, func(s State) bool { return !s.Resolving })
	assert.Equal(t, "a@example.com", st.Key())
	tok, err := f.creds.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-a@example.com", tok)

	// Re-emitting the same key does not exchange again.
	f.provider.Emit(identity("a@example.com"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), establishCalls.Load())
}

func TestStore_ExchangeFailureSignsOut(t *testing.T) {
	f := newFixture(t)
	f.creds.EstablishFunc = func(context.Context, domainauth.Identity) error {
		return errors.New("mint refused")
	}

	f.provider.Emit(identity("a@example.com"))
	st := waitFor(t, f.store, func(s State) bool { return !s.Resolving })
	assert.Nil(t, st.Identity)
	assert.ErrorIs(t, st.Err, ErrResolutionFailed)
	assert.Contains(t, f.log.Entries(), "provider.SignOut")

	// The provider's own signed-out event keeps the failure visible.
	time.Sleep(20 * time.Millisecond)
	assert.ErrorIs(t, f.store.State().Err, ErrResolutionFailed)
}

func TestStore_StreamErrorIsNoSession(t *testing.T) {
	f := newFixture(t)
	f.provider.Fail(errors.New("idp unreachable"))

	st := waitFor(t, f.store, func(s State) bool { return !s.Resolving })
	assert.Nil(t, st.Identity)
	assert.ErrorIs(t, st.Err, ErrResolutionFailed)
}

func TestStore_WatchError(t *testing.T) {
	provider := &mockauth.MockIdentityProvider{WatchErr: errors.New("boom")}
	store := New(provider, mockauth.NewStubCredentials(), nil)
	defer store.Close()

	require.Error(t, store.Observe(context.Background()))
	st := store.State()
	assert.False(t, st.Resolving)
	assert.ErrorIs(t, st.Err, ErrResolutionFailed)
}

func TestStore_ObserveTwice(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.store.Observe(context.Background()), ErrAlreadyObserving)
}

func TestStore_SignOutClearsCredentialFirst(t *testing.T) {
	f := newFixture(t)
	f.provider.Emit(identity("a@example.com"))
	waitFor(t, f.store, func(s State) bool { return !s.Resolving && s.Identity != nil })

	require.NoError(t, f.store.SignOut(context.Background()))
	waitFor(t, f.store, func(s State) bool { return s.Identity == nil })

	entries := f.log.Entries()
	require.GreaterOrEqual(t, len(entries), 3)
	assert.Equal(t, []string{"credentials.Establish", "credentials.Clear", "provider.SignOut"}, entries[:3])
	_, err := f.creds.Token(context.Background())
	assert.ErrorIs(t, err, domainauth.ErrNoCredential)
}

func TestStore_SignInErrorDoesNotMutate(t *testing.T) {
	f := newFixture(t)
	f.provider.Emit(nil)
	before := waitFor(t, f.store, func(s State) bool { return !s.Resolving })

	f.provider.SignInFunc = func(context.Context, domainauth.Credentials) error {
		return errors.New("wrong password")
	}
	err := f.store.SignIn(context.Background(), domainauth.Credentials{Email: "a@example.com", Password: "x"})
	require.Error(t, err)
	assert.Equal(t, before, f.store.State())
}

func TestStore_SignInSuccessUpdatesOnlyThroughStream(t *testing.T) {
	f := newFixture(t)
	f.provider.Emit(nil)
	waitFor(t, f.store, func(s State) bool { return !s.Resolving })

	f.provider.SignInFunc = func(context.Context, domainauth.Credentials) error {
		// The provider acknowledged the sign-in but has not emitted yet.
		return nil
	}
	require.NoError(t, f.store.SignIn(context.Background(), domainauth.Credentials{Email: "a@example.com"}))
	assert.Nil(t, f.store.State().Identity)

	f.provider.Emit(identity("a@example.com"))
	waitFor(t, f.store, func(s State) bool { return s.Key() == "a@example.com" && !s.Resolving })
}

func TestStore_RegisterUnsupported(t *testing.T) {
	f := newFixture(t)
	err := f.store.Register(context.Background(), domainauth.Credentials{Email: "a@example.com"})
	assert.Error(t, err)
}

func TestStore_SubscribeLatestValue(t *testing.T) {
	f := newFixture(t)
	ch, unsubscribe := f.store.Subscribe()

	first := <-ch
	assert.True(t, first.Resolving)

	f.provider.Emit(nil)
	waitFor(t, f.store, func(s State) bool { return !s.Resolving })
	f.provider.Emit(identity("a@example.com"))
	waitFor(t, f.store, func(s State) bool { return s.Key() == "a@example.com" && !s.Resolving })

	latest := <-ch
	assert.Equal(t, "a@example.com", latest.Key())

	unsubscribe()
	unsubscribe()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestStore_WaitSettled(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	st, err := f.store.WaitSettled(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, st.Resolving)

	go f.provider.Emit(identity("a@example.com"))
	st, err = f.store.WaitSettled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", st.Key())
}

func TestStore_CloseReleasesSubscribers(t *testing.T) {
	f := newFixture(t)
	ch, _ := f.store.Subscribe()
	<-ch

	f.store.Close()
	_, ok := <-ch
	assert.False(t, ok)
	assert.Eventually(t, func() bool { return !f.provider.Watching() }, time.Second, 5*time.Millisecond)
}
