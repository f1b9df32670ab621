package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
)

func TestMockIdentityProvider_EmitAndSignOut(t *testing.T) {
	provider := NewMockIdentityProvider()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assert.False(t, provider.Emit(nil), "no watcher yet")

	ch, err := provider.Watch(ctx)
	require.NoError(t, err)
	require.True(t, provider.Emit(&domainauth.Identity{Key: "a@example.com"}))

	ev := <-ch
	require.NotNil(t, ev.Identity)
	assert.Equal(t, "a@example.com", ev.Identity.Key)

	require.NoError(t, provider.SignOut(ctx))
	assert.Nil(t, (<-ch).Identity)

	cancel()
	require.Eventually(t, func() bool { return !provider.Watching() }, time.Second, 5*time.Millisecond)
}

func TestMockIdentityProvider_SignInRecordsCredentials(t *testing.T) {
	log := &CallLog{}
	provider := &MockIdentityProvider{
		Log: log,
		SignInFunc: func(context.Context, domainauth.Credentials) error {
			return errors.New("bad password")
		},
	}

	err := provider.SignIn(context.Background(), domainauth.Credentials{Email: "a@example.com"})
	require.Error(t, err)
	assert.Len(t, provider.SignIns(), 1)
	assert.Equal(t, []string{"provider.SignIn"}, log.Entries())
}

func TestStubCredentials(t *testing.T) {
	creds := NewStubCredentials()
	ctx := context.Background()

	_, err := creds.Token(ctx)
	assert.ErrorIs(t, err, domainauth.ErrNoCredential)

	require.NoError(t, creds.Establish(ctx, domainauth.Identity{Key: "a@example.com"}))
	tok, err := creds.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-a@example.com", tok)

	require.NoError(t, creds.Clear(ctx))
	_, err = creds.Token(ctx)
	assert.ErrorIs(t, err, domainauth.ErrNoCredential)
}

func TestMemoryIdentityStore(t *testing.T) {
	store := NewMemoryIdentityStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "sid")
	assert.ErrorIs(t, err, ErrNotFound)

	rec := domainauth.IdentityRecord{Key: "a@example.com", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Save(ctx, "sid", rec))
	got, err := store.Get(ctx, "sid")
	require.NoError(t, err)
	assert.Equal(t, rec.Key, got.Key)

	require.NoError(t, store.Save(ctx, "old", domainauth.IdentityRecord{Key: "b", ExpiresAt: time.Now().Add(-time.Second)}))
	_, err = store.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRoleCache(t *testing.T) {
	cache := NewMemoryRoleCache()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, domainauth.RoleRecord{Key: "a", Role: domainauth.RoleAdmin}, time.Minute))
	rec, ok, err := cache.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domainauth.RoleAdmin, rec.Role)

	require.NoError(t, cache.Delete(ctx, "a"))
	_, ok, _ = cache.Get(ctx, "a")
	assert.False(t, ok)
}
