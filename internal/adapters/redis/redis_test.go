package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	"github.com/civicwatch/portal/internal/testutil"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	return testutil.SetupTestRedis(t)
}

func TestIdentityStore_SaveAndGet(t *testing.T) {
	client := setupTestRedis(t)
	store := NewIdentityStore(client)
	ctx := context.Background()

	rec := domainauth.IdentityRecord{
		Key:          "casey@example.com",
		DisplayName:  "Casey Citizen",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(30 * time.Minute),
	}
	require.NoError(t, store.Save(ctx, "sid-1", rec))

	got, err := store.Get(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, rec.Key, got.Key)
	assert.Equal(t, rec.DisplayName, got.DisplayName)
	assert.Equal(t, rec.RefreshToken, got.RefreshToken)
	assert.WithinDuration(t, rec.ExpiresAt, got.ExpiresAt, time.Second)

	ttl, err := client.TTL(ctx, "identity:sid-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 29*time.Minute)
}

func TestIdentityStore_Errors(t *testing.T) {
	client := setupTestRedis(t)
	store := NewIdentityStore(client)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.Equal(t, ErrNotFound, err)

	_, err = store.Get(ctx, "")
	assert.Equal(t, ErrNotFound, err)

	err = store.Save(ctx, "", domainauth.IdentityRecord{Key: "a", ExpiresAt: time.Now().Add(time.Minute)})
	assert.Error(t, err)

	err = store.Save(ctx, "sid", domainauth.IdentityRecord{Key: "a", ExpiresAt: time.Now().Add(-time.Minute)})
	assert.Error(t, err)

	assert.NoError(t, store.Delete(ctx, ""))
}

func TestIdentityStore_ExpiredRecordIsDeleted(t *testing.T) {
	client := setupTestRedis(t)
	store := NewIdentityStore(client)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.Save(ctx, "sid-2", domainauth.IdentityRecord{Key: "a@example.com", ExpiresAt: now.Add(time.Hour)}))

	store.now = testutil.FixedTimeFunc(now.Add(2 * time.Hour))
	_, err := store.Get(ctx, "sid-2")
	assert.Equal(t, ErrNotFound, err)

	exists, err := client.Exists(ctx, "identity:sid-2").Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestTokenStore_Lifecycle(t *testing.T) {
	client := setupTestRedis(t)
	store := NewTokenStore(client)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "sid-1", "tok-1", time.Minute))
	tok, err := store.Get(ctx, "sid-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", tok)

	require.NoError(t, store.Delete(ctx, "sid-1"))
	_, err = store.Get(ctx, "sid-1")
	assert.Equal(t, ErrNotFound, err)

	assert.Error(t, store.Save(ctx, "sid-1", "", time.Minute))
	assert.Error(t, store.Save(ctx, "sid-1", "tok", 0))
}

func TestRoleCache_SetGetDelete(t *testing.T) {
	client := setupTestRedis(t)
	cache := NewRoleCache(client)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, ok)

	rec := domainauth.RoleRecord{Key: "a@example.com", Role: domainauth.RoleStaff, IsPremium: true}
	require.NoError(t, cache.Set(ctx, rec, time.Minute))

	got, ok, err := cache.Get(ctx, "a@example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domainauth.RoleStaff, got.Role)
	assert.True(t, got.IsPremium)

	require.NoError(t, cache.Delete(ctx, "a@example.com"))
	_, ok, err = cache.Get(ctx, "a@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}
