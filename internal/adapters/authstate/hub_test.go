package authstate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
)

func staticLoader(id *domainauth.Identity) Loader {
	return func(context.Context, string) (*domainauth.Identity, error) { return id, nil }
}

func recv(t *testing.T, ch <-chan domainauth.AuthEvent) domainauth.AuthEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return domainauth.AuthEvent{}
}

func TestHub_WatchEmitsCurrentStateFirst(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	current := &domainauth.Identity{Key: "a@example.com"}
	ch, err := hub.Watch(ctx, "sid", staticLoader(current))
	require.NoError(t, err)

	ev := recv(t, ch)
	require.NotNil(t, ev.Identity)
	assert.Equal(t, "a@example.com", ev.Identity.Key)

	hub.Publish("sid", nil)
	assert.Nil(t, recv(t, ch).Identity)
}

func TestHub_PublishIsScopedToSession(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := hub.Watch(ctx, "a", staticLoader(nil))
	require.NoError(t, err)
	b, err := hub.Watch(ctx, "b", staticLoader(nil))
	require.NoError(t, err)
	recv(t, a)
	recv(t, b)

	hub.Publish("a", &domainauth.Identity{Key: "x@example.com"})
	assert.Equal(t, "x@example.com", recv(t, a).Identity.Key)

	select {
	case ev := <-b:
		t.Fatalf("unexpected event for other session: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_CancelClosesChannel(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := hub.Watch(ctx, "sid", staticLoader(nil))
	require.NoError(t, err)
	recv(t, ch)
	assert.Equal(t, 1, hub.Watchers("sid"))

	cancel()
	require.Eventually(t, func() bool {
		_, ok := <-ch
		return !ok
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.Watchers("sid"))
}

func TestHub_LoaderError(t *testing.T) {
	hub := NewHub()
	_, err := hub.Watch(context.Background(), "sid", func(context.Context, string) (*domainauth.Identity, error) {
		return nil, errors.New("store down")
	})
	require.Error(t, err)
	assert.Equal(t, 0, hub.Watchers("sid"))
}

func TestHub_SlowWatcherKeepsLatest(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := hub.Watch(ctx, "sid", staticLoader(nil))
	require.NoError(t, err)

	for i := 0; i < queueSize*3; i++ {
		hub.Publish("sid", &domainauth.Identity{Key: "k"})
	}
	hub.Publish("sid", &domainauth.Identity{Key: "last@example.com"})

	var last domainauth.AuthEvent
	for len(ch) > 0 {
		last = <-ch
	}
	require.NotNil(t, last.Identity)
	assert.Equal(t, "last@example.com", last.Identity.Key)
}
