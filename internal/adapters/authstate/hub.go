// Package authstate fans identity changes out to the watchers of a browser session.
// Identity providers persist state first and then Publish; Watch always starts with
// the persisted state so late subscribers never miss the current identity.
package authstate

import (
	"context"
	"sync"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
)

// Loader reads the persisted identity for a session; nil means signed out.
type Loader func(ctx context.Context, sessionID string) (*domainauth.Identity, error)

const queueSize = 8

type subscriber struct {
	ch chan domainauth.AuthEvent
}

// Hub tracks watchers per browser session.
type Hub struct {
	mu       sync.Mutex
	subs     map[string]map[*subscriber]struct{}
	versions map[string]uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs:     make(map[string]map[*subscriber]struct{}),
		versions: make(map[string]uint64),
	}
}

// Publish delivers id to every watcher of sessionID. A nil id means signed out.
func (h *Hub) Publish(sessionID string, id *domainauth.Identity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.versions[sessionID]++
	for s := range h.subs[sessionID] {
		s.offer(domainauth.AuthEvent{Identity: id})
	}
}

// Watch loads the current state with load, emits it, then forwards published changes
// until ctx ends. The returned channel is closed afterwards.
func (h *Hub) Watch(ctx context.Context, sessionID string, load Loader) (<-chan domainauth.AuthEvent, error) {
	sub := &subscriber{ch: make(chan domainauth.AuthEvent, queueSize)}

	for {
		h.mu.Lock()
		v := h.versions[sessionID]
		h.mu.Unlock()

		id, err := load(ctx, sessionID)
		if err != nil {
			return nil, err
		}

		h.mu.Lock()
		if h.versions[sessionID] != v {
			// A change landed while loading; read again.
			h.mu.Unlock()
			continue
		}
		sub.offer(domainauth.AuthEvent{Identity: id})
		if h.subs[sessionID] == nil {
			h.subs[sessionID] = make(map[*subscriber]struct{})
		}
		h.subs[sessionID][sub] = struct{}{}
		h.mu.Unlock()
		break
	}

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[sessionID], sub)
		if len(h.subs[sessionID]) == 0 {
			delete(h.subs, sessionID)
			delete(h.versions, sessionID)
		}
		close(sub.ch)
	}()

	return sub.ch, nil
}

// Watchers reports how many watchers sessionID currently has.
func (h *Hub) Watchers(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}

// offer enqueues ev, dropping the oldest queued event when full.
// Every event carries full state, so only the newest matters. Callers hold h.mu.
func (s *subscriber) offer(ev domainauth.AuthEvent) {
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}
