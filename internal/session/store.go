// Package session holds the single source of truth for who is signed in to one
// browser session. State only changes through the identity provider's stream.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	apperrors "github.com/civicwatch/portal/internal/errors"
	"github.com/civicwatch/portal/internal/ports"
)

// ErrResolutionFailed marks a session that could not be established; it is treated as signed out.
var ErrResolutionFailed = errors.New("session resolution failed")

// ErrAlreadyObserving is returned when Observe is called twice.
var ErrAlreadyObserving = errors.New("session already observed")

// State is a snapshot of the session.
type State struct {
	Identity  *domainauth.Identity
	Resolving bool
	// Err is set when the last transition was a resolution failure.
	Err error
}

// Key returns the signed-in identity key, or "".
func (s State) Key() string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.Key
}

// Store tracks the identity of one browser session.
type Store struct {
	provider ports.IdentityProvider
	creds    ports.CredentialSupplier
	logger   *slog.Logger

	mu      sync.Mutex
	state   State
	changed chan struct{}
	subs    map[uint64]chan State
	nextSub uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Store in the resolving state. Call Observe to attach it to the provider.
func New(provider ports.IdentityProvider, creds ports.CredentialSupplier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		provider: provider,
		creds:    creds,
		logger:   logger,
		state:    State{Resolving: true},
		changed:  make(chan struct{}),
		subs:     make(map[uint64]chan State),
	}
}

// Observe subscribes to the provider's auth-state stream and processes events
// sequentially until ctx ends or Close is called.
func (s *Store) Observe(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return ErrAlreadyObserving
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	events, err := s.provider.Watch(ctx)
	if err != nil {
		close(done)
		s.fail(ctx, err)
		return fmt.Errorf("watch identity provider: %w", err)
	}

	go func() {
		defer close(done)
		for ev := range events {
			s.handle(ctx, ev)
		}
	}()
	return nil
}

func (s *Store) handle(ctx context.Context, ev domainauth.AuthEvent) {
	if ev.Err != nil {
		s.fail(ctx, ev.Err)
		return
	}

	current := s.State()
	if ev.Identity == nil {
		switch {
		case current.Identity != nil:
			s.clearCredentials(ctx)
			s.set(State{})
		case current.Resolving:
			s.set(State{})
		}
		return
	}

	if current.Identity != nil && current.Identity.Key == ev.Identity.Key {
		s.set(State{Identity: ev.Identity})
		return
	}

	// New identity: the backend credential must exist before the session settles.
	s.set(State{Identity: ev.Identity, Resolving: true})
	if err := s.creds.Establish(ctx, *ev.Identity); err != nil {
		s.logger.WarnContext(ctx, "credential exchange failed", "key", ev.Identity.Key, "error", err)
		if signOutErr := s.provider.SignOut(ctx); signOutErr != nil {
			s.logger.WarnContext(ctx, "provider sign-out after failed exchange", "error", signOutErr)
		}
		s.fail(ctx, err)
		return
	}
	s.set(State{Identity: ev.Identity})
}

// fail publishes "no session" carrying a resolution failure. There is no retry.
func (s *Store) fail(ctx context.Context, cause error) {
	s.logger.WarnContext(ctx, "session resolution failed", "error", cause)
	s.clearCredentials(ctx)
	s.set(State{Err: fmt.Errorf("%w: %w", ErrResolutionFailed, cause)})
}

func (s *Store) clearCredentials(ctx context.Context) {
	if err := s.creds.Clear(ctx); err != nil {
		s.logger.WarnContext(ctx, "clear credential", "error", err)
	}
}

// SignIn delegates to the provider. State changes arrive through the stream only.
func (s *Store) SignIn(ctx context.Context, creds domainauth.Credentials) error {
	return s.provider.SignIn(ctx, creds)
}

// Register creates an account when the provider supports it.
func (s *Store) Register(ctx context.Context, creds domainauth.Credentials) error {
	reg, ok := s.provider.(ports.Registrar)
	if !ok {
		return apperrors.Validation("registration is not available with this sign-in provider")
	}
	return reg.Register(ctx, creds)
}

// SignOut clears the persisted credential before asking the provider to end the session.
func (s *Store) SignOut(ctx context.Context) error {
	if err := s.creds.Clear(ctx); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	if err := s.provider.SignOut(ctx); err != nil {
		return fmt.Errorf("provider sign-out: %w", err)
	}
	return nil
}

// State returns the current snapshot.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Changed returns a channel that is closed at the next state change.
func (s *Store) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// Subscribe returns a channel holding the latest state and an unsubscribe func.
// The current state is delivered immediately.
func (s *Store) Subscribe() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan State, 1)
	ch <- s.state
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
		})
	}
}

// WaitSettled blocks until the store is no longer resolving or ctx ends.
func (s *Store) WaitSettled(ctx context.Context) (State, error) {
	for {
		changed := s.Changed()
		st := s.State()
		if !st.Resolving {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-changed:
		}
	}
}

// Close stops observing and releases subscribers.
func (s *Store) Close() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Store) set(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
	close(s.changed)
	s.changed = make(chan struct{})
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}
