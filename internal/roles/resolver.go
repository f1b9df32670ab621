// Package roles resolves the authorization record of the signed-in identity.
// Lookups are keyed by identity key; the newest key always wins.
package roles

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/civicwatch/portal/internal/domain/access"
	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	apperrors "github.com/civicwatch/portal/internal/errors"
	"github.com/civicwatch/portal/internal/ports"
)

var (
	// ErrNoKey is returned when no identity is signed in.
	ErrNoKey = errors.New("role lookup requires a key")
	// ErrResolving is returned while the session is still resolving.
	ErrResolving = errors.New("session is still resolving")
	// ErrSuperseded is returned when the key changed before the lookup finished.
	ErrSuperseded = errors.New("role lookup superseded by a newer key")
)

// Options configures a Resolver.
type Options struct {
	// OnChange is called after every state change.
	OnChange func()
	// OnFetch is called once per backend fetch with its outcome.
	OnFetch func(err error)
	Logger  *slog.Logger
	Now     func() time.Time
}

// Resolver tracks the role state for one portal client.
// Concurrency: methods are safe for concurrent use.
type Resolver struct {
	source   ports.RoleSource
	cache    *Cache
	onChange func()
	onFetch  func(error)
	logger   *slog.Logger
	now      func() time.Time
	group    singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	key       string
	resolving bool
	gen       uint64
	state     access.RoleState
}

// NewResolver creates a Resolver with no key. Fetches run on the resolver's own
// context, which Close cancels.
func NewResolver(source ports.RoleSource, cache *Cache, opts Options) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	onChange := opts.OnChange
	if onChange == nil {
		onChange = func() {}
	}
	onFetch := opts.OnFetch
	if onFetch == nil {
		onFetch = func(error) {}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Resolver{
		source:    source,
		cache:     cache,
		onChange:  onChange,
		onFetch:   onFetch,
		logger:    logger,
		now:       now,
		ctx:       ctx,
		cancel:    cancel,
		resolving: true,
	}
}

// State returns the role state for the current key.
func (r *Resolver) State() access.RoleState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SetKey re-keys the resolver. Any state for the previous key is dropped and
// in-flight lookups for it become irrelevant.
func (r *Resolver) SetKey(key string) {
	r.Sync(key, false)
}

// Sync aligns the resolver with the session: its key and whether it is resolving.
// A fetch starts in the background once a key is present and the session has settled.
func (r *Resolver) Sync(key string, resolving bool) {
	r.mu.Lock()
	changed := false
	if key != r.key {
		r.gen++
		r.key = key
		r.state = access.RoleState{Key: key}
		changed = true
	}
	r.resolving = resolving
	start := key != "" && !resolving && r.state.Record == nil && !r.state.Loading
	r.mu.Unlock()

	if changed {
		r.onChange()
	}
	if start {
		go func() {
			if _, err := r.Get(r.ctx, key); err != nil && !errors.Is(err, ErrSuperseded) {
				r.logger.WarnContext(r.ctx, "background role lookup failed", "key", key, "error", err)
			}
		}()
	}
}

// Get returns the role record for key, from cache or the backend.
// It refuses to fetch while key is empty, the session is resolving, or key is not current.
func (r *Resolver) Get(ctx context.Context, key string) (domainauth.RoleRecord, error) {
	r.mu.Lock()
	switch {
	case key == "":
		r.mu.Unlock()
		return domainauth.RoleRecord{}, ErrNoKey
	case r.resolving:
		r.mu.Unlock()
		return domainauth.RoleRecord{}, ErrResolving
	case key != r.key:
		r.mu.Unlock()
		return domainauth.RoleRecord{}, ErrSuperseded
	}
	gen := r.gen
	r.mu.Unlock()

	if rec, ok := r.cache.Lookup(ctx, key); ok {
		return rec, r.apply(gen, key, rec, nil)
	}

	r.markLoading(gen, key)
	// Flights are per generation: a key that comes back after a detour, or an
	// invalidation, never joins a lookup started for the earlier generation.
	ch := r.group.DoChan(flightKey(key, gen), func() (any, error) {
		rec, err := r.lookup(gen, key)
		if applyErr := r.apply(gen, key, rec, err); applyErr != nil {
			return domainauth.RoleRecord{}, applyErr
		}
		return rec, nil
	})

	select {
	case <-ctx.Done():
		return domainauth.RoleRecord{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return domainauth.RoleRecord{}, res.Err
		}
		if !r.current(gen, key) {
			return domainauth.RoleRecord{}, ErrSuperseded
		}
		rec, _ := res.Val.(domainauth.RoleRecord)
		return rec, nil
	}
}

// Ensure revalidates the current key against the cache, fetching on a miss.
// It is a no-op while no key is set or the session is resolving.
func (r *Resolver) Ensure(ctx context.Context) error {
	r.mu.Lock()
	key, resolving := r.key, r.resolving
	r.mu.Unlock()
	if key == "" || resolving {
		return nil
	}
	_, err := r.Get(ctx, key)
	return err
}

// Invalidate drops the shared cache entry for key. When key is current the
// record is discarded, lookups already in flight are disowned and a fresh one starts.
func (r *Resolver) Invalidate(ctx context.Context, key string) error {
	if err := r.cache.Invalidate(ctx, key); err != nil {
		return fmt.Errorf("invalidate role cache: %w", err)
	}

	r.mu.Lock()
	current := key == r.key && key != ""
	if current {
		r.group.Forget(flightKey(key, r.gen))
		r.gen++
		r.state = access.RoleState{Key: key}
	}
	r.mu.Unlock()

	if current {
		r.onChange()
		r.Sync(key, r.isResolving())
	}
	return nil
}

// Close cancels background fetches.
func (r *Resolver) Close() {
	r.cancel()
}

func (r *Resolver) current(gen uint64, key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen == gen && r.key == key
}

func (r *Resolver) isResolving() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolving
}

func flightKey(key string, gen uint64) string {
	return key + "#" + strconv.FormatUint(gen, 10)
}

// lookup fetches key and caches the result. A record that lost a race with an
// invalidation is fetched once more while gen is still current.
func (r *Resolver) lookup(gen uint64, key string) (domainauth.RoleRecord, error) {
	for attempt := 0; ; attempt++ {
		version := r.cache.Version(key)
		rec, err := r.fetch(key)
		if err != nil || !r.current(gen, key) {
			return rec, err
		}
		if r.cache.StoreIf(r.ctx, rec, version) || attempt > 0 {
			return rec, nil
		}
		r.logger.DebugContext(r.ctx, "role invalidated during lookup, fetching again", "key", key)
	}
}

func (r *Resolver) fetch(key string) (domainauth.RoleRecord, error) {
	rec, err := r.source.FetchRole(r.ctx, key)
	r.onFetch(err)
	switch {
	case apperrors.IsNotFound(err):
		// No backend record yet: the explicit lowest-privilege default.
		rec = domainauth.DefaultRoleRecord(key)
	case err != nil:
		return domainauth.RoleRecord{}, err
	}
	rec.Key = key
	if rec.Role == "" {
		rec.Role = domainauth.RoleCitizen
	}
	rec.FetchedAt = r.now()
	return rec, nil
}

func (r *Resolver) markLoading(gen uint64, key string) {
	r.mu.Lock()
	if r.gen != gen || r.key != key {
		r.mu.Unlock()
		return
	}
	r.state.Loading = true
	r.mu.Unlock()
	r.onChange()
}

// apply records a lookup outcome unless the key moved on meanwhile.
func (r *Resolver) apply(gen uint64, key string, rec domainauth.RoleRecord, err error) error {
	r.mu.Lock()
	if r.gen != gen || r.key != key {
		r.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		r.state = access.RoleState{Key: key, Err: err}
	} else {
		r.state = access.RoleState{Key: key, Record: &rec}
	}
	r.mu.Unlock()

	r.onChange()
	return err
}
