package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/civicwatch/portal/internal/observability/metrics"
	"github.com/civicwatch/portal/internal/observability/statsd"
	"github.com/civicwatch/portal/internal/roles"
)

// ErrRegistryClosed is returned by Get after Close.
var ErrRegistryClosed = errors.New("portal registry closed")

// SessionFactory builds the collaborators of a new browser session.
type SessionFactory func(sessionID string) (SessionDeps, error)

// RegistryConfig tunes a Registry.
type RegistryConfig struct {
	Portal PortalConfig
	// IdleTimeout evicts portals not used for this long.
	IdleTimeout time.Duration
	// SweepInterval is how often Run looks for idle portals.
	SweepInterval time.Duration
}

// RegistryOptions groups dependencies for a Registry.
type RegistryOptions struct {
	Factory   SessionFactory
	RoleCache *roles.Cache
	Config    RegistryConfig
	Logger    *slog.Logger
	Metrics   statsd.Sink
	Now       func() time.Time
}

// Registry owns the portal clients of all live browser sessions.
type Registry struct {
	factory SessionFactory
	cache   *roles.Cache
	cfg     RegistryConfig
	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	portals map[string]*Portal
	closed  bool
}

// NewRegistry constructs a Registry. Portals observe their providers on a
// context owned by the registry, which Close cancels.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	if opts.Factory == nil {
		return nil, errors.New("registry requires a session factory")
	}
	if opts.RoleCache == nil {
		return nil, errors.New("registry requires a role cache")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	cfg := opts.Config
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		factory: opts.Factory,
		cache:   opts.RoleCache,
		cfg:     cfg,
		logger:  logger.With("component", "portal_registry"),
		metrics: opts.Metrics,
		now:     now,
		ctx:     ctx,
		cancel:  cancel,
		portals: make(map[string]*Portal),
	}, nil
}

// Get returns the portal for sessionID, creating and starting it on first use.
func (r *Registry) Get(sessionID string) (*Portal, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if p, ok := r.portals[sessionID]; ok {
		r.mu.Unlock()
		p.touch()
		return p, nil
	}
	r.mu.Unlock()

	p, err := r.build(sessionID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		p.Close()
		return nil, ErrRegistryClosed
	}
	if existing, ok := r.portals[sessionID]; ok {
		r.mu.Unlock()
		p.Close()
		existing.touch()
		return existing, nil
	}
	r.portals[sessionID] = p
	n := len(r.portals)
	r.mu.Unlock()

	metrics.EmitActivePortals(r.metrics, n)
	return p, nil
}

func (r *Registry) build(sessionID string) (*Portal, error) {
	deps, err := r.factory(sessionID)
	if err != nil {
		return nil, fmt.Errorf("build session %s: %w", sessionID, err)
	}
	p, err := NewPortal(PortalOptions{
		SessionID: sessionID,
		Deps:      deps,
		RoleCache: r.cache,
		Config:    r.cfg.Portal,
		Logger:    r.logger,
		Metrics:   r.metrics,
		Now:       r.now,
	})
	if err != nil {
		return nil, err
	}
	if err := p.Start(r.ctx); err != nil {
		// The session reads as signed out; the portal stays usable.
		r.logger.Warn("portal started without provider stream", "error", err)
	}
	return p, nil
}

// Lookup returns the portal for sessionID without creating one.
func (r *Registry) Lookup(sessionID string) (*Portal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.portals[sessionID]
	return p, ok
}

// Evict closes and forgets the portal for sessionID.
func (r *Registry) Evict(sessionID string) {
	r.mu.Lock()
	p, ok := r.portals[sessionID]
	delete(r.portals, sessionID)
	n := len(r.portals)
	r.mu.Unlock()

	if ok {
		p.Close()
		metrics.EmitActivePortals(r.metrics, n)
	}
}

// Len reports the number of live portals.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.portals)
}

// Sweep evicts portals idle longer than the idle timeout and returns how many were evicted.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.cfg.IdleTimeout)

	r.mu.Lock()
	var idle []*Portal
	for id, p := range r.portals {
		if p.LastSeen().Before(cutoff) {
			idle = append(idle, p)
			delete(r.portals, id)
		}
	}
	n := len(r.portals)
	r.mu.Unlock()

	for _, p := range idle {
		p.Close()
	}
	if len(idle) > 0 {
		r.logger.Debug("evicted idle portals", "count", len(idle), "remaining", n)
		metrics.EmitActivePortals(r.metrics, n)
	}
	return len(idle)
}

// Run sweeps idle portals until ctx ends, then closes the registry.
func (r *Registry) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.Close()
			return nil
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close tears down every portal. Later Get calls fail.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	portals := r.portals
	r.portals = make(map[string]*Portal)
	r.mu.Unlock()

	r.cancel()
	var wg sync.WaitGroup
	for _, p := range portals {
		wg.Add(1)
		go func(p *Portal) {
			defer wg.Done()
			p.Close()
		}(p)
	}
	wg.Wait()
}
