package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/civicwatch/portal/internal/domain/access"
	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	"github.com/civicwatch/portal/internal/domain/issue"
	apperrors "github.com/civicwatch/portal/internal/errors"
	"github.com/civicwatch/portal/internal/observability/metrics"
	"github.com/civicwatch/portal/internal/observability/statsd"
	"github.com/civicwatch/portal/internal/ports"
	"github.com/civicwatch/portal/internal/roles"
	"github.com/civicwatch/portal/internal/session"
)

// Checkout prices sent to the payment backend.
const (
	SubscriptionCost = 1000
	FreeReportLimit  = 3
	BoostCost        = 100
)

// PriorityHigh is the priority a boosted issue carries.
const PriorityHigh = "High"

// AuthFailureSource reports backend responses that invalidate the session credential.
type AuthFailureSource interface {
	OnAuthFailure(fn func(ctx context.Context, err error)) (unregister func())
	Close()
}

// SessionDeps are the per-browser-session collaborators a Portal binds together.
type SessionDeps struct {
	Provider    ports.IdentityProvider
	Credentials ports.CredentialSupplier
	Gateway     AuthFailureSource
	Backend     ports.IssueBackend
}

// PortalConfig tunes a Portal.
type PortalConfig struct {
	// SettleTimeout bounds how long Guard waits for the decision to leave Loading.
	SettleTimeout time.Duration
}

// PortalOptions groups dependencies for a Portal.
type PortalOptions struct {
	SessionID string
	Deps      SessionDeps
	RoleCache *roles.Cache
	Config    PortalConfig
	Logger    *slog.Logger
	Metrics   statsd.Sink
	Now       func() time.Time
}

// Portal is the portal client of one browser session: its Session Store, Role
// Resolver and request gateway, wired so the resolver follows the session.
type Portal struct {
	sessionID string
	store     *session.Store
	resolver  *roles.Resolver
	cache     *roles.Cache
	backend   ports.IssueBackend
	gateway   AuthFailureSource
	settle    time.Duration
	logger    *slog.Logger
	metrics   statsd.Sink
	now       func() time.Time

	mu      sync.Mutex
	changed chan struct{}

	lastSeen    atomic.Int64
	signingOut  atomic.Bool
	loginNotice atomic.Bool
	unhook      func()
	unsubscribe func()
	loopDone    chan struct{}
	closeOnce   sync.Once
	startOnce   sync.Once
	startErr    error
}

var _ access.Source = (*Portal)(nil)

// NewPortal wires a Portal. Call Start to begin observing the identity provider.
func NewPortal(opts PortalOptions) (*Portal, error) {
	d := opts.Deps
	if d.Provider == nil || d.Credentials == nil || d.Gateway == nil || d.Backend == nil {
		return nil, errors.New("portal requires provider, credentials, gateway and backend")
	}
	if opts.RoleCache == nil {
		return nil, errors.New("portal requires a role cache")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "portal")
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	settle := opts.Config.SettleTimeout
	if settle <= 0 {
		settle = 2 * time.Second
	}

	p := &Portal{
		sessionID: opts.SessionID,
		cache:     opts.RoleCache,
		backend:   d.Backend,
		gateway:   d.Gateway,
		settle:    settle,
		logger:    logger,
		metrics:   opts.Metrics,
		now:       now,
		changed:   make(chan struct{}),
		loopDone:  make(chan struct{}),
	}
	p.store = session.New(d.Provider, d.Credentials, logger)
	p.resolver = roles.NewResolver(d.Backend, opts.RoleCache, roles.Options{
		OnChange: p.notify,
		OnFetch:  func(err error) { metrics.EmitRoleFetch(p.metrics, err) },
		Logger:   logger,
		Now:      now,
	})
	p.unhook = d.Gateway.OnAuthFailure(p.onAuthFailure)
	p.touch()
	return p, nil
}

// Start attaches the Session Store to the provider and keeps the resolver in
// step with it until Close. ctx must outlive individual requests.
func (p *Portal) Start(ctx context.Context) error {
	p.startOnce.Do(func() {
		states, unsubscribe := p.store.Subscribe()
		p.unsubscribe = unsubscribe
		go p.follow(states)

		if err := p.store.Observe(ctx); err != nil {
			p.startErr = fmt.Errorf("observe session: %w", err)
		}
	})
	return p.startErr
}

func (p *Portal) follow(states <-chan session.State) {
	defer close(p.loopDone)
	for st := range states {
		p.resolver.Sync(st.Key(), st.Resolving)
		if st.Identity == nil && !st.Resolving {
			p.signingOut.Store(false)
		}
		p.notify()
	}
}

// SessionID returns the browser session this portal serves.
func (p *Portal) SessionID() string { return p.sessionID }

// Snapshot implements access.Source.
func (p *Portal) Snapshot() (access.SessionState, access.RoleState) {
	st := p.store.State()
	return access.SessionState{Identity: st.Identity, Resolving: st.Resolving}, p.resolver.State()
}

// Changed implements access.Source.
func (p *Portal) Changed() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.changed
}

func (p *Portal) notify() {
	p.mu.Lock()
	defer p.mu.Unlock()
	close(p.changed)
	p.changed = make(chan struct{})
}

// Session returns the current session snapshot.
func (p *Portal) Session() session.State { return p.store.State() }

// Role returns the current role state.
func (p *Portal) Role() access.RoleState { return p.resolver.State() }

// Backend returns the session-authenticated backend for read calls.
func (p *Portal) Backend() ports.IssueBackend { return p.backend }

// Guard decides what req shows, waiting up to the settle timeout for session and
// role resolution. A decision still Loading at the deadline is returned as is.
func (p *Portal) Guard(ctx context.Context, req access.Request) (access.Decision, error) {
	p.touch()
	started := p.now()

	waitCtx, cancel := context.WithTimeout(ctx, p.settle)
	defer cancel()

	if err := p.resolver.Ensure(waitCtx); err != nil && !errors.Is(err, roles.ErrSuperseded) && waitCtx.Err() == nil {
		p.logger.DebugContext(ctx, "role revalidation failed", "error", err)
	}

	d, err := access.Await(waitCtx, p, req)
	if err != nil && ctx.Err() != nil {
		return d, ctx.Err()
	}

	metrics.EmitGuardDecision(p.metrics, metrics.GuardMetric{
		Route:    req.Path,
		Decision: string(d.Kind),
		Reason:   string(d.Reason),
		Waited:   p.now().Sub(started),
	})
	return d, nil
}

// TakeLoginNotice reports, once, that the session was ended by the backend.
func (p *Portal) TakeLoginNotice() bool {
	return p.loginNotice.Swap(false)
}

// SignIn delegates to the Session Store.
func (p *Portal) SignIn(ctx context.Context, creds domainauth.Credentials) error {
	p.touch()
	return p.store.SignIn(ctx, creds)
}

// Register creates an account and signs it in.
func (p *Portal) Register(ctx context.Context, creds domainauth.Credentials) error {
	p.touch()
	return p.store.Register(ctx, creds)
}

// SignOut ends the session.
func (p *Portal) SignOut(ctx context.Context) error {
	p.touch()
	return p.store.SignOut(ctx)
}

// SignInAndWait signs in and waits, bounded by the settle timeout, for the
// session to settle on the outcome.
func (p *Portal) SignInAndWait(ctx context.Context, creds domainauth.Credentials) (session.State, error) {
	return p.awaitTransition(ctx, func(ctx context.Context) error { return p.store.SignIn(ctx, creds) })
}

// RegisterAndWait registers and waits for the new account's session to settle.
func (p *Portal) RegisterAndWait(ctx context.Context, creds domainauth.Credentials) (session.State, error) {
	return p.awaitTransition(ctx, func(ctx context.Context) error { return p.store.Register(ctx, creds) })
}

// awaitTransition runs start, then waits for at least one session change
// followed by the session settling.
func (p *Portal) awaitTransition(ctx context.Context, start func(context.Context) error) (session.State, error) {
	p.touch()
	changed := p.store.Changed()
	if err := start(ctx); err != nil {
		return p.store.State(), err
	}
	ctx, cancel := context.WithTimeout(ctx, p.settle)
	defer cancel()
	select {
	case <-changed:
	case <-ctx.Done():
		return p.store.State(), ctx.Err()
	}
	return p.store.WaitSettled(ctx)
}

// WaitSettled blocks until the session is no longer resolving, bounded by the settle timeout.
func (p *Portal) WaitSettled(ctx context.Context) (session.State, error) {
	ctx, cancel := context.WithTimeout(ctx, p.settle)
	defer cancel()
	return p.store.WaitSettled(ctx)
}

// onAuthFailure forces a sign-out after the backend rejected the session credential.
func (p *Portal) onAuthFailure(ctx context.Context, err error) {
	key := p.store.State().Key()
	if key == "" || !p.signingOut.CompareAndSwap(false, true) {
		return
	}
	p.logger.WarnContext(ctx, "forcing sign-out", "key", key, "code", apperrors.GetCode(err))
	metrics.EmitForcedSignOut(p.metrics, err)
	p.loginNotice.Store(true)

	if signOutErr := p.store.SignOut(ctx); signOutErr != nil {
		p.logger.ErrorContext(ctx, "forced sign-out failed", "error", signOutErr)
		p.signingOut.Store(false)
	}
	if cacheErr := p.cache.Invalidate(ctx, key); cacheErr != nil {
		p.logger.WarnContext(ctx, "drop cached role after forced sign-out", "key", key, "error", cacheErr)
	}
}

// identity returns the signed-in identity or an Unauthorized error.
func (p *Portal) identity() (*domainauth.Identity, error) {
	id := p.store.State().Identity
	if id == nil {
		return nil, apperrors.Unauthorized("sign in required")
	}
	return id, nil
}

// invalidate drops the cached role for key; the current session re-fetches when it is the subject.
func (p *Portal) invalidate(ctx context.Context, key string) error {
	if err := p.resolver.Invalidate(ctx, domainauth.NormalizeKey(key)); err != nil {
		p.logger.WarnContext(ctx, "role cache invalidation failed", "key", key, "error", err)
		return err
	}
	return nil
}

// BlockUser blocks or unblocks an account. userID is the backend id, key its email.
func (p *Portal) BlockUser(ctx context.Context, userID, key string, blocked bool) error {
	p.touch()
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(key) == "" {
		return apperrors.Validation("user id and email are required")
	}
	if err := p.backend.SetBlocked(ctx, userID, blocked); err != nil {
		return fmt.Errorf("set blocked: %w", err)
	}
	return p.invalidate(ctx, key)
}

// ChangeRole assigns role to the account identified by key.
func (p *Portal) ChangeRole(ctx context.Context, key string, role domainauth.Role) error {
	p.touch()
	if _, ok := domainauth.ParseRole(string(role)); !ok {
		return apperrors.ValidationField("role", "unknown role")
	}
	if err := p.backend.SetRole(ctx, key, role); err != nil {
		return fmt.Errorf("set role: %w", err)
	}
	return p.invalidate(ctx, key)
}

// AddStaff creates a staff account.
func (p *Portal) AddStaff(ctx context.Context, staff issue.NewStaff) error {
	p.touch()
	staff.Email = domainauth.NormalizeKey(staff.Email)
	if staff.Email == "" || strings.TrimSpace(staff.DisplayName) == "" {
		return apperrors.Validation("email and name are required")
	}
	if err := p.backend.AddStaff(ctx, staff); err != nil {
		return fmt.Errorf("add staff: %w", err)
	}
	return p.invalidate(ctx, staff.Email)
}

// RemoveStaff deletes a staff account.
func (p *Portal) RemoveStaff(ctx context.Context, key string) error {
	p.touch()
	if err := p.backend.RemoveStaff(ctx, key); err != nil {
		return fmt.Errorf("remove staff: %w", err)
	}
	return p.invalidate(ctx, key)
}

// UpdateProfile changes the signed-in user's display name.
func (p *Portal) UpdateProfile(ctx context.Context, displayName string) error {
	p.touch()
	id, err := p.identity()
	if err != nil {
		return err
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return apperrors.ValidationField("displayName", "name is required")
	}
	if err := p.backend.UpdateProfile(ctx, id.Key, displayName); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return p.invalidate(ctx, id.Key)
}

// StartSubscription opens a premium subscription checkout.
func (p *Portal) StartSubscription(ctx context.Context) (issue.Checkout, error) {
	p.touch()
	if _, err := p.identity(); err != nil {
		return issue.Checkout{}, err
	}
	checkout, err := p.backend.CreateSubscriptionCheckout(ctx, SubscriptionCost)
	if err != nil {
		return issue.Checkout{}, fmt.Errorf("create subscription checkout: %w", err)
	}
	return checkout, nil
}

// ConfirmSubscription records a completed payment so the premium flag is re-read.
func (p *Portal) ConfirmSubscription(ctx context.Context, transactionID string) error {
	p.touch()
	if strings.TrimSpace(transactionID) == "" {
		return apperrors.ValidationField("transactionId", "transaction id is required")
	}
	id, err := p.identity()
	if err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "payment confirmed", "key", id.Key, "transaction_id", transactionID)
	return p.invalidate(ctx, id.Key)
}

// BoostIssue opens a checkout that raises the issue's priority to High.
func (p *Portal) BoostIssue(ctx context.Context, issueID string) (issue.Checkout, error) {
	p.touch()
	if _, err := p.identity(); err != nil {
		return issue.Checkout{}, err
	}
	target, err := p.backend.Issue(ctx, issueID)
	if err != nil {
		return issue.Checkout{}, fmt.Errorf("load issue: %w", err)
	}
	if target.Priority == PriorityHigh {
		return issue.Checkout{}, apperrors.Validation("issue is already boosted")
	}
	checkout, err := p.backend.CreateBoostCheckout(ctx, issueID, BoostCost)
	if err != nil {
		return issue.Checkout{}, fmt.Errorf("create boost checkout: %w", err)
	}
	return checkout, nil
}

// ReportIssue files an issue on behalf of the signed-in citizen.
func (p *Portal) ReportIssue(ctx context.Context, in issue.NewIssue) (string, error) {
	p.touch()
	id, err := p.identity()
	if err != nil {
		return "", err
	}
	if err := validateIssueFields(in.Title, in.Description, in.Category); err != nil {
		return "", err
	}
	stats, err := p.backend.CitizenStats(ctx, id.Key)
	if err != nil {
		return "", fmt.Errorf("load citizen stats: %w", err)
	}
	if !stats.IsPremium && stats.TotalReported >= FreeReportLimit {
		return "", apperrors.Validation("free users can report at most 3 issues, subscribe for unlimited reports")
	}
	in.CitizenEmail = id.Key
	in.CitizenName = id.DisplayName
	issueID, err := p.backend.ReportIssue(ctx, in)
	if err != nil {
		return "", fmt.Errorf("report issue: %w", err)
	}
	return issueID, nil
}

// UpdateMyIssue edits one of the signed-in citizen's issues while it is still pending.
func (p *Portal) UpdateMyIssue(ctx context.Context, issueID string, in issue.IssueEdit) error {
	p.touch()
	id, err := p.identity()
	if err != nil {
		return err
	}
	if err := validateIssueFields(in.Title, in.Description, in.Category); err != nil {
		return err
	}
	target, err := p.backend.Issue(ctx, issueID)
	if err != nil {
		return fmt.Errorf("load issue: %w", err)
	}
	if domainauth.NormalizeKey(target.CitizenEmail) != domainauth.NormalizeKey(id.Key) {
		return apperrors.Forbidden("only the reporter can edit an issue")
	}
	if target.Status != issue.StatusPending {
		return apperrors.Validation("only pending issues can be edited")
	}
	if err := p.backend.UpdateMyIssue(ctx, issueID, in); err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	return nil
}

// Report field limits.
const (
	minTitleLen       = 5
	minDescriptionLen = 20
)

func validateIssueFields(title, description, category string) error {
	switch {
	case len(strings.TrimSpace(title)) < minTitleLen:
		return apperrors.ValidationField("title", "title must be at least 5 characters")
	case len(strings.TrimSpace(description)) < minDescriptionLen:
		return apperrors.ValidationField("description", "description must be at least 20 characters")
	case !issue.IsCategory(category):
		return apperrors.ValidationField("category", "category is required")
	}
	return nil
}

func (p *Portal) touch() {
	p.lastSeen.Store(p.now().UnixNano())
}

// LastSeen returns when the portal last served its browser session.
func (p *Portal) LastSeen() time.Time {
	return time.Unix(0, p.lastSeen.Load())
}

// Close tears the portal down: hooks are removed and observers stopped.
func (p *Portal) Close() {
	p.closeOnce.Do(func() {
		p.unhook()
		p.gateway.Close()
		p.store.Close()
		p.resolver.Close()
		if p.unsubscribe != nil {
			p.unsubscribe()
			<-p.loopDone
		}
	})
}
