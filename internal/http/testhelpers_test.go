package httpx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	"github.com/civicwatch/portal/internal/domain/issue"
	apperrors "github.com/civicwatch/portal/internal/errors"
	mockauth "github.com/civicwatch/portal/internal/mocks/auth"
	"github.com/civicwatch/portal/internal/ports"
	"github.com/civicwatch/portal/internal/roles"
	"github.com/civicwatch/portal/internal/service"
)

const (
	citizenKey = "casey@example.com"
	staffKey   = "sam@example.com"
	adminKey   = "alex@example.com"
)

// stubBackend serves canned records for handler tests.
type stubBackend struct {
	ports.IssueBackend

	mu       sync.Mutex
	records  map[string]domainauth.RoleRecord
	gate     chan struct{} // FetchRole blocks until closed when set
	issues   []issue.Issue
	reported []issue.NewIssue
	edited   map[string]issue.IssueEdit
	upvoted  []string
}

func newStubBackend() *stubBackend {
	return &stubBackend{
		records: map[string]domainauth.RoleRecord{
			citizenKey: {Key: citizenKey, Role: domainauth.RoleCitizen},
			staffKey:   {Key: staffKey, Role: domainauth.RoleStaff},
			adminKey:   {Key: adminKey, Role: domainauth.RoleAdmin},
		},
		issues: []issue.Issue{
			{ID: "i-1", Title: "Pothole on Main St", Category: "Pothole", Status: issue.StatusResolved, Priority: "Normal", CitizenEmail: citizenKey},
			{ID: "i-2", Title: "Dark streetlight", Category: "Streetlight", Status: issue.StatusPending, Priority: "Normal", CitizenEmail: citizenKey},
		},
	}
}

func (b *stubBackend) setRecord(rec domainauth.RoleRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[rec.Key] = rec
}

func (b *stubBackend) holdRoles() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gate = make(chan struct{})
}

func (b *stubBackend) releaseRoles() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gate != nil {
		close(b.gate)
		b.gate = nil
	}
}

func (b *stubBackend) FetchRole(ctx context.Context, key string) (domainauth.RoleRecord, error) {
	b.mu.Lock()
	gate := b.gate
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domainauth.RoleRecord{}, ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[key]
	if !ok {
		return domainauth.RoleRecord{}, apperrors.NotFound("user not found")
	}
	return rec, nil
}

func (b *stubBackend) AllIssues(_ context.Context, f issue.Filter) (issue.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []issue.Issue
	for _, is := range b.issues {
		if f.Status != "" && is.Status != f.Status {
			continue
		}
		out = append(out, is)
	}
	return issue.Page{Issues: out, Total: len(out), Page: 1, TotalPages: 1}, nil
}

func (b *stubBackend) Issue(_ context.Context, id string) (issue.Issue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, is := range b.issues {
		if is.ID == id {
			return is, nil
		}
	}
	return issue.Issue{}, apperrors.NotFound("issue not found")
}

func (b *stubBackend) IssueLogs(context.Context, string) ([]issue.TrackingLog, error) {
	return nil, nil
}

func (b *stubBackend) Upvote(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.upvoted = append(b.upvoted, id)
	return nil
}

func (b *stubBackend) CitizenStats(context.Context, string) (issue.CitizenStats, error) {
	return issue.CitizenStats{TotalReported: 1}, nil
}

func (b *stubBackend) ReportIssue(_ context.Context, in issue.NewIssue) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reported = append(b.reported, in)
	return "i-9", nil
}

func (b *stubBackend) UpdateMyIssue(_ context.Context, id string, in issue.IssueEdit) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.edited == nil {
		b.edited = make(map[string]issue.IssueEdit)
	}
	b.edited[id] = in
	return nil
}

func (b *stubBackend) AdminStats(context.Context) (issue.AdminStats, error) {
	return issue.AdminStats{TotalIssues: 2}, nil
}

func (b *stubBackend) ListStaff(context.Context) ([]issue.User, error) {
	return []issue.User{{ID: "u-2", Email: staffKey, DisplayName: "Sam", Role: "staff"}}, nil
}

type noopGateway struct{}

func (noopGateway) OnAuthFailure(func(context.Context, error)) func() { return func() {} }
func (noopGateway) Close()                                             {}

// portalHarness is one browser session's portal wired to test doubles.
type portalHarness struct {
	provider *mockauth.MockIdentityProvider
	backend  *stubBackend
	portal   *service.Portal
}

// newPortalHarness returns a harness whose session has settled signed out.
func newPortalHarness(t *testing.T, settle time.Duration) *portalHarness {
	t.Helper()
	h := newResolvingHarness(t, settle)
	require.True(t, h.provider.Emit(nil))
	require.Eventually(t, func() bool { return !h.portal.Session().Resolving }, time.Second, 5*time.Millisecond)
	return h
}

// newResolvingHarness returns a harness whose provider has not reported yet.
func newResolvingHarness(t *testing.T, settle time.Duration) *portalHarness {
	t.Helper()
	h := &portalHarness{
		provider: mockauth.NewMockIdentityProvider(),
		backend:  newStubBackend(),
	}
	p, err := service.NewPortal(service.PortalOptions{
		SessionID: "sid-test",
		Deps: service.SessionDeps{
			Provider:    h.provider,
			Credentials: mockauth.NewStubCredentials(),
			Gateway:     noopGateway{},
			Backend:     h.backend,
		},
		RoleCache: roles.NewCache(mockauth.NewMemoryRoleCache(), roles.CacheConfig{TTL: time.Minute}),
		Config:    service.PortalConfig{SettleTimeout: settle},
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(p.Close)
	h.portal = p
	require.Eventually(t, h.provider.Watching, time.Second, 5*time.Millisecond)
	return h
}

func (h *portalHarness) signIn(t *testing.T, key string) {
	t.Helper()
	require.True(t, h.provider.Emit(&domainauth.Identity{Key: key, DisplayName: "Test User"}))
	require.Eventually(t, func() bool {
		st := h.portal.Session()
		return st.Identity != nil && st.Identity.Key == key && !st.Resolving
	}, time.Second, 5*time.Millisecond)
}

// fixedRegistry hands every session the same portal.
type fixedRegistry struct {
	mu     sync.Mutex
	portal *service.Portal
	err    error
	seen   []string
}

func (r *fixedRegistry) Get(sessionID string) (*service.Portal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, sessionID)
	return r.portal, r.err
}

func (r *fixedRegistry) sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

// RequireTemplateRenderer builds a renderer from the embedded templates.
func RequireTemplateRenderer(t *testing.T) *TemplateRenderer {
	t.Helper()
	tr, err := newRenderer(false, nil)
	require.NoError(t, err)
	return tr
}

func newTestHandlers(t *testing.T) *Handlers {
	t.Helper()
	return &Handlers{Renderer: RequireTemplateRenderer(t), LoadingRefresh: time.Second}
}

// browserRequest builds a request that expects HTML, bound to p.
func browserRequest(p *service.Portal, method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Accept", "text/html")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return req.WithContext(WithPortal(req.Context(), p))
}

// apiRequest builds a request that expects JSON, bound to p.
func apiRequest(p *service.Portal, method, target string, body io.Reader) *http.Request {
	req := browserRequest(p, method, target, body)
	req.Header.Set("Accept", "application/json")
	return req
}

// ContainsAll checks if a string contains all the given substrings.
func ContainsAll(s string, subs []string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
