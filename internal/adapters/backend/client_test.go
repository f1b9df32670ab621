package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	"github.com/civicwatch/portal/internal/domain/issue"
	apperrors "github.com/civicwatch/portal/internal/errors"
	"github.com/civicwatch/portal/internal/gateway"
	mockauth "github.com/civicwatch/portal/internal/mocks/auth"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   map[string]any
}

type fakeBackend struct {
	mu       sync.Mutex
	requests []recorded
}

func (f *fakeBackend) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newFakeBackend(t *testing.T, routes map[string]func(w http.ResponseWriter)) (*httptest.Server, *fakeBackend) {
	t.Helper()
	fb := &fakeBackend{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Auth: r.Header.Get("Authorization")}
		_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		fb.mu.Lock()
		fb.requests = append(fb.requests, rec)
		fb.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if h, ok := routes[r.Method+" "+r.URL.Path]; ok {
			h(w)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"not found"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, fb
}

func reply(status int, body string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	creds := mockauth.NewStubCredentials()
	require.NoError(t, creds.Establish(context.Background(), domainauth.Identity{Key: "a@example.com"}))
	gw, err := gateway.New(nil, creds, gateway.Options{})
	require.NoError(t, err)
	client, err := NewClient(baseURL, gw)
	require.NoError(t, err)
	return client
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(" ", http.DefaultClient)
	require.Error(t, err)

	_, err = NewClient("http://backend", nil)
	require.Error(t, err)
}

func TestClient_FetchRole(t *testing.T) {
	srv, fb := newFakeBackend(t, map[string]func(http.ResponseWriter){
		"GET /users/a@example.com/role": reply(http.StatusOK, `{"role":"Admin","isPremium":true,"isBlocked":false}`),
	})
	client := newTestClient(t, srv.URL)

	rec, err := client.FetchRole(context.Background(), "a@example.com")
	require.NoError(t, err)

	assert.Equal(t, domainauth.RoleRecord{Key: "a@example.com", Role: domainauth.RoleAdmin, IsPremium: true}, rec)
	assert.Equal(t, "Bearer token-a@example.com", fb.last().Auth)
}

func TestClient_FetchRole_Payloads(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantRole domainauth.Role
		wantCode apperrors.ErrorCode
	}{
		{name: "empty role left for the caller", status: http.StatusOK, body: `{"isBlocked":true}`},
		{name: "unknown role is invalid", status: http.StatusOK, body: `{"role":"mayor"}`, wantCode: apperrors.ErrCodeValidation},
		{name: "missing record", status: http.StatusNotFound, body: `{"message":"user not found"}`, wantCode: apperrors.ErrCodeNotFound},
		{name: "backend failure", status: http.StatusBadGateway, body: `oops`, wantCode: apperrors.ErrCodeInternal},
		{name: "malformed body", status: http.StatusOK, body: `{"role":`, wantCode: apperrors.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newFakeBackend(t, map[string]func(http.ResponseWriter){
				"GET /users/a@example.com/role": reply(tt.status, tt.body),
			})
			client := newTestClient(t, srv.URL)

			rec, err := client.FetchRole(context.Background(), "a@example.com")
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, apperrors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, rec.Role)
		})
	}
}

func TestClient_MintTokenKeepsProviderToken(t *testing.T) {
	srv, fb := newFakeBackend(t, map[string]func(http.ResponseWriter){
		"POST /api/auth/token": reply(http.StatusOK, `{"token":"backend-token"}`),
	})
	client := newTestClient(t, srv.URL)

	tok, err := client.MintToken(context.Background(), "idp-token", "a@example.com")
	require.NoError(t, err)

	assert.Equal(t, "backend-token", tok)
	got := fb.last()
	assert.Equal(t, "Bearer idp-token", got.Auth)
	assert.Equal(t, "a@example.com", got.Body["email"])
}

func TestClient_MintTokenFailures(t *testing.T) {
	srv, _ := newFakeBackend(t, map[string]func(http.ResponseWriter){
		"POST /api/auth/token": reply(http.StatusOK, `{}`),
	})
	client := newTestClient(t, srv.URL)

	_, err := client.MintToken(context.Background(), "", "a@example.com")
	require.ErrorIs(t, err, domainauth.ErrNoCredential)

	_, err = client.MintToken(context.Background(), "idp-token", "a@example.com")
	require.Error(t, err)
	assert.True(t, apperrors.IsInternal(err))
}

func TestClient_IssueListingsEncodeFilters(t *testing.T) {
	srv, fb := newFakeBackend(t, map[string]func(http.ResponseWriter){
		"GET /dashboard/my-issues":             reply(http.StatusOK, `[{"_id":"i1","title":"Pothole","status":"Pending"}]`),
		"GET /dashboard/staff/assigned-issues": reply(http.StatusOK, `[]`),
	})
	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	issues, err := client.MyIssues(ctx, issue.Filter{Status: issue.StatusPending, Category: "Streetlight"})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "i1", issues[0].ID)
	assert.Equal(t, "category=Streetlight&status=Pending", fb.last().Query)

	_, err = client.AssignedIssues(ctx, "s@example.com", issue.Filter{Page: 2})
	require.NoError(t, err)
	assert.Equal(t, "email=s%40example.com&page=2", fb.last().Query)
}

func TestClient_Mutations(t *testing.T) {
	srv, fb := newFakeBackend(t, map[string]func(http.ResponseWriter){
		"PATCH /users/u1/block":                  reply(http.StatusOK, `{"modifiedCount":1}`),
		"PATCH /users/b@example.com/role":        reply(http.StatusOK, `{"modifiedCount":1}`),
		"POST /subscription-checkout-session":    reply(http.StatusOK, `{"url":"https://pay.example.com/s/1"}`),
		"POST /issues":                           reply(http.StatusCreated, `{"insertedId":"new-1"}`),
		"PATCH /dashboard/staff/issues/i1/status": reply(http.StatusOK, `{}`),
		"PATCH /dashboard/my-issues/i2":           reply(http.StatusOK, `{"modifiedCount":1}`),
	})
	client := newTestClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, client.SetBlocked(ctx, "u1", true))
	assert.Equal(t, true, fb.last().Body["isBlocked"])

	require.NoError(t, client.SetRole(ctx, "b@example.com", domainauth.RoleStaff))
	assert.Equal(t, "staff", fb.last().Body["role"])

	checkout, err := client.CreateSubscriptionCheckout(ctx, 1000)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example.com/s/1", checkout.URL)
	assert.InDelta(t, 1000, fb.last().Body["cost"], 0)

	id, err := client.ReportIssue(ctx, issue.NewIssue{Title: "Broken light", CitizenEmail: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "new-1", id)

	require.NoError(t, client.UpdateIssueStatus(ctx, "i1", issue.StatusResolved))
	assert.Equal(t, issue.StatusResolved, fb.last().Body["newStatus"])

	require.NoError(t, client.UpdateMyIssue(ctx, "i2", issue.IssueEdit{Title: "Pothole widened", Location: "Main St"}))
	assert.Equal(t, http.MethodPatch, fb.last().Method)
	assert.Equal(t, "Pothole widened", fb.last().Body["title"])
	assert.Equal(t, "Main St", fb.last().Body["location"])
	assert.NotContains(t, fb.last().Body, "citizenEmail")
}

func TestClient_BlockedResponse(t *testing.T) {
	srv, _ := newFakeBackend(t, map[string]func(http.ResponseWriter){
		"POST /issues": reply(http.StatusForbidden, `{"message":"user is blocked"}`),
	})
	client := newTestClient(t, srv.URL)

	_, err := client.ReportIssue(context.Background(), issue.NewIssue{Title: "x"})
	require.Error(t, err)
	assert.True(t, apperrors.IsBlocked(err))
}
