package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	apperrors "github.com/civicwatch/portal/internal/errors"
	"github.com/civicwatch/portal/internal/mocks"
	mockauth "github.com/civicwatch/portal/internal/mocks/auth"
)

func newBackend(t *testing.T, status int, body string) (*httptest.Server, *atomic.Value) {
	t.Helper()
	var seenAuth atomic.Value
	seenAuth.Store("")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAuth.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &seenAuth
}

func newRequest(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url+"/users/a/role", nil)
	require.NoError(t, err)
	return req
}

func signedInCreds(t *testing.T) *mockauth.StubCredentials {
	t.Helper()
	creds := mockauth.NewStubCredentials()
	require.NoError(t, creds.Establish(context.Background(), domainauth.Identity{Key: "a@example.com"}))
	return creds
}

func TestGateway_AttachesCredential(t *testing.T) {
	srv, seen := newBackend(t, http.StatusOK, `{"role":"citizen"}`)
	gw, err := New(nil, signedInCreds(t), Options{})
	require.NoError(t, err)

	resp, err := gw.Do(newRequest(t, srv.URL))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "Bearer token-a@example.com", seen.Load())
}

func TestGateway_NoIdentitySendsAnonymous(t *testing.T) {
	srv, seen := newBackend(t, http.StatusOK, `{}`)
	gw, err := New(nil, mockauth.NewStubCredentials(), Options{})
	require.NoError(t, err)

	resp, err := gw.Do(newRequest(t, srv.URL))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "", seen.Load())
}

func TestGateway_ExplicitAuthorizationIsKept(t *testing.T) {
	srv, seen := newBackend(t, http.StatusOK, `{}`)
	gw, err := New(nil, signedInCreds(t), Options{})
	require.NoError(t, err)

	req := newRequest(t, srv.URL)
	req.Header.Set("Authorization", "Bearer idp-token")
	resp, err := gw.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "Bearer idp-token", seen.Load())
}

func TestGateway_Classification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		code      apperrors.ErrorCode
		notifies  bool
		signalOpt string
	}{
		{name: "unauthorized", status: 401, body: `{"message":"invalid token"}`, code: apperrors.ErrCodeUnauthorized, notifies: true},
		{name: "blocked", status: 403, body: `{"message":"user is blocked"}`, code: apperrors.ErrCodeBlocked, notifies: true},
		{name: "plain forbidden", status: 403, body: `{"message":"Free user issue limit reached"}`, code: apperrors.ErrCodeForbidden},
		{name: "forbidden non-json", status: 403, body: `nope`, code: apperrors.ErrCodeForbidden},
		{name: "custom signal", status: 403, body: `{"blocked":true}`, code: apperrors.ErrCodeBlocked, notifies: true, signalOpt: "blocked"},
		{name: "not found", status: 404, body: `{}`, code: apperrors.ErrCodeNotFound},
		{name: "validation", status: 422, body: `{"error":"title is required"}`, code: apperrors.ErrCodeValidation},
		{name: "internal", status: 500, body: ``, code: apperrors.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newBackend(t, tt.status, tt.body)
			gw, err := New(nil, signedInCreds(t), Options{BlockedSignal: tt.signalOpt})
			require.NoError(t, err)

			var calls atomic.Int32
			gw.OnAuthFailure(func(_ context.Context, err error) {
				calls.Add(1)
				assert.Equal(t, tt.code, apperrors.GetCode(err))
			})

			resp, err := gw.Do(newRequest(t, srv.URL))
			assert.Nil(t, resp)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.GetCode(err))

			var appErr *apperrors.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.status, appErr.Status)

			if tt.notifies {
				assert.Equal(t, int32(1), calls.Load())
			} else {
				assert.Zero(t, calls.Load())
			}
		})
	}
}

func TestGateway_SignOutOnForbiddenOption(t *testing.T) {
	srv, _ := newBackend(t, 403, `{"message":"Free user issue limit reached"}`)
	gw, err := New(nil, signedInCreds(t), Options{SignOutOnForbidden: true})
	require.NoError(t, err)

	var calls atomic.Int32
	gw.OnAuthFailure(func(context.Context, error) { calls.Add(1) })

	_, err = gw.Do(newRequest(t, srv.URL))
	assert.True(t, apperrors.IsForbidden(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGateway_NetworkError(t *testing.T) {
	srv, _ := newBackend(t, 200, `{}`)
	url := srv.URL
	srv.Close()

	gw, err := New(nil, nil, Options{})
	require.NoError(t, err)
	_, err = gw.Do(newRequest(t, url))
	assert.True(t, apperrors.IsNetwork(err), "got %v", err)
}

func TestGateway_CredentialFailureIsAuthFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	creds := mocks.NewMockCredentialSupplier(ctrl)
	creds.EXPECT().Token(gomock.Any()).Return("", apperrors.Unauthorized("provider session expired"))

	srv, _ := newBackend(t, 200, `{}`)
	gw, err := New(nil, creds, Options{})
	require.NoError(t, err)

	var calls atomic.Int32
	gw.OnAuthFailure(func(context.Context, error) { calls.Add(1) })

	_, err = gw.Do(newRequest(t, srv.URL))
	assert.True(t, apperrors.IsUnauthorized(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGateway_CredentialErrorWithoutCodeIsNetwork(t *testing.T) {
	ctrl := gomock.NewController(t)
	creds := mocks.NewMockCredentialSupplier(ctrl)
	creds.EXPECT().Token(gomock.Any()).Return("", errors.New("redis down"))

	srv, _ := newBackend(t, 200, `{}`)
	gw, err := New(nil, creds, Options{})
	require.NoError(t, err)

	_, err = gw.Do(newRequest(t, srv.URL))
	assert.True(t, apperrors.IsNetwork(err))
}

func TestGateway_HookLifecycle(t *testing.T) {
	srv, _ := newBackend(t, 401, `{}`)
	gw, err := New(nil, signedInCreds(t), Options{})
	require.NoError(t, err)

	var first, second atomic.Int32
	unregister := gw.OnAuthFailure(func(context.Context, error) { first.Add(1) })
	gw.OnAuthFailure(func(context.Context, error) { second.Add(1) })
	assert.Equal(t, 2, gw.Hooks())

	unregister()
	_, _ = gw.Do(newRequest(t, srv.URL))
	assert.Zero(t, first.Load())
	assert.Equal(t, int32(1), second.Load())

	gw.Close()
	assert.Equal(t, 0, gw.Hooks())
	gw.OnAuthFailure(func(context.Context, error) { first.Add(1) })
	assert.Equal(t, 0, gw.Hooks())

	_, _ = gw.Do(newRequest(t, srv.URL))
	assert.Equal(t, int32(1), second.Load())
}

func TestNew_InvalidSignal(t *testing.T) {
	_, err := New(nil, nil, Options{BlockedSignal: "message =="})
	require.Error(t, err)
}

func TestTruthy(t *testing.T) {
	assert.False(t, truthy(nil))
	assert.False(t, truthy(false))
	assert.False(t, truthy(""))
	assert.False(t, truthy([]any{}))
	assert.False(t, truthy(map[string]any{}))
	assert.True(t, truthy(true))
	assert.True(t, truthy("x"))
	assert.True(t, truthy(0.0))
}
