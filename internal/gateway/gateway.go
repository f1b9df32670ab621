// Package gateway attaches the session credential to outbound backend requests and
// turns backend failures into typed errors. Session-invalidating failures are
// reported to registered auth-failure hooks.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	jmespath "github.com/jmespath-community/go-jmespath"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	apperrors "github.com/civicwatch/portal/internal/errors"
	"github.com/civicwatch/portal/internal/ports"
)

// DefaultBlockedSignal matches the backend's 403 body for blocked accounts.
const DefaultBlockedSignal = "message == 'user is blocked'"

// maxErrorBody bounds how much of an error response is read for classification.
const maxErrorBody = 64 << 10

// HookFunc is called with the typed error that invalidated the session.
type HookFunc = func(ctx context.Context, err error)

// Options configures a Gateway.
type Options struct {
	// BlockedSignal is a JMESPath expression evaluated against a 403 JSON body;
	// a truthy result marks the response as Blocked.
	BlockedSignal string
	// SignOutOnForbidden also treats a plain 403 as an auth failure.
	SignOutOnForbidden bool
	Logger             *slog.Logger
}

// Gateway wraps a RoundTripper for one portal client.
// A nil credential supplier makes every request anonymous.
type Gateway struct {
	base               http.RoundTripper
	creds              ports.CredentialSupplier
	blocked            jmespath.JMESPath
	signOutOnForbidden bool
	logger             *slog.Logger

	mu     sync.Mutex
	hooks  map[uint64]HookFunc
	nextID uint64
	closed bool
}

// New builds a Gateway over base (http.DefaultTransport when nil).
func New(base http.RoundTripper, creds ports.CredentialSupplier, opts Options) (*Gateway, error) {
	if base == nil {
		base = http.DefaultTransport
	}
	signal := strings.TrimSpace(opts.BlockedSignal)
	if signal == "" {
		signal = DefaultBlockedSignal
	}
	compiled, err := jmespath.Compile(signal)
	if err != nil {
		return nil, fmt.Errorf("compile blocked signal %q: %w", signal, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		base:               base,
		creds:              creds,
		blocked:            compiled,
		signOutOnForbidden: opts.SignOutOnForbidden,
		logger:             logger,
		hooks:              make(map[uint64]HookFunc),
	}, nil
}

// RoundTrip attaches the bearer credential, if any, and forwards the request.
// It never classifies the response; use Do for that.
func (g *Gateway) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Authorization") != "" || g.creds == nil {
		return g.base.RoundTrip(req)
	}

	token, err := g.creds.Token(req.Context())
	switch {
	case errors.Is(err, domainauth.ErrNoCredential):
		return g.base.RoundTrip(req)
	case err != nil:
		return nil, err
	}

	out := req.Clone(req.Context())
	out.Header.Set("Authorization", "Bearer "+token)
	return g.base.RoundTrip(out)
}

// Do sends req and classifies the outcome. Non-2xx/3xx responses are closed and
// returned as *apperrors.AppError; auth failures notify the hooks before returning.
func (g *Gateway) Do(req *http.Request) (*http.Response, error) {
	resp, err := g.RoundTrip(req)
	if err != nil {
		classified := classifyTransport(req, err)
		g.maybeNotify(req.Context(), classified)
		return nil, classified
	}
	if resp.StatusCode < http.StatusBadRequest {
		return resp, nil
	}

	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	classified := g.classifyStatus(req, resp.StatusCode, body)
	g.maybeNotify(req.Context(), classified)
	return nil, classified
}

// OnAuthFailure registers fn and returns a func that unregisters it.
func (g *Gateway) OnAuthFailure(fn HookFunc) (unregister func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || fn == nil {
		return func() {}
	}
	id := g.nextID
	g.nextID++
	g.hooks[id] = fn
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.hooks, id)
	}
}

// Close removes every hook; later registrations are ignored.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	clear(g.hooks)
}

// Hooks reports the number of registered hooks.
func (g *Gateway) Hooks() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.hooks)
}

func (g *Gateway) maybeNotify(ctx context.Context, err error) {
	if !apperrors.IsAuthFailure(err) && !(g.signOutOnForbidden && apperrors.IsForbidden(err)) {
		return
	}

	g.mu.Lock()
	hooks := make([]HookFunc, 0, len(g.hooks))
	for _, h := range g.hooks {
		hooks = append(hooks, h)
	}
	g.mu.Unlock()

	g.logger.WarnContext(ctx, "backend rejected session credential",
		"code", apperrors.GetCode(err), "hooks", len(hooks))

	hookCtx := context.WithoutCancel(ctx)
	for _, h := range hooks {
		h(hookCtx, err)
	}
}

func classifyTransport(req *http.Request, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}
	target := req.Method + " " + req.URL.Path
	if ctxErr := apperrors.FromContext(err, target); ctxErr != nil {
		return ctxErr
	}
	return apperrors.Wrapf(err, apperrors.ErrCodeNetwork, "%s failed", target)
}

func (g *Gateway) classifyStatus(req *http.Request, status int, body []byte) *apperrors.AppError {
	msg := backendMessage(body)
	if msg == "" {
		msg = fmt.Sprintf("%s %s: %s", req.Method, req.URL.Path, http.StatusText(status))
	}

	var code apperrors.ErrorCode
	switch {
	case status == http.StatusUnauthorized:
		code = apperrors.ErrCodeUnauthorized
	case status == http.StatusForbidden:
		code = apperrors.ErrCodeForbidden
		if g.isBlocked(body) {
			code = apperrors.ErrCodeBlocked
		}
	case status == http.StatusNotFound:
		code = apperrors.ErrCodeNotFound
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		code = apperrors.ErrCodeTimeout
	case status < http.StatusInternalServerError:
		code = apperrors.ErrCodeValidation
	default:
		code = apperrors.ErrCodeInternal
	}
	return apperrors.New(code, msg).WithStatus(status)
}

func (g *Gateway) isBlocked(body []byte) bool {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return false
	}
	res, err := g.blocked.Search(doc)
	if err != nil {
		return false
	}
	return truthy(res)
}

// truthy follows JMESPath truthiness: false, null, and empty strings, arrays and objects are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func backendMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if payload.Message != "" {
		return payload.Message
	}
	return payload.Error
}
