package httpx

import (
	"errors"
	"net/http"
	"strings"
	"time"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	apperrors "github.com/civicwatch/portal/internal/errors"
	"github.com/civicwatch/portal/internal/ports"
	"github.com/civicwatch/portal/internal/session"
)

const (
	cookieOAuthState    = "oauth_state"
	cookieOAuthNonce    = "oauth_nonce"
	cookiePostLoginDest = "post_login_redirect"
)

var errTooManyAttempts = apperrors.New(apperrors.ErrCodeValidation, "too many attempts, please wait a moment").WithStatus(http.StatusTooManyRequests)

// loginView backs the login page.
type loginView struct {
	OAuth       bool
	RedirectURI string
	Email       string
}

// registerView backs the registration page.
type registerView struct {
	Email       string
	DisplayName string
}

// LoginPage renders the sign-in form. Signed-in visitors go straight on.
// GET /login?redirect_uri=<path>&notice=<notice>.
func (h *Handlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	dest := safeRedirectPath(r.URL.Query().Get("redirect_uri"))
	if p.Session().Identity != nil {
		http.Redirect(w, r, dest, http.StatusSeeOther)
		return
	}

	pd := newPageData(r, PageMeta{Title: "Log in", Page: PageLogin}, loginView{OAuth: h.Redirect != nil, RedirectURI: dest})
	if r.URL.Query().Get("notice") == noticeSessionEnded || p.TakeLoginNotice() {
		pd.Notice = "Your session has ended. Please log in again."
	}
	h.renderPageData(w, http.StatusOK, pd)
}

// Login signs in with email and password.
// POST /login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	creds := domainauth.Credentials{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	dest := safeRedirectPath(r.PostFormValue("redirect_uri"))
	meta := PageMeta{Title: "Log in", Page: PageLogin}
	view := loginView{OAuth: h.Redirect != nil, RedirectURI: dest, Email: creds.Email}

	if !h.Limiter.Allow(clientIP(r)) {
		h.authFailed(w, r, meta, view, errTooManyAttempts)
		return
	}
	if err := settled(p.SignInAndWait(r.Context(), creds)); err != nil {
		h.authFailed(w, r, meta, view, err)
		return
	}
	h.done(w, r, dest)
}

// RegisterPage renders the registration form.
// GET /register.
func (h *Handlers) RegisterPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, PageMeta{Title: "Register", Page: PageRegister}, registerView{})
}

// Register creates an account and signs it in.
// POST /register.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	creds := domainauth.Credentials{
		Email:       strings.TrimSpace(r.PostFormValue("email")),
		Password:    r.PostFormValue("password"),
		DisplayName: strings.TrimSpace(r.PostFormValue("name")),
	}
	meta := PageMeta{Title: "Register", Page: PageRegister}
	view := registerView{Email: creds.Email, DisplayName: creds.DisplayName}

	if !h.Limiter.Allow(clientIP(r)) {
		h.authFailed(w, r, meta, view, errTooManyAttempts)
		return
	}
	if err := settled(p.RegisterAndWait(r.Context(), creds)); err != nil {
		h.authFailed(w, r, meta, view, err)
		return
	}
	h.done(w, r, "/")
}

// settled turns the outcome of a sign-in into an error unless it ended signed in.
func settled(st session.State, err error) error {
	if err != nil && apperrors.GetCode(err) == "" {
		if ctxErr := apperrors.FromContext(err, "sign-in"); ctxErr != nil {
			return ctxErr
		}
	}
	switch {
	case apperrors.GetCode(err) != "":
		return err
	case err != nil:
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "sign-in failed")
	case st.Identity == nil && st.Err != nil:
		return apperrors.Wrap(st.Err, apperrors.ErrCodeUnauthorized, "sign-in could not be completed")
	case st.Identity == nil:
		return apperrors.Unauthorized("sign-in could not be completed")
	}
	return nil
}

// authFailed re-renders a sign-in form with the failure shown on it.
func (h *Handlers) authFailed(w http.ResponseWriter, r *http.Request, meta PageMeta, view any, err error) {
	status := statusForError(err)
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Status != 0 {
		status = appErr.Status
	}
	if !IsBrowserRequest(r) {
		if status == http.StatusTooManyRequests {
			WriteError(w, ErrorParams{Code: status, ErrCode: "rate_limited", Err: err})
			return
		}
		WriteAppError(w, err)
		return
	}
	if !apperrors.IsValidation(err) && !apperrors.IsUnauthorized(err) && !apperrors.IsTimeout(err) {
		h.fail(w, r, err)
		return
	}
	pd := newPageData(r, meta, view)
	pd.FieldErrors = fieldErrors(err)
	pd.Error = userMessage(err)
	if apperrors.IsUnauthorized(err) {
		pd.Error = "Invalid email or password."
	}
	h.renderPageData(w, status, pd)
}

// ProviderLogin starts the redirect sign-in flow.
// GET /auth/login?redirect_uri=<path>.
func (h *Handlers) ProviderLogin(w http.ResponseWriter, r *http.Request) {
	if h.Redirect == nil {
		h.notFound(w, r)
		return
	}
	dest := safeRedirectPath(r.URL.Query().Get("redirect_uri"))
	authURL, state, nonce, err := h.Redirect.Begin(r.Context(), ports.BeginInput{RedirectURL: dest})
	if err != nil {
		h.fail(w, r, apperrors.Wrap(err, apperrors.ErrCodeInternal, "begin sign-in"))
		return
	}
	h.setShortCookie(w, r, cookieOAuthState, state)
	h.setShortCookie(w, r, cookieOAuthNonce, nonce)
	h.setShortCookie(w, r, cookiePostLoginDest, dest)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// ProviderCallback completes the redirect sign-in flow.
// GET /auth/callback?code=<code>&state=<state>.
func (h *Handlers) ProviderCallback(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		h.fail(w, r, apperrors.Validation("authorization code and state are required"))
		return
	}
	stateCookie, err := r.Cookie(cookieOAuthState)
	if err != nil || stateCookie.Value != state {
		h.fail(w, r, apperrors.Validation("invalid or missing state parameter"))
		return
	}
	nonceCookie, err := r.Cookie(cookieOAuthNonce)
	if err != nil {
		h.fail(w, r, apperrors.Validation("missing nonce parameter"))
		return
	}

	creds := domainauth.Credentials{Code: code, State: state, Nonce: nonceCookie.Value}
	if err := settled(p.SignInAndWait(r.Context(), creds)); err != nil {
		h.fail(w, r, err)
		return
	}

	dest := "/"
	if c, err := r.Cookie(cookiePostLoginDest); err == nil {
		dest = safeRedirectPath(c.Value)
	}
	h.clearCookie(w, r, cookieOAuthState)
	h.clearCookie(w, r, cookieOAuthNonce)
	h.clearCookie(w, r, cookiePostLoginDest)
	http.Redirect(w, r, dest, http.StatusFound)
}

// Logout ends the session.
// POST /logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	if err := p.SignOut(r.Context()); err != nil {
		h.logger().WarnContext(r.Context(), "logout failed", "error", err)
	}
	h.done(w, r, "/")
}

// Status reports the session and role state as JSON.
// GET /auth/status.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	sess, role := p.Snapshot()
	body := map[string]any{
		"authenticated": sess.Identity != nil,
		"resolving":     sess.Resolving,
	}
	if sess.Identity != nil {
		body["user"] = map[string]any{
			"key":          sess.Identity.Key,
			"display_name": sess.Identity.DisplayName,
			"photo_url":    sess.Identity.PhotoURL,
		}
		if role.Loaded(sess.Identity.Key) {
			body["role"] = role.Record
		} else {
			body["role_loading"] = true
		}
	}
	WriteJSON(w, http.StatusOK, body)
}

func (h *Handlers) setShortCookie(w http.ResponseWriter, r *http.Request, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   600,
	})
}

// clearCookie expires a cookie, mirroring the attributes it was set with.
func (h *Handlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}
