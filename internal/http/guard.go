package httpx

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/civicwatch/portal/internal/domain/access"
	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	apperrors "github.com/civicwatch/portal/internal/errors"
)

// Route describes what a protected route demands of the visitor.
type Route struct {
	Required domainauth.Role // empty: any signed-in user
	Mutating bool
}

// noticeSessionEnded is shown on the login page after a forced sign-out.
const noticeSessionEnded = "session_ended"

// loadingView backs the loading page and its JSON form.
type loadingView struct {
	State string `json:"state"`
}

// deniedView backs the access-denied page and its JSON form.
type deniedView struct {
	Error    string          `json:"error"`
	Reason   access.Reason   `json:"reason"`
	Required domainauth.Role `json:"required,omitempty"`
	Actual   domainauth.Role `json:"actual"`
	Fallback string          `json:"fallback"`
}

// RequireAccess guards a route with the session portal's guard. Only a Render
// decision reaches next; the role record it was decided with rides on the context.
func (h *Handlers) RequireAccess(route Route) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := h.portal(w, r)
			if !ok {
				return
			}
			req := access.Request{
				Required: route.Required,
				Path:     r.URL.RequestURI(),
				Mutating: route.Mutating || !isSafeMethod(r.Method),
			}
			d, err := p.Guard(r.Context(), req)
			if err != nil {
				h.logger().DebugContext(r.Context(), "guard abandoned", slog.String("path", r.URL.Path), slog.Any("error", err))
				return
			}

			switch d.Kind {
			case access.Render:
				next.ServeHTTP(w, r.WithContext(withRecord(r.Context(), d.Record)))
			case access.RedirectToLogin:
				h.signedOut(w, r, d.ReturnTo, p.TakeLoginNotice())
			case access.AccessDenied:
				h.denied(w, r, d)
			default:
				h.loading(w, r)
			}
		})
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// loading asks the client to come back once the session has settled.
func (h *Handlers) loading(w http.ResponseWriter, r *http.Request) {
	refresh := h.refreshSeconds()
	if !IsBrowserRequest(r) {
		w.Header().Set("Retry-After", strconv.Itoa(refresh))
		WriteJSON(w, http.StatusAccepted, loadingView{State: string(access.Loading)})
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	pd := newPageData(r, PageMeta{Title: "Loading", Page: PageLoading}, loadingView{State: string(access.Loading)})
	pd.Refresh = refresh
	h.renderPageData(w, http.StatusOK, pd)
}

func (h *Handlers) refreshSeconds() int {
	secs := int(math.Ceil(h.LoadingRefresh.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// signedOut sends browsers to the login page and answers API clients with 401.
func (h *Handlers) signedOut(w http.ResponseWriter, r *http.Request, returnTo string, ended bool) {
	notice := ""
	if ended {
		notice = noticeSessionEnded
	}
	if !isSafeMethod(r.Method) {
		returnTo = "/"
	}
	if IsBrowserRequest(r) {
		redirectToLogin(w, r, returnTo, notice)
		return
	}
	err := apperrors.Unauthorized("sign in required")
	if ended {
		err = apperrors.Unauthorized("session ended, sign in again")
	}
	WriteAppError(w, err)
}

// denied answers an AccessDenied decision with 403.
func (h *Handlers) denied(w http.ResponseWriter, r *http.Request, d access.Decision) {
	view := deniedView{
		Error:    string(apperrors.ErrCodeForbidden),
		Reason:   d.Reason,
		Required: d.Required,
		Actual:   d.Actual,
		Fallback: d.Fallback,
	}
	if d.Reason == access.ReasonBlocked {
		view.Error = string(apperrors.ErrCodeBlocked)
	}
	if !IsBrowserRequest(r) {
		WriteJSON(w, http.StatusForbidden, view)
		return
	}
	pd := newPageData(r, PageMeta{Title: "Access denied", Page: PageAccessDenied}, view)
	h.renderPageData(w, http.StatusForbidden, pd)
}
