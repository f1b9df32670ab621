package httpx

import (
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/civicwatch/portal/internal/errors"
	"github.com/civicwatch/portal/internal/ports"
	"github.com/civicwatch/portal/internal/service"
)

// Handlers serves the portal's pages and their JSON twins.
type Handlers struct {
	Renderer *TemplateRenderer
	// Redirect is set when sign-in goes through an external provider.
	Redirect       ports.RedirectAuthenticator
	Limiter        *LoginLimiter
	CookieDomain   string
	LoadingRefresh time.Duration
	Logger         *slog.Logger
}

func (h *Handlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// render writes a page for browsers and the bare data for API clients.
func (h *Handlers) render(w http.ResponseWriter, r *http.Request, status int, meta PageMeta, data any) {
	if !IsBrowserRequest(r) {
		WriteJSON(w, status, data)
		return
	}
	h.renderPageData(w, status, newPageData(r, meta, data))
}

func (h *Handlers) renderPageData(w http.ResponseWriter, status int, pd PageData) {
	if h.Renderer == nil {
		http.Error(w, "templates unavailable", http.StatusInternalServerError)
		return
	}
	if err := h.Renderer.Render(w, status, pd); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// renderForm re-renders a form page after err. Validation failures keep the
// form with field errors; anything else goes to the error page.
func (h *Handlers) renderForm(w http.ResponseWriter, r *http.Request, meta PageMeta, data any, err error) {
	if !apperrors.IsValidation(err) || !IsBrowserRequest(r) {
		h.fail(w, r, err)
		return
	}
	pd := newPageData(r, meta, data)
	pd.FieldErrors = fieldErrors(err)
	if pd.FieldErrors != nil {
		pd.Error = errMsgFixBelow
	} else {
		pd.Error = userMessage(err)
	}
	h.renderPageData(w, http.StatusBadRequest, pd)
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	if apperrors.IsCanceled(err) || r.Context().Err() != nil {
		h.logger().DebugContext(r.Context(), "request abandoned", slog.String("path", r.URL.Path))
		return
	}
	if statusForError(err) >= http.StatusInternalServerError {
		h.logger().ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	renderFailure(w, r, h.Renderer, err)
}

// portal returns the request's portal, answering the request itself when there is none.
func (h *Handlers) portal(w http.ResponseWriter, r *http.Request) (*service.Portal, bool) {
	p, ok := PortalFromContext(r.Context())
	if !ok {
		h.fail(w, r, apperrors.Internal("no portal session on request"))
	}
	return p, ok
}

// done finishes a state-changing request: browsers follow a redirect, API
// clients get a status body.
func (h *Handlers) done(w http.ResponseWriter, r *http.Request, location string) {
	if !IsBrowserRequest(r) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}

// notFound renders the not-found page.
func (h *Handlers) notFound(w http.ResponseWriter, r *http.Request) {
	if !IsBrowserRequest(r) {
		WriteAppError(w, apperrors.NotFound("not found"))
		return
	}
	h.render(w, r, http.StatusNotFound, PageMeta{Title: "Not found", Page: PageNotFound}, nil)
}
