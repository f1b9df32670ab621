package httpx

import (
	"errors"
	"net/http"

	apperrors "github.com/civicwatch/portal/internal/errors"
)

const errMsgFixBelow = "Please fix the errors below."

// errorView backs the error page.
type errorView struct {
	Status     int
	StatusText string
	Message    string
}

// renderFailure answers a failed request: browsers get the error page, API
// clients the JSON error body.
func renderFailure(w http.ResponseWriter, r *http.Request, tr *TemplateRenderer, err error) {
	if !IsBrowserRequest(r) {
		WriteAppError(w, err)
		return
	}
	status := statusForError(err)
	if tr == nil {
		http.Error(w, userMessage(err), status)
		return
	}
	data := newPageData(r, PageMeta{Title: http.StatusText(status), Page: PageError}, errorView{
		Status:     status,
		StatusText: http.StatusText(status),
		Message:    userMessage(err),
	})
	if rerr := tr.Render(w, status, data); rerr != nil {
		http.Error(w, http.StatusText(status), status)
	}
}

// userMessage turns err into text safe to show a visitor.
func userMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case apperrors.IsTimeout(err):
		return "Request timed out. Please try again."
	case apperrors.IsCanceled(err):
		return "Request was canceled."
	case apperrors.IsNetwork(err):
		return "The issue service is unreachable. Please try again shortly."
	case apperrors.IsUnauthorized(err):
		return "Your session has ended. Please log in again."
	case apperrors.IsBlocked(err):
		return "Your account is blocked. Contact the authorities for assistance."
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code != apperrors.ErrCodeInternal {
		return appErr.Message
	}
	return "An error occurred. Please try again."
}

// fieldErrors returns the field-level error map for a validation failure, or nil.
func fieldErrors(err error) map[string]string {
	if !apperrors.IsValidation(err) {
		return nil
	}
	field := apperrors.GetField(err)
	if field == "" {
		return nil
	}
	return map[string]string{field: userMessage(err)}
}
