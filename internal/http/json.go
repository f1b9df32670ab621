package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/civicwatch/portal/internal/errors"
)

// DecodeJSON decodes the request body into dst.
// Returns false after writing a 400 when the body is not valid JSON.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}
	return true
}

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = buf.WriteTo(w)
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
	Field   string
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	body := map[string]string{"error": p.ErrCode, "message": p.Err.Error()}
	if p.Field != "" {
		body["field"] = p.Field
	}
	WriteJSON(w, p.Code, body)
}

// WriteAppError maps err to a status and error code and writes it as JSON.
// Internal failures are reported without their cause.
func WriteAppError(w http.ResponseWriter, err error) {
	status := statusForError(err)
	code := string(apperrors.GetCode(err))
	if code == "" {
		code = string(apperrors.ErrCodeInternal)
	}
	field := apperrors.GetField(err)
	if status >= http.StatusInternalServerError {
		err = errors.New(http.StatusText(status))
	}
	WriteError(w, ErrorParams{Code: status, ErrCode: code, Err: err, Field: field})
}

// statusForError picks the HTTP status a portal error is answered with.
func statusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case apperrors.IsValidation(err):
		return http.StatusBadRequest
	case apperrors.IsNotFound(err):
		return http.StatusNotFound
	case apperrors.IsUnauthorized(err):
		return http.StatusUnauthorized
	case apperrors.IsForbidden(err), apperrors.IsBlocked(err):
		return http.StatusForbidden
	case apperrors.IsTimeout(err):
		return http.StatusGatewayTimeout
	case apperrors.IsNetwork(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
