package httpx

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/civicwatch/portal/internal/service"
)

// PortalRegistry hands out the portal of a browser session.
type PortalRegistry interface {
	Get(sessionID string) (*service.Portal, error)
}

// SessionsConfig configures the Sessions middleware.
type SessionsConfig struct {
	Registry     PortalRegistry
	CookieDomain string
	Logger       *slog.Logger
}

// Sessions attaches the browser session's portal to the request context.
// Requests without a valid session cookie get a fresh session id.
func Sessions(cfg SessionsConfig) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := sessionIDFromRequest(r)
			if sid == "" {
				sid = uuid.NewString()
				setSessionCookie(w, r, sid, cfg.CookieDomain)
			}

			p, err := cfg.Registry.Get(sid)
			if err != nil {
				logger.ErrorContext(r.Context(), "portal session unavailable", slog.Any("error", err))
				renderFailure(w, r, nil, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPortal(r.Context(), p)))
		})
	}
}

func sessionIDFromRequest(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	id, err := uuid.Parse(c.Value)
	if err != nil {
		return ""
	}
	return id.String()
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, sid, domain string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sid,
		Path:     "/",
		Domain:   domain,
		HttpOnly: true,
		Secure:   isSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
	})
}
