package config

import (
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain. Public suffixes are rejected.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// LoginRate is the sustained number of login attempts per second per client IP.
	LoginRate float64 `env:"HTTP_LOGIN_RATE" envDefault:"0.5"`

	// LoginBurst is the login attempt burst size per client IP.
	LoginBurst int `env:"HTTP_LOGIN_BURST" envDefault:"5"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.CookieDomain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h.CookieDomain)), ".")
	if h.CookieDomain != "" && isPublicSuffix(h.CookieDomain) {
		h.CookieDomain = ""
	}
	if h.LoginRate <= 0 {
		h.LoginRate = 0.5
	}
	if h.LoginBurst <= 0 {
		h.LoginBurst = 5
	}
}

// isPublicSuffix reports whether domain is itself a public suffix such as "co.uk",
// which browsers refuse as a cookie domain.
func isPublicSuffix(domain string) bool {
	suffix, _ := publicsuffix.PublicSuffix(domain)
	return suffix == domain
}

// GuardConfig controls how long handlers wait for the route guard to settle.
type GuardConfig struct {
	// SettleTimeout bounds the wait for session and role resolution per request.
	SettleTimeout time.Duration `env:"SETTLE_TIMEOUT" envDefault:"2s"`

	// IdleTimeout evicts portal clients of browser sessions idle this long.
	IdleTimeout time.Duration `env:"IDLE_TIMEOUT" envDefault:"30m"`

	// LoadingRefresh is the re-poll interval advertised by the loading page.
	LoadingRefresh time.Duration `env:"LOADING_REFRESH" envDefault:"1s"`
}

// Sanitize applies guardrails to guard configuration values.
func (g *GuardConfig) Sanitize() {
	if g.SettleTimeout <= 0 {
		g.SettleTimeout = 2 * time.Second
	}
	if g.IdleTimeout <= 0 {
		g.IdleTimeout = 30 * time.Minute
	}
	if g.LoadingRefresh < time.Second {
		g.LoadingRefresh = time.Second
	}
}
