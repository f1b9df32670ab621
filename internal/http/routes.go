package httpx

import (
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	portal "github.com/civicwatch/portal"
	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	"github.com/civicwatch/portal/internal/ports"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Registry PortalRegistry
	// Redirect is set when sign-in goes through an external provider.
	Redirect ports.RedirectAuthenticator
	Limiter  *LoginLimiter
	// Renderer is optional; when nil templates are loaded from disk in dev mode
	// and from the embedded filesystem otherwise.
	Renderer       *TemplateRenderer
	CookieDomain   string
	LoadingRefresh time.Duration
	// Health checks reported by /readyz.
	Health map[string]HealthCheck
	IsDev  bool
	Logger *slog.Logger
}

// NewRouter creates the portal's HTTP handler.
func NewRouter(services RouterServices) (http.Handler, error) {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tr := services.Renderer
	if tr == nil {
		var err error
		if tr, err = newRenderer(services.IsDev, logger); err != nil {
			return nil, err
		}
	}
	h := &Handlers{
		Renderer:       tr,
		Redirect:       services.Redirect,
		Limiter:        services.Limiter,
		CookieDomain:   services.CookieDomain,
		LoadingRefresh: services.LoadingRefresh,
		Logger:         logger,
	}

	app := http.NewServeMux()
	registerPublicRoutes(app, h)
	registerAuthRoutes(app, h)
	registerSignedInRoutes(app, h)
	registerCitizenRoutes(app, h)
	registerStaffRoutes(app, h)
	registerAdminRoutes(app, h)
	app.HandleFunc("/", h.notFound)

	var appHandler http.Handler = app
	appHandler = CSRFProtection(CSRFConfig{CookieDomain: services.CookieDomain})(appHandler)
	appHandler = Sessions(SessionsConfig{
		Registry:     services.Registry,
		CookieDomain: services.CookieDomain,
		Logger:       logger,
	})(appHandler)

	root := http.NewServeMux()
	root.Handle("GET /healthz", healthHandler(nil))
	root.Handle("GET /readyz", healthHandler(services.Health))
	root.Handle("GET /static/", staticHandler(services.IsDev, logger))
	root.Handle("/", appHandler)

	var handler http.Handler = root
	handler = BrowserDetection()(handler)
	handler = Recover(logger)(handler)
	handler = Logging(logger)(handler)
	return handler, nil
}

// newRenderer loads templates from disk in dev mode so edits show without a rebuild.
func newRenderer(isDev bool, logger *slog.Logger) (*TemplateRenderer, error) {
	var templateFS fs.FS
	if isDev {
		templateFS = os.DirFS(TemplatePathFromRoot)
	} else {
		sub, err := fs.Sub(portal.TemplateFS, TemplatePathFromRoot)
		if err != nil {
			return nil, err
		}
		templateFS = sub
	}
	return NewTemplateRenderer(TemplateRendererConfig{TemplateFS: templateFS, Logger: logger})
}

// staticHandler serves /static/* from disk in dev mode and from the embedded FS otherwise.
func staticHandler(isDev bool, logger *slog.Logger) http.Handler {
	if isDev {
		fsrv := http.StripPrefix("/static/", http.FileServer(http.Dir(StaticPathFromRoot)))
		return withCacheControl(fsrv, "no-cache, no-store, must-revalidate")
	}
	sub, err := fs.Sub(portal.StaticFS, StaticPathFromRoot)
	if err != nil {
		logger.Error("static sub-filesystem unavailable, serving from disk", slog.Any("error", err))
		fsrv := http.StripPrefix("/static/", http.FileServer(http.Dir(StaticPathFromRoot)))
		return withCacheControl(fsrv, "no-cache")
	}
	fsrv := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
	return withCacheControl(fsrv, "public, max-age=3600")
}

func withCacheControl(next http.Handler, value string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", value)
		next.ServeHTTP(w, r)
	})
}

// guarded wraps fn with the access guard for route.
func guarded(h *Handlers, route Route, fn http.HandlerFunc) http.Handler {
	return h.RequireAccess(route)(fn)
}

func registerPublicRoutes(mux *http.ServeMux, h *Handlers) {
	mux.HandleFunc("GET /{$}", h.Home)
	mux.HandleFunc("GET /all-issues", h.AllIssues)
	mux.HandleFunc("GET /about-us", h.About)
	mux.HandleFunc("GET /contact-us", h.Contact)
	mux.HandleFunc("GET /payment-success", h.PaymentSuccess)
	mux.HandleFunc("GET /payment-cancelled", h.PaymentCancelled)
}

func registerAuthRoutes(mux *http.ServeMux, h *Handlers) {
	mux.HandleFunc("GET /login", h.LoginPage)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("GET /register", h.RegisterPage)
	mux.HandleFunc("POST /register", h.Register)
	mux.HandleFunc("GET /auth/login", h.ProviderLogin)
	mux.HandleFunc("GET /auth/callback", h.ProviderCallback)
	mux.HandleFunc("GET /auth/status", h.Status)
	mux.HandleFunc("POST /logout", h.Logout)
}

// registerSignedInRoutes wires pages open to any signed-in role.
func registerSignedInRoutes(mux *http.ServeMux, h *Handlers) {
	mux.Handle("GET /dashboard", guarded(h, Route{}, h.Dashboard))
	mux.Handle("GET /dashboard/profile", guarded(h, Route{}, h.Profile))
	mux.Handle("POST /dashboard/profile", guarded(h, Route{}, h.UpdateProfile))
	mux.Handle("GET /issue/{id}", guarded(h, Route{}, h.IssueDetail))
	mux.Handle("POST /issue/{id}/upvote", guarded(h, Route{}, h.Upvote))
}

func registerCitizenRoutes(mux *http.ServeMux, h *Handlers) {
	citizen := Route{Required: domainauth.RoleCitizen}
	report := Route{Required: domainauth.RoleCitizen, Mutating: true}
	mux.Handle("GET /dashboard/citizen-home", guarded(h, citizen, h.CitizenHome))
	mux.Handle("GET /dashboard/my-issues", guarded(h, citizen, h.MyIssues))
	mux.Handle("POST /dashboard/my-issues/{id}/delete", guarded(h, citizen, h.DeleteMyIssue))
	mux.Handle("GET /dashboard/my-issues/{id}/edit", guarded(h, report, h.EditMyIssuePage))
	mux.Handle("POST /dashboard/my-issues/{id}/edit", guarded(h, report, h.EditMyIssue))
	mux.Handle("GET /dashboard/report-issue", guarded(h, report, h.ReportIssuePage))
	mux.Handle("POST /dashboard/report-issue", guarded(h, report, h.ReportIssue))
	mux.Handle("POST /dashboard/profile/subscribe", guarded(h, citizen, h.Subscribe))
	mux.Handle("POST /issue/{id}/boost", guarded(h, citizen, h.Boost))
}

func registerStaffRoutes(mux *http.ServeMux, h *Handlers) {
	staff := Route{Required: domainauth.RoleStaff}
	mux.Handle("GET /dashboard/staff-home", guarded(h, staff, h.StaffHome))
	mux.Handle("GET /dashboard/assigned-issues", guarded(h, staff, h.AssignedIssues))
	mux.Handle("POST /dashboard/assigned-issues/{id}/status", guarded(h, staff, h.UpdateIssueStatus))
}

func registerAdminRoutes(mux *http.ServeMux, h *Handlers) {
	admin := Route{Required: domainauth.RoleAdmin}
	mux.Handle("GET /dashboard/admin-home", guarded(h, admin, h.AdminHome))
	mux.Handle("GET /dashboard/all-issues-admin", guarded(h, admin, h.AdminIssues))
	mux.Handle("POST /dashboard/all-issues-admin/{id}/assign", guarded(h, admin, h.AssignIssue))
	mux.Handle("POST /dashboard/all-issues-admin/{id}/reject", guarded(h, admin, h.RejectIssue))
	mux.Handle("GET /dashboard/manage-users", guarded(h, admin, h.ManageUsers))
	mux.Handle("POST /dashboard/manage-users/{email}/block", guarded(h, admin, h.BlockUser))
	mux.Handle("POST /dashboard/manage-users/{email}/role", guarded(h, admin, h.ChangeRole))
	mux.Handle("GET /dashboard/manage-staff", guarded(h, admin, h.ManageStaff))
	mux.Handle("POST /dashboard/manage-staff", guarded(h, admin, h.AddStaff))
	mux.Handle("POST /dashboard/manage-staff/{email}/delete", guarded(h, admin, h.RemoveStaff))
	mux.Handle("GET /dashboard/payments-admin", guarded(h, admin, h.Payments))
}
