package httpx

// Page identifiers used in templates and navigation.
const (
	// Public pages.
	PageHome             = "home"
	PageAllIssues        = "all-issues"
	PageAbout            = "about"
	PageContact          = "contact"
	PageLogin            = "login"
	PageRegister         = "register"
	PagePaymentSuccess   = "payment-success"
	PagePaymentCancelled = "payment-cancelled"

	// Signed-in pages.
	PageIssue       = "issue"
	PageCitizenHome = "citizen-home"
	PageMyIssues    = "my-issues"
	PageReportIssue = "report-issue"
	PageEditIssue   = "edit-issue"
	PageProfile     = "profile"

	// Staff pages.
	PageStaffHome      = "staff-home"
	PageAssignedIssues = "assigned-issues"

	// Admin pages.
	PageAdminHome      = "admin-home"
	PageAllIssuesAdmin = "all-issues-admin"
	PageManageUsers    = "manage-users"
	PageManageStaff    = "manage-staff"
	PagePaymentsAdmin  = "payments-admin"

	// Guard and error pages.
	PageLoading      = "loading"
	PageAccessDenied = "access-denied"
	PageError        = "error"
	PageNotFound     = "not-found"
)

// Template paths used for loading templates in tests and dev mode.
const (
	TemplatePathFromRoot = "frontend/templates"
	TemplatePathFromTest = "../../frontend/templates"
	StaticPathFromRoot   = "frontend/static"
)

// SessionCookieName names the browser session cookie.
const SessionCookieName = "portal_sid"

// ContentTemplateFor returns the content template for page.
// Unknown pages fall back to the not-found content.
func ContentTemplateFor(page string) string {
	switch page {
	case PageHome, PageAllIssues, PageAbout, PageContact, PageLogin, PageRegister,
		PagePaymentSuccess, PagePaymentCancelled, PageIssue, PageCitizenHome, PageMyIssues,
		PageReportIssue, PageEditIssue, PageProfile, PageStaffHome, PageAssignedIssues, PageAdminHome,
		PageAllIssuesAdmin, PageManageUsers, PageManageStaff, PagePaymentsAdmin,
		PageLoading, PageAccessDenied, PageError, PageNotFound:
		return page + "-content"
	default:
		return PageNotFound + "-content"
	}
}
