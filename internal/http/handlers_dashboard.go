package httpx

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	"github.com/civicwatch/portal/internal/domain/issue"
	apperrors "github.com/civicwatch/portal/internal/errors"
	"github.com/civicwatch/portal/internal/service"
)

const adminIssuesPageSize = 20

type myIssuesView struct {
	Filter     issue.Filter  `json:"-"`
	Statuses   []string      `json:"-"`
	Categories []string      `json:"-"`
	Issues     []issue.Issue `json:"issues"`
}

type reportView struct {
	Premium    bool           `json:"premium"`
	Form       issue.NewIssue `json:"-"`
	Categories []string       `json:"categories"`
}

type editIssueView struct {
	ID         string          `json:"id"`
	Form       issue.IssueEdit `json:"issue"`
	Categories []string        `json:"categories"`
}

type profileView struct {
	SubscriptionCost int `json:"subscription_cost"`
}

type assignedView struct {
	Issues   []issue.Issue `json:"issues"`
	Statuses []string      `json:"statuses"`
}

type adminHomeView struct {
	Stats issue.AdminStats `json:"stats"`
	Staff []issue.User     `json:"staff"`
}

type adminIssuesView struct {
	Page    issue.Page   `json:"page"`
	Staff   []issue.User `json:"staff"`
	PrevURL string       `json:"prev_url,omitempty"`
	NextURL string       `json:"next_url,omitempty"`
}

// signedInKey returns the signed-in identity key; guarded routes always have one.
func signedInKey(p *service.Portal) string {
	return p.Session().Key()
}

// Dashboard sends the visitor to the home page of their role.
// GET /dashboard.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	dest := "/dashboard/citizen-home"
	if rec := RecordFromContext(r.Context()); rec != nil {
		switch rec.Role {
		case domainauth.RoleAdmin:
			dest = "/dashboard/admin-home"
		case domainauth.RoleStaff:
			dest = "/dashboard/staff-home"
		}
	}
	http.Redirect(w, r, dest, http.StatusSeeOther)
}

// CitizenHome shows the citizen's report counters.
// GET /dashboard/citizen-home.
func (h *Handlers) CitizenHome(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	stats, err := p.Backend().CitizenStats(r.Context(), signedInKey(p))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, PageMeta{Title: "Dashboard", Page: PageCitizenHome}, stats)
}

// MyIssues lists the citizen's own reports.
// GET /dashboard/my-issues?status=&category=.
func (h *Handlers) MyIssues(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	f := filterFromQuery(r.URL.Query(), 0)
	issues, err := p.Backend().MyIssues(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view := myIssuesView{Filter: f, Statuses: issue.Statuses, Categories: issue.Categories, Issues: issues}
	h.render(w, r, http.StatusOK, PageMeta{Title: "My issues", Page: PageMyIssues}, view)
}

// DeleteMyIssue removes one of the citizen's pending reports.
// POST /dashboard/my-issues/{id}/delete.
func (h *Handlers) DeleteMyIssue(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	if err := p.Backend().DeleteMyIssue(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.done(w, r, "/dashboard/my-issues")
}

// EditMyIssuePage renders the edit form of one of the citizen's issues.
// GET /dashboard/my-issues/{id}/edit.
func (h *Handlers) EditMyIssuePage(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	iss, err := p.Backend().Issue(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	form := issue.IssueEdit{
		Title:       iss.Title,
		Description: iss.Description,
		Category:    iss.Category,
		Location:    iss.Location,
		ImageURL:    iss.ImageURL,
	}
	view := editIssueView{ID: iss.ID, Form: form, Categories: issue.Categories}
	h.render(w, r, http.StatusOK, PageMeta{Title: "Edit issue", Page: PageEditIssue}, view)
}

// EditMyIssue saves changes to one of the citizen's pending issues.
// POST /dashboard/my-issues/{id}/edit.
func (h *Handlers) EditMyIssue(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	form := issue.IssueEdit{
		Title:       strings.TrimSpace(r.PostFormValue("title")),
		Description: strings.TrimSpace(r.PostFormValue("description")),
		Category:    r.PostFormValue("category"),
		Location:    strings.TrimSpace(r.PostFormValue("location")),
		ImageURL:    strings.TrimSpace(r.PostFormValue("imageUrl")),
	}
	if err := p.UpdateMyIssue(r.Context(), id, form); err != nil {
		view := editIssueView{ID: id, Form: form, Categories: issue.Categories}
		h.renderForm(w, r, PageMeta{Title: "Edit issue", Page: PageEditIssue}, view, err)
		return
	}
	h.done(w, r, "/issue/"+url.PathEscape(id))
}

func (h *Handlers) newReportView(r *http.Request, form issue.NewIssue) reportView {
	rec := RecordFromContext(r.Context())
	return reportView{Premium: rec != nil && rec.IsPremium, Form: form, Categories: issue.Categories}
}

// ReportIssuePage renders the report form.
// GET /dashboard/report-issue.
func (h *Handlers) ReportIssuePage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, PageMeta{Title: "Report an issue", Page: PageReportIssue}, h.newReportView(r, issue.NewIssue{}))
}

// ReportIssue files a new report.
// POST /dashboard/report-issue.
func (h *Handlers) ReportIssue(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	form := issue.NewIssue{
		Title:       strings.TrimSpace(r.PostFormValue("title")),
		Description: strings.TrimSpace(r.PostFormValue("description")),
		Category:    r.PostFormValue("category"),
		Location:    strings.TrimSpace(r.PostFormValue("location")),
		ImageURL:    strings.TrimSpace(r.PostFormValue("imageUrl")),
	}
	id, err := p.ReportIssue(r.Context(), form)
	if err != nil {
		h.renderForm(w, r, PageMeta{Title: "Report an issue", Page: PageReportIssue}, h.newReportView(r, form), err)
		return
	}
	if !IsBrowserRequest(r) {
		WriteJSON(w, http.StatusCreated, map[string]string{"id": id})
		return
	}
	http.Redirect(w, r, "/dashboard/my-issues", http.StatusSeeOther)
}

// Profile renders the signed-in user's profile.
// GET /dashboard/profile.
func (h *Handlers) Profile(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, PageMeta{Title: "Profile", Page: PageProfile}, profileView{SubscriptionCost: service.SubscriptionCost})
}

// UpdateProfile changes the display name.
// POST /dashboard/profile.
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	if err := p.UpdateProfile(r.Context(), r.PostFormValue("displayName")); err != nil {
		h.renderForm(w, r, PageMeta{Title: "Profile", Page: PageProfile}, profileView{SubscriptionCost: service.SubscriptionCost}, err)
		return
	}
	h.done(w, r, "/dashboard/profile")
}

// Subscribe starts the premium subscription checkout.
// POST /dashboard/profile/subscribe.
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	checkout, err := p.StartSubscription(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.checkout(w, r, checkout)
}

// StaffHome shows the staff member's workload.
// GET /dashboard/staff-home.
func (h *Handlers) StaffHome(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	stats, err := p.Backend().StaffStats(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, PageMeta{Title: "Dashboard", Page: PageStaffHome}, stats)
}

// AssignedIssues lists the issues assigned to the staff member.
// GET /dashboard/assigned-issues?status=&priority=.
func (h *Handlers) AssignedIssues(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	issues, err := p.Backend().AssignedIssues(r.Context(), signedInKey(p), filterFromQuery(r.URL.Query(), 0))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, PageMeta{Title: "Assigned issues", Page: PageAssignedIssues},
		assignedView{Issues: issues, Statuses: issue.StaffStatuses})
}

// UpdateIssueStatus moves an assigned issue along its workflow.
// POST /dashboard/assigned-issues/{id}/status.
func (h *Handlers) UpdateIssueStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	status := r.PostFormValue("status")
	if !issue.IsStaffStatus(status) {
		h.fail(w, r, apperrors.ValidationField("status", "unknown status"))
		return
	}
	if err := p.Backend().UpdateIssueStatus(r.Context(), r.PathValue("id"), status); err != nil {
		h.fail(w, r, err)
		return
	}
	h.done(w, r, "/dashboard/assigned-issues")
}

// AdminHome shows the portal-wide statistics.
// GET /dashboard/admin-home.
func (h *Handlers) AdminHome(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	var view adminHomeView
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		view.Stats, err = p.Backend().AdminStats(ctx)
		return err
	})
	g.Go(func() error {
		var err error
		view.Staff, err = p.Backend().ListStaff(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, PageMeta{Title: "Dashboard", Page: PageAdminHome}, view)
}

// AdminIssues lists every issue with assignment controls.
// GET /dashboard/all-issues-admin?page=.
func (h *Handlers) AdminIssues(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	var view adminIssuesView
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		view.Page, err = p.Backend().AllIssues(ctx, filterFromQuery(q, adminIssuesPageSize))
		return err
	})
	g.Go(func() error {
		var err error
		view.Staff, err = p.Backend().ListStaff(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		h.fail(w, r, err)
		return
	}
	view.PrevURL, view.NextURL = pageURLs("/dashboard/all-issues-admin", q, view.Page.Page, view.Page.TotalPages)
	h.render(w, r, http.StatusOK, PageMeta{Title: "All issues", Page: PageAllIssuesAdmin}, view)
}

// AssignIssue assigns an issue to a staff member.
// POST /dashboard/all-issues-admin/{id}/assign.
func (h *Handlers) AssignIssue(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	staff := domainauth.NormalizeKey(r.PostFormValue("staffEmail"))
	if staff == "" {
		h.fail(w, r, apperrors.ValidationField("staffEmail", "choose a staff member"))
		return
	}
	if err := p.Backend().AssignIssue(r.Context(), r.PathValue("id"), staff); err != nil {
		h.fail(w, r, err)
		return
	}
	h.done(w, r, "/dashboard/all-issues-admin")
}

// RejectIssue rejects a pending issue.
// POST /dashboard/all-issues-admin/{id}/reject.
func (h *Handlers) RejectIssue(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	if err := p.Backend().RejectIssue(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.done(w, r, "/dashboard/all-issues-admin")
}

// ManageUsers lists every account.
// GET /dashboard/manage-users.
func (h *Handlers) ManageUsers(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	users, err := p.Backend().ListUsers(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, PageMeta{Title: "Manage users", Page: PageManageUsers}, users)
}

// BlockUser blocks or unblocks an account.
// POST /dashboard/manage-users/{email}/block.
func (h *Handlers) BlockUser(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	blocked, err := strconv.ParseBool(r.PostFormValue("blocked"))
	if err != nil {
		h.fail(w, r, apperrors.ValidationField("blocked", "blocked must be true or false"))
		return
	}
	if err := p.BlockUser(r.Context(), r.PostFormValue("userId"), r.PathValue("email"), blocked); err != nil {
		h.fail(w, r, err)
		return
	}
	h.done(w, r, "/dashboard/manage-users")
}

// ChangeRole assigns a role to an account.
// POST /dashboard/manage-users/{email}/role.
func (h *Handlers) ChangeRole(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	role, valid := domainauth.ParseRole(r.PostFormValue("role"))
	if !valid {
		h.fail(w, r, apperrors.ValidationField("role", "unknown role"))
		return
	}
	if err := p.ChangeRole(r.Context(), r.PathValue("email"), role); err != nil {
		h.fail(w, r, err)
		return
	}
	h.done(w, r, "/dashboard/manage-users")
}

// ManageStaff lists staff accounts with the add form.
// GET /dashboard/manage-staff.
func (h *Handlers) ManageStaff(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	staff, err := p.Backend().ListStaff(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, PageMeta{Title: "Manage staff", Page: PageManageStaff}, staff)
}

// AddStaff creates a staff account.
// POST /dashboard/manage-staff.
func (h *Handlers) AddStaff(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	staff := issue.NewStaff{
		Email:       r.PostFormValue("email"),
		DisplayName: strings.TrimSpace(r.PostFormValue("displayName")),
		Phone:       strings.TrimSpace(r.PostFormValue("phone")),
		Password:    r.PostFormValue("password"),
	}
	if err := p.AddStaff(r.Context(), staff); err != nil {
		if !apperrors.IsValidation(err) {
			h.fail(w, r, err)
			return
		}
		current, lerr := p.Backend().ListStaff(r.Context())
		if lerr != nil {
			h.fail(w, r, lerr)
			return
		}
		h.renderForm(w, r, PageMeta{Title: "Manage staff", Page: PageManageStaff}, current, err)
		return
	}
	h.done(w, r, "/dashboard/manage-staff")
}

// RemoveStaff deletes a staff account.
// POST /dashboard/manage-staff/{email}/delete.
func (h *Handlers) RemoveStaff(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	if err := p.RemoveStaff(r.Context(), r.PathValue("email")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.done(w, r, "/dashboard/manage-staff")
}

// Payments lists every completed payment.
// GET /dashboard/payments-admin.
func (h *Handlers) Payments(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	payments, err := p.Backend().Payments(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, PageMeta{Title: "Payments", Page: PagePaymentsAdmin}, payments)
}
