package httpx

import (
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/civicwatch/portal/internal/domain/issue"
	apperrors "github.com/civicwatch/portal/internal/errors"
	"github.com/civicwatch/portal/internal/service"
)

const (
	homeResolvedLimit = 6
	allIssuesPageSize = 9
)

type homeView struct {
	Resolved []issue.Issue `json:"resolved"`
}

type issueListView struct {
	Filter     issue.Filter `json:"-"`
	Categories []string     `json:"-"`
	Statuses   []string     `json:"-"`
	Page       issue.Page   `json:"page"`
	PrevURL    string       `json:"prev_url,omitempty"`
	NextURL    string       `json:"next_url,omitempty"`
}

type paymentView struct {
	TransactionID string `json:"transaction_id,omitempty"`
}

type issueView struct {
	Issue     issue.Issue         `json:"issue"`
	Logs      []issue.TrackingLog `json:"logs"`
	IsOwner   bool                `json:"is_owner"`
	CanBoost  bool                `json:"can_boost"`
	CanDelete bool                `json:"can_delete"`
	BoostCost int                 `json:"boost_cost"`
}

// Home shows recently resolved issues.
// GET /.
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	page, err := p.Backend().AllIssues(r.Context(), issue.Filter{Status: issue.StatusResolved, Page: 1, Limit: homeResolvedLimit})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.render(w, r, http.StatusOK, PageMeta{Title: "Home", Page: PageHome}, homeView{Resolved: page.Issues})
}

// AllIssues lists issues with search, filters and paging.
// GET /all-issues?search=&category=&status=&priority=&page=.
func (h *Handlers) AllIssues(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := filterFromQuery(q, allIssuesPageSize)
	page, err := p.Backend().AllIssues(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view := issueListView{Filter: f, Categories: issue.Categories, Statuses: issue.Statuses, Page: page}
	view.PrevURL, view.NextURL = pageURLs("/all-issues", q, page.Page, page.TotalPages)
	h.render(w, r, http.StatusOK, PageMeta{Title: "All Issues", Page: PageAllIssues}, view)
}

// About renders the about page.
func (h *Handlers) About(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, PageMeta{Title: "About", Page: PageAbout}, nil)
}

// Contact renders the contact page.
func (h *Handlers) Contact(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, PageMeta{Title: "Contact", Page: PageContact}, nil)
}

// PaymentSuccess confirms a completed checkout so the premium flag is re-read.
// GET /payment-success?transactionId=<id>.
func (h *Handlers) PaymentSuccess(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	txn := r.URL.Query().Get("transactionId")
	if txn == "" {
		h.fail(w, r, apperrors.ValidationField("transactionId", "invalid transaction id or payment not completed"))
		return
	}
	if p.Session().Identity != nil {
		if err := p.ConfirmSubscription(r.Context(), txn); err != nil {
			h.logger().WarnContext(r.Context(), "payment confirmation failed", "error", err)
		}
	}
	h.render(w, r, http.StatusOK, PageMeta{Title: "Payment successful", Page: PagePaymentSuccess}, paymentView{TransactionID: txn})
}

// PaymentCancelled renders the cancelled-checkout page.
func (h *Handlers) PaymentCancelled(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, PageMeta{Title: "Payment cancelled", Page: PagePaymentCancelled}, paymentView{})
}

// IssueDetail shows one issue and its timeline.
// GET /issue/{id}.
func (h *Handlers) IssueDetail(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	var view issueView
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		view.Issue, err = p.Backend().Issue(ctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		view.Logs, err = p.Backend().IssueLogs(ctx, id)
		return err
	})
	if err := g.Wait(); err != nil {
		h.fail(w, r, err)
		return
	}

	if ident := p.Session().Identity; ident != nil {
		view.IsOwner = ident.Key == view.Issue.CitizenEmail
	}
	rec := RecordFromContext(r.Context())
	blocked := rec != nil && rec.IsBlocked
	view.CanBoost = view.IsOwner && !blocked && view.Issue.Priority != service.PriorityHigh
	view.CanDelete = view.IsOwner && view.Issue.Status == issue.StatusPending
	view.BoostCost = service.BoostCost
	h.render(w, r, http.StatusOK, PageMeta{Title: view.Issue.Title, Page: PageIssue}, view)
}

// Upvote adds the visitor's upvote to an issue.
// POST /issue/{id}/upvote.
func (h *Handlers) Upvote(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := p.Backend().Upvote(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.done(w, r, "/issue/"+id)
}

// Boost sends the owner to the checkout that raises the issue's priority.
// POST /issue/{id}/boost.
func (h *Handlers) Boost(w http.ResponseWriter, r *http.Request) {
	p, ok := h.portal(w, r)
	if !ok {
		return
	}
	checkout, err := p.BoostIssue(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.checkout(w, r, checkout)
}

// checkout hands the payment provider URL to the client.
func (h *Handlers) checkout(w http.ResponseWriter, r *http.Request, c issue.Checkout) {
	if !IsBrowserRequest(r) {
		WriteJSON(w, http.StatusOK, c)
		return
	}
	if c.URL == "" {
		h.fail(w, r, apperrors.Internal("payment provider returned no checkout url"))
		return
	}
	http.Redirect(w, r, c.URL, http.StatusSeeOther)
}
