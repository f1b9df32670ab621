package httpx

import (
	"net/http"
	"net/url"
	"strconv"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	"github.com/civicwatch/portal/internal/domain/issue"
)

// PageData is the root value every page template receives.
type PageData struct {
	Title string
	Page  string

	Identity  *domainauth.Identity
	Record    *domainauth.RoleRecord
	CSRFToken string

	Notice      string
	Error       string
	FieldErrors map[string]string

	// Refresh, in seconds, makes the page re-poll itself.
	Refresh int

	Data any
}

// PageMeta names the page being rendered.
type PageMeta struct {
	Title string
	Page  string
}

// newPageData fills the request-derived fields: the signed-in identity, the
// role record the guard rendered with, and the CSRF token.
func newPageData(r *http.Request, meta PageMeta, data any) PageData {
	pd := PageData{
		Title:     meta.Title,
		Page:      meta.Page,
		CSRFToken: GetCSRFToken(r),
		Record:    RecordFromContext(r.Context()),
		Data:      data,
	}
	if p, ok := PortalFromContext(r.Context()); ok {
		pd.Identity = p.Session().Identity
		if pd.Record == nil {
			pd.Record = p.Role().Record
		}
	}
	return pd
}

// filterFromQuery reads issue listing filters from the query string.
func filterFromQuery(q url.Values, defLimit int) issue.Filter {
	f := issue.Filter{
		Status:   q.Get("status"),
		Category: q.Get("category"),
		Priority: q.Get("priority"),
		Search:   q.Get("search"),
		Page:     1,
		Limit:    defLimit,
	}
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		f.Page = p
	}
	return f
}

// pageURLs builds previous/next links for a paged listing, keeping other query params.
func pageURLs(base string, q url.Values, page, totalPages int) (prev, next string) {
	build := func(n int) string {
		v := url.Values{}
		for k, vals := range q {
			v[k] = append([]string(nil), vals...)
		}
		v.Set("page", strconv.Itoa(n))
		return base + "?" + v.Encode()
	}
	if page > 1 {
		prev = build(page - 1)
	}
	if page < totalPages {
		next = build(page + 1)
	}
	return prev, next
}
