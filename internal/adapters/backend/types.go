package backend

import (
	"net/url"
	"strconv"

	"github.com/civicwatch/portal/internal/domain/issue"
)

func filterValues(f issue.Filter) url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("status", f.Status)
	set("category", f.Category)
	set("priority", f.Priority)
	set("search", f.Search)
	if f.Page > 0 {
		v.Set("page", strconv.Itoa(f.Page))
	}
	if f.Limit > 0 {
		v.Set("limit", strconv.Itoa(f.Limit))
	}
	return v
}

type rolePayload struct {
	Role      string `json:"role"`
	IsPremium bool   `json:"isPremium"`
	IsBlocked bool   `json:"isBlocked"`
}

type tokenPayload struct {
	Token string `json:"token"`
}
