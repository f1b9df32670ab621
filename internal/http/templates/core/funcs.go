package core

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	"github.com/civicwatch/portal/internal/domain/issue"
)

// Deps holds dependencies for constructing the core template func map.
type Deps struct {
	Template           **template.Template
	ContentTemplateFor func(string) string
}

// Funcs returns the helpers shared by every portal template.
func Funcs(deps Deps) template.FuncMap {
	return template.FuncMap{
		"renderSection": renderSection(deps),
		"friendlyTime":  FriendlyTime,
		"formatNumber":  FormatNumber,
		"statusClass":   StatusClass,
		"hasRole":       HasRole,
		"roles":         func() []string { return roleNames },
	}
}

//nolint:gochecknoglobals // static option list for role selects
var roleNames = []string{string(domainauth.RoleCitizen), string(domainauth.RoleStaff), string(domainauth.RoleAdmin)}

func renderSection(deps Deps) func(string, any) (template.HTML, error) {
	return func(page string, data any) (template.HTML, error) {
		if deps.Template == nil || *deps.Template == nil {
			return "", errors.New("template not initialized")
		}
		var buf bytes.Buffer
		if err := (*deps.Template).ExecuteTemplate(&buf, deps.ContentTemplateFor(page), data); err != nil {
			return "", err
		}
		// #nosec G203 - output of our own html/template set; values were escaped during execution.
		return template.HTML(buf.String()), nil
	}
}

// FriendlyTime formats t for display, or "" for the zero time.
func FriendlyTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("Jan 2, 2006 3:04 PM")
}

// FormatNumber renders n with thousands separators.
func FormatNumber(n int) string {
	s := strconv.Itoa(n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

// StatusClass maps an issue status to its badge class.
func StatusClass(status string) string {
	switch status {
	case issue.StatusPending:
		return "pending"
	case issue.StatusInProgress, issue.StatusWorking:
		return "progress"
	case issue.StatusResolved, issue.StatusClosed:
		return "resolved"
	case issue.StatusRejected:
		return "rejected"
	default:
		return ""
	}
}

// HasRole reports whether rec carries role. An unknown role name is a template bug.
func HasRole(rec *domainauth.RoleRecord, role string) (bool, error) {
	want, ok := domainauth.ParseRole(role)
	if !ok {
		return false, fmt.Errorf("hasRole: unknown role %q", role)
	}
	return rec != nil && rec.Role == want, nil
}
