package ports

import (
	"context"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	"github.com/civicwatch/portal/internal/domain/issue"
)

// IssueBackend is the session-authenticated view of the external issue backend.
type IssueBackend interface {
	RoleSource

	ListUsers(ctx context.Context) ([]issue.User, error)
	ListStaff(ctx context.Context) ([]issue.User, error)
	SetBlocked(ctx context.Context, userID string, blocked bool) error
	SetRole(ctx context.Context, key string, role domainauth.Role) error
	UpdateProfile(ctx context.Context, key, displayName string) error
	AddStaff(ctx context.Context, staff issue.NewStaff) error
	RemoveStaff(ctx context.Context, key string) error

	CreateSubscriptionCheckout(ctx context.Context, cost int) (issue.Checkout, error)
	CreateBoostCheckout(ctx context.Context, issueID string, cost int) (issue.Checkout, error)

	ReportIssue(ctx context.Context, in issue.NewIssue) (string, error)
	Issue(ctx context.Context, id string) (issue.Issue, error)
	IssueLogs(ctx context.Context, id string) ([]issue.TrackingLog, error)
	AllIssues(ctx context.Context, f issue.Filter) (issue.Page, error)
	Upvote(ctx context.Context, id string) error
	MyIssues(ctx context.Context, f issue.Filter) ([]issue.Issue, error)
	DeleteMyIssue(ctx context.Context, id string) error
	UpdateMyIssue(ctx context.Context, id string, in issue.IssueEdit) error
	AssignedIssues(ctx context.Context, key string, f issue.Filter) ([]issue.Issue, error)
	UpdateIssueStatus(ctx context.Context, id, status string) error
	AssignIssue(ctx context.Context, id, staffKey string) error
	RejectIssue(ctx context.Context, id string) error

	AdminStats(ctx context.Context) (issue.AdminStats, error)
	StaffStats(ctx context.Context) (issue.StaffStats, error)
	CitizenStats(ctx context.Context, key string) (issue.CitizenStats, error)
	Payments(ctx context.Context) ([]issue.Payment, error)
}
