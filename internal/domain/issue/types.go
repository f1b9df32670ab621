// Package issue holds the portal's view of the issue backend's records:
// accounts, issues, payments and dashboard aggregates.
package issue

import "time"

// Statuses used by the backend.
const (
	StatusPending    = "Pending"
	StatusInProgress = "In-Progress"
	StatusWorking    = "Working"
	StatusResolved   = "Resolved"
	StatusClosed     = "Closed"
	StatusRejected   = "Rejected"
)

// Categories are the issue categories citizens can report under.
var Categories = []string{"Pothole", "Streetlight", "Water Leakage", "Garbage Overflow", "Damaged Footpath"}

// Statuses lists the filterable issue statuses in workflow order.
var Statuses = []string{StatusPending, StatusInProgress, StatusWorking, StatusResolved, StatusClosed, StatusRejected}

// StaffStatuses are the statuses assigned staff may move an issue to.
var StaffStatuses = []string{StatusInProgress, StatusWorking, StatusResolved, StatusClosed}

// IsStaffStatus reports whether staff may set status s.
func IsStaffStatus(s string) bool {
	for _, known := range StaffStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsCategory reports whether c is a known category.
func IsCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// User is a portal account as listed by the backend.
type User struct {
	ID          string `json:"_id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL,omitempty"`
	Role        string `json:"role"`
	IsPremium   bool   `json:"isPremium"`
	IsBlocked   bool   `json:"isBlocked"`
}

// Issue is a reported infrastructure problem.
type Issue struct {
	ID                 string    `json:"_id"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	Category           string    `json:"category"`
	Location           string    `json:"location"`
	ImageURL           string    `json:"imageUrl,omitempty"`
	Status             string    `json:"status"`
	Priority           string    `json:"priority"`
	Upvotes            int       `json:"upvotes"`
	CitizenEmail       string    `json:"citizenEmail"`
	CitizenName        string    `json:"citizenName"`
	AssignedStaffEmail string    `json:"assignedStaffEmail,omitempty"`
	AssignedStaffName  string    `json:"assignedStaffName,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
}

// NewIssue is the payload of a citizen's issue report.
type NewIssue struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	Location     string `json:"location"`
	ImageURL     string `json:"imageUrl,omitempty"`
	CitizenEmail string `json:"citizenEmail"`
	CitizenName  string `json:"citizenName"`
}

// IssueEdit holds the fields a citizen may change on a pending issue.
type IssueEdit struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Location    string `json:"location"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

// Filter narrows issue listings. Zero values are omitted from the query.
type Filter struct {
	Status   string
	Category string
	Priority string
	Search   string
	Page     int
	Limit    int
}

// Page is one page of the public issue listing.
type Page struct {
	Issues     []Issue `json:"issues"`
	Total      int     `json:"total"`
	Page       int     `json:"page"`
	TotalPages int     `json:"totalPages"`
}

// TrackingLog is one entry of an issue's timeline.
type TrackingLog struct {
	ID        string    `json:"_id"`
	IssueID   string    `json:"issueId"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	UpdatedBy string    `json:"updatedBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// Payment is a completed subscription or boost payment.
type Payment struct {
	ID            string    `json:"_id"`
	TransactionID string    `json:"transactionId"`
	CustomerEmail string    `json:"customerEmail"`
	Type          string    `json:"type"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	PaidAt        time.Time `json:"paidAt"`
}

// CategoryCount is a per-category issue count.
type CategoryCount struct {
	Category string `json:"_id"`
	Count    int    `json:"count"`
}

// AdminStats backs the admin dashboard.
type AdminStats struct {
	TotalIssues    int             `json:"totalIssues"`
	ResolvedIssues int             `json:"resolvedIssues"`
	PendingIssues  int             `json:"pendingIssues"`
	RejectedIssues int             `json:"rejectedIssues"`
	TotalRevenue   float64         `json:"totalRevenue"`
	CategoryStats  []CategoryCount `json:"categoryStats"`
	LatestIssues   []Issue         `json:"latestIssues"`
	LatestPayments []Payment       `json:"latestPayments"`
}

// DailyCount is a per-day resolved count.
type DailyCount struct {
	Date  string `json:"_id"`
	Count int    `json:"count"`
}

// StaffStats backs the staff dashboard.
type StaffStats struct {
	TotalAssigned   int          `json:"totalAssigned"`
	InProgressCount int          `json:"inProgressCount"`
	ResolvedCount   int          `json:"resolvedCount"`
	DailyResolved   []DailyCount `json:"dailyResolved"`
}

// CitizenStats backs the citizen dashboard.
type CitizenStats struct {
	TotalReported int  `json:"totalReported"`
	PendingCount  int  `json:"pendingCount"`
	ResolvedCount int  `json:"resolvedCount"`
	IsPremium     bool `json:"isPremium"`
}

// NewStaff is the payload for creating a staff account.
type NewStaff struct {
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
	Phone       string `json:"phone,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

// Checkout is a payment provider redirect.
type Checkout struct {
	URL string `json:"url"`
}

