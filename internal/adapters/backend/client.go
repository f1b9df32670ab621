// Package backend is the typed client of the external issue backend.
// Every call goes through a Doer, normally the session's request gateway,
// which attaches credentials and classifies failures.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	"github.com/civicwatch/portal/internal/domain/issue"
	apperrors "github.com/civicwatch/portal/internal/errors"
)

// Doer sends a request and returns only successful responses.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// maxResponseBody bounds decoded payloads.
const maxResponseBody = 4 << 20

// Client calls the issue backend.
type Client struct {
	baseURL string
	doer    Doer
}

// NewClient builds a Client for baseURL.
func NewClient(baseURL string, doer Doer) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("backend base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("parse backend base url: %w", err)
	}
	if doer == nil {
		return nil, errors.New("backend doer is required")
	}
	return &Client{baseURL: baseURL, doer: doer}, nil
}

// FetchRole returns the role record stored for key.
// An empty role field is returned as-is; an unknown role is a validation error.
func (c *Client) FetchRole(ctx context.Context, key string) (domainauth.RoleRecord, error) {
	var payload rolePayload
	if err := c.call(ctx, http.MethodGet, "/users/"+url.PathEscape(key)+"/role", nil, nil, &payload); err != nil {
		return domainauth.RoleRecord{}, err
	}
	rec := domainauth.RoleRecord{Key: key, IsPremium: payload.IsPremium, IsBlocked: payload.IsBlocked}
	if strings.TrimSpace(payload.Role) == "" {
		return rec, nil
	}
	role, ok := domainauth.ParseRole(payload.Role)
	if !ok {
		return domainauth.RoleRecord{}, apperrors.Validationf("backend returned unknown role %q", payload.Role)
	}
	rec.Role = role
	return rec, nil
}

// MintToken exchanges an identity provider token for a backend token.
// The provider token is sent explicitly; the Doer must not replace it.
func (c *Client) MintToken(ctx context.Context, providerToken, key string) (string, error) {
	if providerToken == "" {
		return "", domainauth.ErrNoCredential
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/auth/token", nil, map[string]string{"email": key})
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+providerToken)

	var payload tokenPayload
	if err := c.send(req, &payload); err != nil {
		return "", err
	}
	if payload.Token == "" {
		return "", apperrors.Internal("backend returned an empty token")
	}
	return payload.Token, nil
}

// ListUsers returns every citizen account.
func (c *Client) ListUsers(ctx context.Context) ([]issue.User, error) {
	var users []issue.User
	err := c.call(ctx, http.MethodGet, "/users/all", nil, nil, &users)
	return users, err
}

// ListStaff returns every staff account.
func (c *Client) ListStaff(ctx context.Context) ([]issue.User, error) {
	var users []issue.User
	err := c.call(ctx, http.MethodGet, "/users/staff", nil, nil, &users)
	return users, err
}

// SetBlocked blocks or unblocks the account with the given backend id.
func (c *Client) SetBlocked(ctx context.Context, userID string, blocked bool) error {
	body := map[string]bool{"isBlocked": blocked}
	return c.call(ctx, http.MethodPatch, "/users/"+url.PathEscape(userID)+"/block", nil, body, nil)
}

// SetRole changes the role of the account identified by key.
func (c *Client) SetRole(ctx context.Context, key string, role domainauth.Role) error {
	body := map[string]string{"role": string(role)}
	return c.call(ctx, http.MethodPatch, "/users/"+url.PathEscape(key)+"/role", nil, body, nil)
}

// UpdateProfile changes the display name stored for key.
func (c *Client) UpdateProfile(ctx context.Context, key, displayName string) error {
	body := map[string]string{"displayName": displayName}
	return c.call(ctx, http.MethodPatch, "/users/"+url.PathEscape(key), nil, body, nil)
}

// AddStaff creates a staff account.
func (c *Client) AddStaff(ctx context.Context, staff issue.NewStaff) error {
	return c.call(ctx, http.MethodPost, "/dashboard/admin/staff", nil, staff, nil)
}

// RemoveStaff deletes the staff account identified by key.
func (c *Client) RemoveStaff(ctx context.Context, key string) error {
	return c.call(ctx, http.MethodDelete, "/dashboard/admin/staff/"+url.PathEscape(key), nil, nil, nil)
}

// CreateSubscriptionCheckout starts a premium subscription payment.
func (c *Client) CreateSubscriptionCheckout(ctx context.Context, cost int) (issue.Checkout, error) {
	var out issue.Checkout
	err := c.call(ctx, http.MethodPost, "/subscription-checkout-session", nil, map[string]int{"cost": cost}, &out)
	return out, err
}

// CreateBoostCheckout starts a priority boost payment for an issue.
func (c *Client) CreateBoostCheckout(ctx context.Context, issueID string, cost int) (issue.Checkout, error) {
	var out issue.Checkout
	body := map[string]any{"issueId": issueID, "cost": cost}
	err := c.call(ctx, http.MethodPost, "/boost-checkout-session", nil, body, &out)
	return out, err
}

// ReportIssue files a new issue and returns its id.
func (c *Client) ReportIssue(ctx context.Context, in issue.NewIssue) (string, error) {
	var out struct {
		InsertedID string `json:"insertedId"`
	}
	if err := c.call(ctx, http.MethodPost, "/issues", nil, in, &out); err != nil {
		return "", err
	}
	return out.InsertedID, nil
}

// Issue returns one issue.
func (c *Client) Issue(ctx context.Context, id string) (issue.Issue, error) {
	var out issue.Issue
	err := c.call(ctx, http.MethodGet, "/issues/"+url.PathEscape(id), nil, nil, &out)
	return out, err
}

// IssueLogs returns the tracking timeline of an issue.
func (c *Client) IssueLogs(ctx context.Context, id string) ([]issue.TrackingLog, error) {
	var out []issue.TrackingLog
	err := c.call(ctx, http.MethodGet, "/trackings/"+url.PathEscape(id)+"/logs", nil, nil, &out)
	return out, err
}

// AllIssues returns one page of the public issue listing.
func (c *Client) AllIssues(ctx context.Context, f issue.Filter) (issue.Page, error) {
	var out issue.Page
	err := c.call(ctx, http.MethodGet, "/issues/all", filterValues(f), nil, &out)
	return out, err
}

// Upvote adds the caller's upvote to an issue.
func (c *Client) Upvote(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodPatch, "/issues/"+url.PathEscape(id)+"/upvote", nil, nil, nil)
}

// MyIssues returns the caller's own issues.
func (c *Client) MyIssues(ctx context.Context, f issue.Filter) ([]issue.Issue, error) {
	var out []issue.Issue
	err := c.call(ctx, http.MethodGet, "/dashboard/my-issues", filterValues(f), nil, &out)
	return out, err
}

// DeleteMyIssue deletes one of the caller's pending issues.
func (c *Client) DeleteMyIssue(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/dashboard/my-issues/"+url.PathEscape(id), nil, nil, nil)
}

// UpdateMyIssue edits one of the caller's pending issues.
func (c *Client) UpdateMyIssue(ctx context.Context, id string, in issue.IssueEdit) error {
	return c.call(ctx, http.MethodPatch, "/dashboard/my-issues/"+url.PathEscape(id), nil, in, nil)
}

// AssignedIssues returns the issues assigned to a staff member.
func (c *Client) AssignedIssues(ctx context.Context, key string, f issue.Filter) ([]issue.Issue, error) {
	q := filterValues(f)
	q.Set("email", key)
	var out []issue.Issue
	err := c.call(ctx, http.MethodGet, "/dashboard/staff/assigned-issues", q, nil, &out)
	return out, err
}

// UpdateIssueStatus moves an assigned issue to status.
func (c *Client) UpdateIssueStatus(ctx context.Context, id, status string) error {
	body := map[string]string{"newStatus": status}
	return c.call(ctx, http.MethodPatch, "/dashboard/staff/issues/"+url.PathEscape(id)+"/status", nil, body, nil)
}

// AssignIssue assigns an issue to a staff member.
func (c *Client) AssignIssue(ctx context.Context, id, staffKey string) error {
	body := map[string]string{"staffEmail": staffKey}
	return c.call(ctx, http.MethodPatch, "/dashboard/admin/issues/"+url.PathEscape(id)+"/assign", nil, body, nil)
}

// RejectIssue rejects a pending issue.
func (c *Client) RejectIssue(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodPatch, "/dashboard/admin/issues/"+url.PathEscape(id)+"/reject", nil, nil, nil)
}

// AdminStats returns the admin dashboard aggregates.
func (c *Client) AdminStats(ctx context.Context) (issue.AdminStats, error) {
	var out issue.AdminStats
	err := c.call(ctx, http.MethodGet, "/dashboard/admin/stats", nil, nil, &out)
	return out, err
}

// StaffStats returns the staff dashboard aggregates for the caller.
func (c *Client) StaffStats(ctx context.Context) (issue.StaffStats, error) {
	var out issue.StaffStats
	err := c.call(ctx, http.MethodGet, "/dashboard/staff/stats", nil, nil, &out)
	return out, err
}

// CitizenStats returns the citizen dashboard aggregates for key.
func (c *Client) CitizenStats(ctx context.Context, key string) (issue.CitizenStats, error) {
	var out issue.CitizenStats
	err := c.call(ctx, http.MethodGet, "/dashboard/citizen-stats/"+url.PathEscape(key), nil, nil, &out)
	return out, err
}

// Payments returns every recorded payment.
func (c *Client) Payments(ctx context.Context) ([]issue.Payment, error) {
	var out []issue.Payment
	err := c.call(ctx, http.MethodGet, "/dashboard/admin/payments", nil, nil, &out)
	return out, err
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.doer.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(out); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeInternal, "decode %s %s", req.Method, req.URL.Path)
	}
	return nil
}
