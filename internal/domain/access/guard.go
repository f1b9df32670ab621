// Package access decides what a protected route shows for a given session and role state.
// Decide is pure; Await re-evaluates it as the underlying state changes.
package access

import (
	"context"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
)

// Kind is the outcome of a guard evaluation.
type Kind string

const (
	Loading         Kind = "loading"
	RedirectToLogin Kind = "redirect_to_login"
	AccessDenied    Kind = "access_denied"
	Render          Kind = "render"
)

// Reason explains an AccessDenied decision.
type Reason string

const (
	ReasonRoleMismatch Reason = "role_mismatch"
	ReasonBlocked      Reason = "blocked"
)

// FallbackPath is the safe page offered on AccessDenied.
const FallbackPath = "/dashboard/profile"

// SessionState is the Session Store's view: who is signed in and whether that is still being settled.
type SessionState struct {
	Identity  *domainauth.Identity
	Resolving bool
}

// Key returns the signed-in identity key, or "".
func (s SessionState) Key() string {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.Key
}

// RoleState is the Role Resolver's view for its current key.
// Record is nil until a fetch succeeds; Err holds the last failure.
type RoleState struct {
	Key     string
	Record  *domainauth.RoleRecord
	Loading bool
	Err     error
}

// Loaded reports whether a record is available for key.
func (r RoleState) Loaded(key string) bool {
	return r.Record != nil && r.Key == key && !r.Loading
}

// Request describes the route being guarded.
type Request struct {
	Required domainauth.Role // empty: any signed-in user
	Path     string
	Mutating bool
}

// Input is everything Decide looks at.
type Input struct {
	Session SessionState
	Role    RoleState
	Request
}

// Decision is the guard outcome. Only the fields relevant to Kind are set.
type Decision struct {
	Kind Kind

	// RedirectToLogin
	ReturnTo string

	// AccessDenied
	Required domainauth.Role
	Actual   domainauth.Role
	Reason   Reason
	Fallback string

	// Render
	Record *domainauth.RoleRecord
}

// Decide evaluates the guard rules in order; the first rule that applies wins.
func Decide(in Input) Decision {
	if in.Session.Resolving {
		return Decision{Kind: Loading}
	}
	if in.Session.Identity == nil {
		return Decision{Kind: RedirectToLogin, ReturnTo: in.Path}
	}

	// Unknown or stale role never renders and never denies.
	key := in.Session.Key()
	if !in.Role.Loaded(key) {
		return Decision{Kind: Loading}
	}
	rec := in.Role.Record

	if in.Required != "" && rec.Role != in.Required {
		return Decision{
			Kind:     AccessDenied,
			Required: in.Required,
			Actual:   rec.Role,
			Reason:   ReasonRoleMismatch,
			Fallback: FallbackPath,
		}
	}
	if in.Mutating && rec.IsBlocked {
		return Decision{
			Kind:     AccessDenied,
			Required: in.Required,
			Actual:   rec.Role,
			Reason:   ReasonBlocked,
			Fallback: FallbackPath,
		}
	}

	return Decision{Kind: Render, Record: rec}
}

// Source exposes current session and role state plus change notification.
// Changed returns a channel closed at the next state change after the call.
type Source interface {
	Snapshot() (SessionState, RoleState)
	Changed() <-chan struct{}
}

// Await evaluates req against src until the decision leaves Loading or ctx ends.
// On ctx end the last (Loading) decision is returned with ctx.Err().
func Await(ctx context.Context, src Source, req Request) (Decision, error) {
	for {
		changed := src.Changed()
		sess, role := src.Snapshot()
		d := Decide(Input{Session: sess, Role: role, Request: req})
		if d.Kind != Loading {
			return d, nil
		}
		select {
		case <-ctx.Done():
			return d, ctx.Err()
		case <-changed:
		}
	}
}
