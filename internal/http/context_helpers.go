package httpx

import (
	"context"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
	"github.com/civicwatch/portal/internal/service"
)

// Unexported context key types avoid collisions across packages.
type (
	portalKey struct{}
	recordKey struct{}
)

// WithPortal returns a child context carrying the browser session's portal.
func WithPortal(ctx context.Context, p *service.Portal) context.Context {
	if p == nil {
		return ctx
	}
	return context.WithValue(ctx, portalKey{}, p)
}

// PortalFromContext returns the portal of the current browser session.
func PortalFromContext(ctx context.Context) (*service.Portal, bool) {
	p, ok := ctx.Value(portalKey{}).(*service.Portal)
	return p, ok && p != nil
}

// withRecord stores the role record the guard decided with.
func withRecord(ctx context.Context, rec *domainauth.RoleRecord) context.Context {
	if rec == nil {
		return ctx
	}
	return context.WithValue(ctx, recordKey{}, rec)
}

// RecordFromContext returns the role record of a rendered guarded route, or nil.
func RecordFromContext(ctx context.Context) *domainauth.RoleRecord {
	rec, _ := ctx.Value(recordKey{}).(*domainauth.RoleRecord)
	return rec
}
