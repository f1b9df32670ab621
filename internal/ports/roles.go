package ports

import (
	"context"
	"time"

	domainauth "github.com/civicwatch/portal/internal/domain/auth"
)

// RoleSource fetches the authoritative role record for a key.
type RoleSource interface {
	FetchRole(ctx context.Context, key string) (domainauth.RoleRecord, error)
}

// RoleCache stores role records shared across browser sessions.
// Get reports ok=false on a miss.
type RoleCache interface {
	Get(ctx context.Context, key string) (rec domainauth.RoleRecord, ok bool, err error)
	Set(ctx context.Context, rec domainauth.RoleRecord, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
