package ports_test

import (
	"testing"

	"github.com/civicwatch/portal/internal/adapters/backend"
	"github.com/civicwatch/portal/internal/adapters/devauth"
	"github.com/civicwatch/portal/internal/adapters/oidc"
	redisadapter "github.com/civicwatch/portal/internal/adapters/redis"
	mocks "github.com/civicwatch/portal/internal/mocks/auth"
	"github.com/civicwatch/portal/internal/ports"
)

// This test only verifies that our doubles and adapters conform to the ports at compile time.
func TestImplementationsSatisfyPorts(t *testing.T) {
	t.Helper()

	var _ ports.IdentityProvider = (*mocks.MockIdentityProvider)(nil)
	var _ ports.IdentityRecordStore = (*mocks.MemoryIdentityStore)(nil)
	var _ ports.TokenStore = (*mocks.MemoryTokenStore)(nil)
	var _ ports.RoleCache = (*mocks.MemoryRoleCache)(nil)
	var _ ports.CredentialSupplier = (*mocks.StubCredentials)(nil)

	var _ ports.IdentityRecordStore = (*redisadapter.IdentityStore)(nil)
	var _ ports.TokenStore = (*redisadapter.TokenStore)(nil)
	var _ ports.RoleCache = (*redisadapter.RoleCache)(nil)

	var _ ports.IssueBackend = (*backend.Client)(nil)
	var _ ports.RoleSource = (*backend.Client)(nil)
	var _ ports.CredentialSupplier = (*backend.MintedCredentials)(nil)
	var _ ports.IdentityProviders = (*devauth.Provider)(nil)
	var _ ports.IdentityProviders = (*oidc.Provider)(nil)
	var _ ports.RedirectAuthenticator = (*oidc.Provider)(nil)
}
