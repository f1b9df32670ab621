// Package mocks provides gomock implementations of the portal's ports.
//
// This package uses go.uber.org/mock (gomock) to generate type-safe mocks for the interfaces in
// internal/ports. To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	source := mocks.NewMockRoleSource(ctrl)
//	source.EXPECT().FetchRole(gomock.Any(), "a@example.com").Return(rec, nil)
package mocks

// Generate mock for RoleSource interface from internal/ports package.
// This creates MockRoleSource with methods for all RoleSource interface methods:
// FetchRole
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=role_source_mock.go github.com/civicwatch/portal/internal/ports RoleSource

// Generate mock for CredentialSupplier interface from internal/ports package.
// This creates MockCredentialSupplier with methods for all CredentialSupplier interface methods:
// Establish, Token, Clear
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=credential_supplier_mock.go github.com/civicwatch/portal/internal/ports CredentialSupplier
