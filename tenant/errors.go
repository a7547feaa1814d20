package tenant

import "errors"

var (
	// ErrEmptyScope is returned when a scope is built without identifiers.
	ErrEmptyScope = errors.New("tenant: scope requires at least one tenant id")
	// ErrInvalidTenant is returned for nil or empty tenant identifiers.
	ErrInvalidTenant = errors.New("tenant: invalid tenant id")
	// ErrAmbiguousTenant is returned by Attach when the scope holds more than one tenant.
	ErrAmbiguousTenant = errors.New("tenant: ambiguous tenant for insert")
	// ErrTenantMismatch is returned by GuardRow when a row belongs to a tenant outside the scope.
	ErrTenantMismatch = errors.New("tenant: row outside tenant scope")
)
