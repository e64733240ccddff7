package authz

import (
	"errors"
	"fmt"
)

// Sentinel errors for request-time authorization outcomes. Each is terminal
// for its request; a denied decision is never retried.
var (
	// ErrUnauthenticated indicates no principal could be extracted.
	ErrUnauthenticated = errors.New("authz: unauthenticated")
	// ErrInsufficientPermission indicates the principal resolved but lacks a
	// required permission.
	ErrInsufficientPermission = errors.New("authz: insufficient permission")
	// ErrResolutionUnavailable indicates the membership graph could not be
	// queried. The gate fails closed on this condition.
	ErrResolutionUnavailable = errors.New("authz: resolution unavailable")
	// ErrServiceKeyRejected indicates the static service-key gate refused the
	// request.
	ErrServiceKeyRejected = errors.New("authz: service key rejected")
)

// ConfigurationError reports an operation declaring a permission that is not
// in the catalog. It is raised at startup only; the server refuses to serve.
type ConfigurationError struct {
	Operation  string
	Permission string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("authz: operation %q requires unknown permission %q", e.Operation, e.Permission)
}
