// internal/app/entitlement/errs.go
package entitlement

import (
	"errors"

	membershipstore "github.com/commonward/communitygate/internal/app/store/memberships"
	userstore "github.com/commonward/communitygate/internal/app/store/users"
)

var (
	// ErrForbidden is returned when the actor lacks the role a mutation
	// requires. Never retried.
	ErrForbidden = errors.New("actor is not allowed to perform this operation")

	// ErrInvalidEmail is returned for a syntactically invalid target email
	// before any provider call is made. Fatal, caller error.
	ErrInvalidEmail = errors.New("email address is not valid")

	// ErrInvalidRole is returned for a role outside the membership role enum.
	ErrInvalidRole = errors.New("unknown membership role")

	// ErrIdentityProviderUnavailable marks a transient identity-provider
	// failure. The whole operation is safe to retry: each step is
	// idempotent or reports ErrAlreadyMember on redo.
	ErrIdentityProviderUnavailable = errors.New("identity provider unavailable")

	// ErrStoreUnavailable marks a transient persistence failure. The engine
	// retries once with a short backoff before surfacing it.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Stable error codes for callers that need to branch on the failure kind
// (UI copy, bulk-import row outcomes). One code per taxonomy entry; the
// strings are part of the API contract and must not change.
const (
	CodeForbidden           = "forbidden"
	CodeAlreadyMember       = "already_member"
	CodeInvalidTransition   = "invalid_transition"
	CodeInvalidEmail        = "invalid_email"
	CodeInvalidRole         = "invalid_role"
	CodeNotFound            = "not_found"
	CodeCrossTenant         = "cross_tenant_violation"
	CodeProviderUnavailable = "identity_provider_unavailable"
	CodeStoreUnavailable    = "store_unavailable"
	CodeInternal            = "internal"
)

// CodeFor maps an engine error to its stable code.
func CodeFor(err error) string {
	switch {
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, membershipstore.ErrAlreadyMember):
		return CodeAlreadyMember
	case errors.Is(err, membershipstore.ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, membershipstore.ErrCrossTenant):
		return CodeCrossTenant
	case errors.Is(err, membershipstore.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidEmail), errors.Is(err, userstore.ErrDuplicateEmail):
		return CodeInvalidEmail
	case errors.Is(err, ErrInvalidRole):
		return CodeInvalidRole
	case errors.Is(err, ErrIdentityProviderUnavailable):
		return CodeProviderUnavailable
	case errors.Is(err, ErrStoreUnavailable):
		return CodeStoreUnavailable
	default:
		return CodeInternal
	}
}

// domainErr reports whether err is a deliberate engine outcome rather
// than an infrastructure failure. Domain errors pass through the retry
// helper untouched; everything else is treated as transient.
func domainErr(err error) bool {
	return errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrInvalidEmail) ||
		errors.Is(err, ErrInvalidRole) ||
		errors.Is(err, membershipstore.ErrAlreadyMember) ||
		errors.Is(err, membershipstore.ErrInvalidTransition) ||
		errors.Is(err, membershipstore.ErrCrossTenant) ||
		errors.Is(err, membershipstore.ErrNotFound) ||
		errors.Is(err, membershipstore.ErrNoHousehold) ||
		errors.Is(err, userstore.ErrDuplicateEmail)
}
