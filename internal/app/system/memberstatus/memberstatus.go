// internal/app/system/memberstatus/memberstatus.go

// Package memberstatus defines the membership role and status enums and
// the explicit status state machine shared by the stores and the
// entitlement engine.
package memberstatus

// Membership statuses.
const (
	Pending   = "pending"
	Approved  = "approved"
	Suspended = "suspended"
	Rejected  = "rejected"
)

// Membership roles.
const (
	RoleResident         = "resident"
	RoleCommunityManager = "community_manager"
	RoleGuard            = "guard"
	RoleHeadOfSecurity   = "head_of_security"
)

// IsValid reports whether s is a known membership status.
func IsValid(s string) bool {
	switch s {
	case Pending, Approved, Suspended, Rejected:
		return true
	}
	return false
}

// IsValidRole reports whether r is a known membership role.
func IsValidRole(r string) bool {
	switch r {
	case RoleResident, RoleCommunityManager, RoleGuard, RoleHeadOfSecurity:
		return true
	}
	return false
}

// transitions holds the only legal status edges:
//
//	pending   → approved | rejected
//	approved  → suspended
//	suspended → approved
//
// rejected is terminal.
var transitions = map[string][]string{
	Pending:   {Approved, Rejected},
	Approved:  {Suspended},
	Suspended: {Approved},
}

// CanTransition reports whether a membership may move from one status to
// another. Every (from, to) pair outside the explicit edge set is
// rejected, including no-op transitions to the current status.
func CanTransition(from, to string) bool {
	for _, allowed := range transitions[from] {
		if to == allowed {
			return true
		}
	}
	return false
}
