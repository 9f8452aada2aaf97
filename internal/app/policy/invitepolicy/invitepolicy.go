// Package invitepolicy provides authorization policies for membership
// mutations.
//
// Authorization rules:
//   - Platform super-admins can mutate memberships in any tenant
//   - Community managers can mutate memberships within their own tenant
//   - Guards, heads of security, and residents cannot mutate memberships
//
// The actor is an immutable snapshot resolved once per request. A
// permission check and the action it gates always see the same claims;
// nothing here re-queries the actor mid-operation.
package invitepolicy

import (
	"github.com/commonward/communitygate/internal/app/system/memberstatus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Actor is the immutable claim set for the user performing an operation.
// SuperAdmin is a platform-level claim carried from the request context;
// TenantRole is the actor's membership role in the tenant being acted on
// (empty if the actor has no membership there).
type Actor struct {
	UserID     primitive.ObjectID
	TenantRole string
	SuperAdmin bool
}

// CanManageMemberships reports whether the actor may invite, transition,
// or remove members in the tenant their TenantRole was resolved against.
func CanManageMemberships(a Actor) bool {
	if a.SuperAdmin {
		return true
	}
	return a.TenantRole == memberstatus.RoleCommunityManager
}

// CanManageHouseholds reports whether the actor may create households or
// change household assignments. Same rule as membership management.
func CanManageHouseholds(a Actor) bool {
	return CanManageMemberships(a)
}
