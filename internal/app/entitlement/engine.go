// internal/app/entitlement/engine.go

// Package entitlement is the orchestration core: it resolves identities,
// manages membership lifecycles, and answers feature access checks by
// combining the subscription gate with the feature override hierarchy.
//
// All mutations are actor-gated through invitepolicy; all store and
// provider calls carry timeouts and a single transient-failure retry.
package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/commonward/communitygate/internal/app/policy/invitepolicy"
	membershipstore "github.com/commonward/communitygate/internal/app/store/memberships"
	"github.com/commonward/communitygate/internal/app/system/auditlog"
	"github.com/commonward/communitygate/internal/app/system/memberstatus"
	"github.com/commonward/communitygate/internal/app/system/normalize"
	"github.com/commonward/communitygate/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// BillingFeatureKey is the feature that stays reachable while a tenant's
// subscription is lapsed, so an owner can fix billing and recover the
// account. Hard-coded on purpose: making it configurable would let a
// misconfiguration lock tenants out permanently.
const BillingFeatureKey = "billing_management"

// Access-decision reasons, stable strings for callers and the audit trail.
const (
	ReasonAllowed             = "allowed"
	ReasonSubscriptionExpired = "subscription_expired"
	ReasonFeatureDisabled     = "feature_disabled"
	ReasonBillingBypass       = "billing_bypass"
)

// ActorRef identifies the caller of a mutation before their tenant role
// is resolved. SuperAdmin is a platform claim carried from the request.
type ActorRef struct {
	UserID     primitive.ObjectID
	SuperAdmin bool
}

// InviteRequest is the input to InviteOrJoin.
type InviteRequest struct {
	Email         string
	FullName      string
	Role          string
	Unit          *string
	HouseholdName string // optional; resolve-or-create when set
}

// InviteResult reports what InviteOrJoin did.
type InviteResult struct {
	Membership models.Membership
	User       models.User
	Household  *models.Household

	// ProvisioningDegraded is true when the identity provider rejected
	// the address and a deferred-activation profile was created. The
	// membership was still created; ActivationToken must be delivered
	// out of band.
	ProvisioningDegraded bool
	ActivationToken      string
}

// AccessDecision is the outcome of CheckAccess.
type AccessDecision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Engine orchestrates the membership, identity, feature, and
// subscription components.
type Engine struct {
	memberships MembershipStore
	households  HouseholdStore
	identity    *IdentityResolver
	features    *FeatureResolver
	subs        *SubscriptionGate
	audit       *auditlog.Logger
	log         *zap.Logger
	backoff     time.Duration
}

// New wires an Engine. audit may be nil (tests).
func New(
	memberships MembershipStore,
	households HouseholdStore,
	identity *IdentityResolver,
	features *FeatureResolver,
	subs *SubscriptionGate,
	audit *auditlog.Logger,
	log *zap.Logger,
) *Engine {
	return &Engine{
		memberships: memberships,
		households:  households,
		identity:    identity,
		features:    features,
		subs:        subs,
		audit:       audit,
		log:         log,
		backoff:     defaultBackoff,
	}
}

/* -------------------------------------------------------------------------- */
/* Actor resolution                                                           */
/* -------------------------------------------------------------------------- */

// resolveActor builds the immutable claim snapshot for ref against
// tenantID. Only an approved membership contributes a tenant role; a
// suspended manager has no standing until reinstated.
func (e *Engine) resolveActor(ctx context.Context, tenantID primitive.ObjectID, ref ActorRef) (invitepolicy.Actor, error) {
	actor := invitepolicy.Actor{UserID: ref.UserID, SuperAdmin: ref.SuperAdmin}
	if ref.SuperAdmin {
		return actor, nil
	}

	m, err := callStore(ctx, e.log, e.backoff, "memberships.Get", func(ctx context.Context) (*models.Membership, error) {
		return e.memberships.Get(ctx, tenantID, ref.UserID)
	})
	if err != nil {
		return actor, err
	}
	if m != nil && m.Status == memberstatus.Approved {
		actor.TenantRole = m.Role
	}
	return actor, nil
}

/* -------------------------------------------------------------------------- */
/* InviteOrJoin                                                               */
/* -------------------------------------------------------------------------- */

// InviteOrJoin runs the direct-invite flow: authorize the actor, resolve
// or provision the target identity, optionally bind a household, and
// create an approved membership.
//
// Ordering matters: authorization precedes identity resolution so a
// forbidden actor provisions nothing. Identity and household creation
// are not rolled back if the final membership insert loses a duplicate
// race; both are idempotent keys (email, household name) so a redo
// converges, and the loser surfaces ErrAlreadyMember.
func (e *Engine) InviteOrJoin(ctx context.Context, tenantID primitive.ObjectID, ref ActorRef, req InviteRequest) (*InviteResult, error) {
	req.Role = normalize.Role(req.Role)
	if !memberstatus.IsValidRole(req.Role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, req.Role)
	}

	actor, err := e.resolveActor(ctx, tenantID, ref)
	if err != nil {
		return nil, err
	}
	if !invitepolicy.CanManageMemberships(actor) {
		e.audit.ActorForbidden(ctx, tenantID, ref.UserID, "invite")
		return nil, fmt.Errorf("%w: invite requires community manager", ErrForbidden)
	}

	res, err := e.identity.ResolveOrProvision(ctx, req.Email, ProvisionMetadata{FullName: req.FullName})
	if err != nil {
		return nil, err
	}
	if res.Outcome == ProvisioningDegraded {
		e.audit.ProvisioningDegraded(ctx, tenantID, res.User.ID, "provider rejected email")
	}

	out := &InviteResult{
		User:                 res.User,
		ProvisioningDegraded: res.Outcome == ProvisioningDegraded,
		ActivationToken:      res.ActivationToken,
	}

	// Pre-check for an existing membership so the common duplicate case
	// reports before any household is created. The unique index still
	// backstops the concurrent case at Create.
	existing, err := callStore(ctx, e.log, e.backoff, "memberships.Get", func(ctx context.Context) (*models.Membership, error) {
		return e.memberships.Get(ctx, tenantID, res.User.ID)
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, membershipstore.ErrAlreadyMember
	}

	var householdID *primitive.ObjectID
	if req.HouseholdName != "" {
		h, err := callStoreWrite(ctx, e.log, e.backoff, "households.ResolveOrCreate", func(ctx context.Context) (models.Household, error) {
			return e.households.ResolveOrCreate(ctx, tenantID, req.HouseholdName)
		})
		if err != nil {
			return nil, err
		}
		out.Household = &h
		householdID = &h.ID
	}

	m, err := callStoreWrite(ctx, e.log, e.backoff, "memberships.Create", func(ctx context.Context) (models.Membership, error) {
		return e.memberships.Create(ctx, models.Membership{
			TenantID:    tenantID,
			UserID:      res.User.ID,
			Role:        req.Role,
			Status:      memberstatus.Approved,
			HouseholdID: householdID,
			Unit:        req.Unit,
		})
	})
	if err != nil {
		return nil, err
	}

	out.Membership = m
	e.audit.MemberInvited(ctx, tenantID, ref.UserID, res.User.ID, req.Role, out.ProvisioningDegraded)
	return out, nil
}

// RequestToJoin is the self-service counterpart of InviteOrJoin: the
// authenticated user asks to join a tenant and gets a pending
// membership awaiting manager approval. No actor gate; anyone may ask.
func (e *Engine) RequestToJoin(ctx context.Context, tenantID, userID primitive.ObjectID, unit *string) (*models.Membership, error) {
	m, err := callStoreWrite(ctx, e.log, e.backoff, "memberships.Create", func(ctx context.Context) (models.Membership, error) {
		return e.memberships.Create(ctx, models.Membership{
			TenantID: tenantID,
			UserID:   userID,
			Role:     memberstatus.RoleResident,
			Status:   memberstatus.Pending,
			Unit:     unit,
		})
	})
	if err != nil {
		return nil, err
	}
	e.audit.JoinRequested(ctx, tenantID, userID, m.Role)
	return &m, nil
}

/* -------------------------------------------------------------------------- */
/* Lifecycle mutations                                                        */
/* -------------------------------------------------------------------------- */

// TransitionMembership moves a membership along a legal lifecycle edge.
// The actor's role is resolved against the membership's own tenant.
func (e *Engine) TransitionMembership(ctx context.Context, ref ActorRef, membershipID primitive.ObjectID, newStatus string) (*models.Membership, error) {
	newStatus = normalize.Status(newStatus)

	m, err := e.getMembership(ctx, membershipID)
	if err != nil {
		return nil, err
	}

	actor, err := e.resolveActor(ctx, m.TenantID, ref)
	if err != nil {
		return nil, err
	}
	if !invitepolicy.CanManageMemberships(actor) {
		e.audit.ActorForbidden(ctx, m.TenantID, ref.UserID, "transition")
		return nil, fmt.Errorf("%w: transition requires community manager", ErrForbidden)
	}

	updated, err := callStoreWrite(ctx, e.log, e.backoff, "memberships.Transition", func(ctx context.Context) (*models.Membership, error) {
		return e.memberships.Transition(ctx, membershipID, newStatus)
	})
	if err != nil {
		return nil, err
	}

	e.audit.MemberTransitioned(ctx, m.TenantID, ref.UserID, m.UserID, m.Status, newStatus)
	return updated, nil
}

// RemoveMembership deletes a membership. Idempotent: removing an absent
// membership succeeds.
func (e *Engine) RemoveMembership(ctx context.Context, ref ActorRef, membershipID primitive.ObjectID) error {
	m, err := callStore(ctx, e.log, e.backoff, "memberships.GetByID", func(ctx context.Context) (*models.Membership, error) {
		return e.memberships.GetByID(ctx, membershipID)
	})
	if err != nil {
		return err
	}
	if m == nil {
		return nil
	}

	actor, err := e.resolveActor(ctx, m.TenantID, ref)
	if err != nil {
		return err
	}
	if !invitepolicy.CanManageMemberships(actor) {
		e.audit.ActorForbidden(ctx, m.TenantID, ref.UserID, "remove")
		return fmt.Errorf("%w: removal requires community manager", ErrForbidden)
	}

	if _, err := callStoreWrite(ctx, e.log, e.backoff, "memberships.Remove", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, e.memberships.Remove(ctx, membershipID)
	}); err != nil {
		return err
	}

	e.audit.MemberRemoved(ctx, m.TenantID, ref.UserID, m.UserID)
	return nil
}

// AttachHousehold resolves-or-creates a household by name and binds the
// membership to it.
func (e *Engine) AttachHousehold(ctx context.Context, ref ActorRef, membershipID primitive.ObjectID, householdName string) (*models.Membership, error) {
	m, err := e.getMembership(ctx, membershipID)
	if err != nil {
		return nil, err
	}

	actor, err := e.resolveActor(ctx, m.TenantID, ref)
	if err != nil {
		return nil, err
	}
	if !invitepolicy.CanManageHouseholds(actor) {
		e.audit.ActorForbidden(ctx, m.TenantID, ref.UserID, "attach_household")
		return nil, fmt.Errorf("%w: household changes require community manager", ErrForbidden)
	}

	h, err := callStoreWrite(ctx, e.log, e.backoff, "households.ResolveOrCreate", func(ctx context.Context) (models.Household, error) {
		return e.households.ResolveOrCreate(ctx, m.TenantID, householdName)
	})
	if err != nil {
		return nil, err
	}

	updated, err := callStoreWrite(ctx, e.log, e.backoff, "memberships.AssignHousehold", func(ctx context.Context) (*models.Membership, error) {
		return e.memberships.AssignHousehold(ctx, membershipID, &h.ID)
	})
	if err != nil {
		if errors.Is(err, membershipstore.ErrCrossTenant) {
			e.audit.CrossTenantViolation(ctx, m.TenantID, ref.UserID, "household belongs to another tenant")
		}
		return nil, err
	}

	e.audit.HouseholdAssigned(ctx, m.TenantID, ref.UserID, m.UserID, h.Name)
	return updated, nil
}

// DetachHousehold clears the membership's household link (and with it
// the head flag).
func (e *Engine) DetachHousehold(ctx context.Context, ref ActorRef, membershipID primitive.ObjectID) (*models.Membership, error) {
	m, err := e.getMembership(ctx, membershipID)
	if err != nil {
		return nil, err
	}

	actor, err := e.resolveActor(ctx, m.TenantID, ref)
	if err != nil {
		return nil, err
	}
	if !invitepolicy.CanManageHouseholds(actor) {
		e.audit.ActorForbidden(ctx, m.TenantID, ref.UserID, "detach_household")
		return nil, fmt.Errorf("%w: household changes require community manager", ErrForbidden)
	}

	updated, err := callStoreWrite(ctx, e.log, e.backoff, "memberships.AssignHousehold", func(ctx context.Context) (*models.Membership, error) {
		return e.memberships.AssignHousehold(ctx, membershipID, nil)
	})
	if err != nil {
		return nil, err
	}

	e.audit.HouseholdCleared(ctx, m.TenantID, ref.UserID, m.UserID)
	return updated, nil
}

func (e *Engine) getMembership(ctx context.Context, id primitive.ObjectID) (*models.Membership, error) {
	m, err := callStore(ctx, e.log, e.backoff, "memberships.GetByID", func(ctx context.Context) (*models.Membership, error) {
		return e.memberships.GetByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, membershipstore.ErrNotFound
	}
	return m, nil
}

/* -------------------------------------------------------------------------- */
/* CheckAccess                                                                */
/* -------------------------------------------------------------------------- */

// CheckAccess decides whether a member with role may use featureKey in
// tenant. Subscription gate first, then the feature hierarchy; the
// billing feature bypasses a failed subscription gate so lapsed tenants
// can recover. Fails closed: store errors propagate, they never default
// to allow.
func (e *Engine) CheckAccess(ctx context.Context, tenantID primitive.ObjectID, role, featureKey string) (AccessDecision, error) {
	active, err := e.subs.IsActive(ctx, tenantID)
	if err != nil {
		return AccessDecision{}, err
	}

	if !active {
		if featureKey != BillingFeatureKey {
			d := AccessDecision{Allowed: false, Reason: ReasonSubscriptionExpired}
			e.audit.AccessDecision(ctx, tenantID, role, featureKey, d.Allowed, d.Reason)
			return d, nil
		}
		// The bypass skips the hierarchy on purpose: no flag
		// configuration may disable the one feature that lets a
		// manager fix a lapsed subscription.
		d := AccessDecision{Allowed: true, Reason: ReasonBillingBypass}
		e.audit.AccessDecision(ctx, tenantID, role, featureKey, d.Allowed, d.Reason)
		return d, nil
	}

	enabled, err := e.features.Resolve(ctx, tenantID, role, featureKey)
	if err != nil {
		return AccessDecision{}, err
	}
	d := AccessDecision{Allowed: enabled, Reason: ReasonAllowed}
	if !enabled {
		d.Reason = ReasonFeatureDisabled
	}
	e.audit.AccessDecision(ctx, tenantID, role, featureKey, d.Allowed, d.Reason)
	return d, nil
}

// PaymentRequired answers the provisioning flow's pre-creation question:
// does this owner's next community need payment up front.
func (e *Engine) PaymentRequired(ctx context.Context, ownerUserID primitive.ObjectID) (bool, error) {
	return e.subs.PaymentRequired(ctx, ownerUserID)
}
