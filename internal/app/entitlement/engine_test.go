// internal/app/entitlement/engine_test.go
package entitlement

import (
	"context"
	"errors"
	"testing"
	"time"

	membershipstore "github.com/commonward/communitygate/internal/app/store/memberships"
	"github.com/commonward/communitygate/internal/app/system/auditlog"
	"github.com/commonward/communitygate/internal/app/system/memberstatus"
	"github.com/commonward/communitygate/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type testEnv struct {
	engine      *Engine
	memberships *fakeMembershipStore
	households  *fakeHouseholdStore
	users       *fakeUserStore
	features    *fakeFeatureStore
	subs        *fakeSubscriptionStore
	tenants     *fakeTenantCounter
	provider    *StubProvider
	gate        *SubscriptionGate
}

func newTestEnv() *testEnv {
	return newTestEnvWithAudit(nil)
}

// newTestEnvWithAudit builds the engine over fakes with a real audit
// logger, so tests can assert on the audit trail.
func newTestEnvWithAudit(audit *auditlog.Logger) *testEnv {
	log := zap.NewNop()
	env := &testEnv{
		memberships: newFakeMembershipStore(),
		households:  newFakeHouseholdStore(),
		users:       newFakeUserStore(),
		features:    newFakeFeatureStore(),
		subs:        newFakeSubscriptionStore(),
		tenants:     newFakeTenantCounter(),
		provider:    NewStubProvider(),
	}

	identity := NewIdentityResolver(env.users, env.provider, log)
	identity.backoff = time.Millisecond

	resolver := NewFeatureResolver(env.features, log)
	resolver.backoff = time.Millisecond

	env.gate = NewSubscriptionGate(env.subs, env.tenants, log)
	env.gate.backoff = time.Millisecond

	env.engine = New(env.memberships, env.households, identity, resolver, env.gate, audit, log)
	env.engine.backoff = time.Millisecond
	return env
}

// seedMember creates a user plus a membership directly in the fakes and
// returns both ids.
func (env *testEnv) seedMember(t *testing.T, tenantID primitive.ObjectID, email, role, status string) (primitive.ObjectID, primitive.ObjectID) {
	t.Helper()
	u, err := env.users.Create(context.Background(), models.User{Email: email})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	m, err := env.memberships.Create(context.Background(), models.Membership{
		TenantID: tenantID,
		UserID:   u.ID,
		Role:     role,
		Status:   status,
	})
	if err != nil {
		t.Fatalf("seed membership: %v", err)
	}
	return u.ID, m.ID
}

func (env *testEnv) manager(t *testing.T, tenantID primitive.ObjectID) ActorRef {
	t.Helper()
	userID, _ := env.seedMember(t, tenantID, "manager@example.com", memberstatus.RoleCommunityManager, memberstatus.Approved)
	return ActorRef{UserID: userID}
}

func TestInviteOrJoinNewUser(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tenantID := primitive.NewObjectID()
	actor := env.manager(t, tenantID)

	unit := "101"
	res, err := env.engine.InviteOrJoin(ctx, tenantID, actor, InviteRequest{
		Email:    "new@example.com",
		FullName: "New Resident",
		Role:     memberstatus.RoleResident,
		Unit:     &unit,
	})
	if err != nil {
		t.Fatalf("InviteOrJoin: %v", err)
	}
	if res.Membership.Status != memberstatus.Approved {
		t.Errorf("status = %q, want approved", res.Membership.Status)
	}
	if res.Membership.Role != memberstatus.RoleResident {
		t.Errorf("role = %q, want resident", res.Membership.Role)
	}
	if res.Membership.HouseholdID != nil {
		t.Errorf("household_id = %v, want nil", res.Membership.HouseholdID)
	}
	if res.ProvisioningDegraded {
		t.Error("unexpected degraded provisioning")
	}
	if res.User.Email != "new@example.com" {
		t.Errorf("user email = %q", res.User.Email)
	}

	// The identical call again reports the duplicate, it does not fail
	// the bulk row with an infrastructure error.
	_, err = env.engine.InviteOrJoin(ctx, tenantID, actor, InviteRequest{
		Email: "new@example.com",
		Role:  memberstatus.RoleResident,
		Unit:  &unit,
	})
	if !errors.Is(err, membershipstore.ErrAlreadyMember) {
		t.Fatalf("second invite err = %v, want ErrAlreadyMember", err)
	}
	if CodeFor(err) != CodeAlreadyMember {
		t.Errorf("CodeFor = %q, want %q", CodeFor(err), CodeAlreadyMember)
	}
}

func TestInviteOrJoinForbiddenActorProvisionsNothing(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tenantID := primitive.NewObjectID()
	residentID, _ := env.seedMember(t, tenantID, "resident@example.com", memberstatus.RoleResident, memberstatus.Approved)

	usersBefore := len(env.users.rows)
	_, err := env.engine.InviteOrJoin(ctx, tenantID, ActorRef{UserID: residentID}, InviteRequest{
		Email: "victim@example.com",
		Role:  memberstatus.RoleResident,
	})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if len(env.users.rows) != usersBefore {
		t.Error("forbidden invite provisioned an identity")
	}
	if len(env.memberships.rows) != 1 {
		t.Errorf("membership count = %d, want 1 (actor only)", len(env.memberships.rows))
	}
}

func TestInviteOrJoinSharedHousehold(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tenantID := primitive.NewObjectID()
	actor := env.manager(t, tenantID)

	var householdIDs []primitive.ObjectID
	for _, email := range []string{"a@example.com", "b@example.com"} {
		res, err := env.engine.InviteOrJoin(ctx, tenantID, actor, InviteRequest{
			Email:         email,
			Role:          memberstatus.RoleResident,
			HouseholdName: "Unit 202",
		})
		if err != nil {
			t.Fatalf("invite %s: %v", email, err)
		}
		if res.Membership.HouseholdID == nil {
			t.Fatalf("invite %s: household_id is nil", email)
		}
		householdIDs = append(householdIDs, *res.Membership.HouseholdID)
	}

	if len(env.households.rows) != 1 {
		t.Fatalf("household count = %d, want 1", len(env.households.rows))
	}
	if householdIDs[0] != householdIDs[1] {
		t.Error("memberships point to different households")
	}
}

func TestInviteOrJoinSuperAdmin(t *testing.T) {
	env := newTestEnv()
	tenantID := primitive.NewObjectID()

	res, err := env.engine.InviteOrJoin(context.Background(), tenantID,
		ActorRef{UserID: primitive.NewObjectID(), SuperAdmin: true},
		InviteRequest{Email: "ops@example.com", Role: memberstatus.RoleCommunityManager})
	if err != nil {
		t.Fatalf("super-admin invite: %v", err)
	}
	if res.Membership.Role != memberstatus.RoleCommunityManager {
		t.Errorf("role = %q", res.Membership.Role)
	}
}

func TestInviteOrJoinDegradedProvisioning(t *testing.T) {
	env := newTestEnv()
	env.provider.RejectDomains = map[string]bool{"bounced.example": true}
	tenantID := primitive.NewObjectID()
	actor := env.manager(t, tenantID)

	res, err := env.engine.InviteOrJoin(context.Background(), tenantID, actor, InviteRequest{
		Email: "someone@bounced.example",
		Role:  memberstatus.RoleResident,
	})
	if err != nil {
		t.Fatalf("InviteOrJoin: %v", err)
	}
	if !res.ProvisioningDegraded {
		t.Fatal("expected degraded provisioning")
	}
	if res.ActivationToken == "" {
		t.Error("degraded provisioning returned no activation token")
	}
	if !res.User.ActivationPending {
		t.Error("shadow user not marked activation-pending")
	}
	if res.Membership.Status != memberstatus.Approved {
		t.Errorf("membership still created approved, got %q", res.Membership.Status)
	}
}

func TestInviteOrJoinInvalidInputs(t *testing.T) {
	env := newTestEnv()
	tenantID := primitive.NewObjectID()
	actor := env.manager(t, tenantID)

	_, err := env.engine.InviteOrJoin(context.Background(), tenantID, actor, InviteRequest{
		Email: "not-an-email",
		Role:  memberstatus.RoleResident,
	})
	if !errors.Is(err, ErrInvalidEmail) {
		t.Errorf("bad email err = %v, want ErrInvalidEmail", err)
	}

	_, err = env.engine.InviteOrJoin(context.Background(), tenantID, actor, InviteRequest{
		Email: "fine@example.com",
		Role:  "janitor",
	})
	if !errors.Is(err, ErrInvalidRole) {
		t.Errorf("bad role err = %v, want ErrInvalidRole", err)
	}
}

func TestInviteOrJoinProviderUnavailable(t *testing.T) {
	env := newTestEnv()
	flaky := &flakyProvider{inner: env.provider}
	flaky.failures = 2 // initial call and its retry

	log := zap.NewNop()
	identity := NewIdentityResolver(env.users, flaky, log)
	identity.backoff = time.Millisecond
	env.engine.identity = identity

	tenantID := primitive.NewObjectID()
	actor := env.manager(t, tenantID)

	_, err := env.engine.InviteOrJoin(context.Background(), tenantID, actor, InviteRequest{
		Email: "new@example.com",
		Role:  memberstatus.RoleResident,
	})
	if !errors.Is(err, ErrIdentityProviderUnavailable) {
		t.Fatalf("err = %v, want ErrIdentityProviderUnavailable", err)
	}
}

func TestInviteOrJoinRetriesTransientStoreFailure(t *testing.T) {
	env := newTestEnv()
	tenantID := primitive.NewObjectID()
	actor := env.manager(t, tenantID)

	// One injected failure on the user store: the retry absorbs it and
	// the invite still lands.
	env.users.failures = 1
	res, err := env.engine.InviteOrJoin(context.Background(), tenantID, actor, InviteRequest{
		Email: "new@example.com",
		Role:  memberstatus.RoleResident,
	})
	if err != nil {
		t.Fatalf("InviteOrJoin with one transient failure: %v", err)
	}
	if res.Membership.Status != memberstatus.Approved {
		t.Errorf("status = %q", res.Membership.Status)
	}

	// Two consecutive failures exhaust the single retry.
	env.users.failures = 2
	_, err = env.engine.InviteOrJoin(context.Background(), tenantID, actor, InviteRequest{
		Email: "other@example.com",
		Role:  memberstatus.RoleResident,
	})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
}

func TestRequestToJoinCreatesPending(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tenantID := primitive.NewObjectID()
	u, err := env.users.Create(ctx, models.User{Email: "walkup@example.com"})
	if err != nil {
		t.Fatal(err)
	}

	m, err := env.engine.RequestToJoin(ctx, tenantID, u.ID, nil)
	if err != nil {
		t.Fatalf("RequestToJoin: %v", err)
	}
	if m.Status != memberstatus.Pending {
		t.Errorf("status = %q, want pending", m.Status)
	}
	if m.Role != memberstatus.RoleResident {
		t.Errorf("role = %q, want resident", m.Role)
	}

	if _, err := env.engine.RequestToJoin(ctx, tenantID, u.ID, nil); !errors.Is(err, membershipstore.ErrAlreadyMember) {
		t.Errorf("duplicate join err = %v, want ErrAlreadyMember", err)
	}
}

func TestTransitionMembership(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tenantID := primitive.NewObjectID()
	actor := env.manager(t, tenantID)
	_, pendingID := env.seedMember(t, tenantID, "applicant@example.com", memberstatus.RoleResident, memberstatus.Pending)

	m, err := env.engine.TransitionMembership(ctx, actor, pendingID, memberstatus.Approved)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if m.Status != memberstatus.Approved {
		t.Errorf("status = %q", m.Status)
	}

	// approved -> rejected is not an edge.
	if _, err := env.engine.TransitionMembership(ctx, actor, pendingID, memberstatus.Rejected); !errors.Is(err, membershipstore.ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}

	// A resident cannot transition anyone.
	residentID, _ := env.seedMember(t, tenantID, "bystander@example.com", memberstatus.RoleResident, memberstatus.Approved)
	if _, err := env.engine.TransitionMembership(ctx, ActorRef{UserID: residentID}, pendingID, memberstatus.Suspended); !errors.Is(err, ErrForbidden) {
		t.Errorf("resident transition err = %v, want ErrForbidden", err)
	}

	if _, err := env.engine.TransitionMembership(ctx, actor, primitive.NewObjectID(), memberstatus.Approved); !errors.Is(err, membershipstore.ErrNotFound) {
		t.Errorf("missing membership err = %v, want ErrNotFound", err)
	}
}

func TestSuspendedManagerHasNoStanding(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tenantID := primitive.NewObjectID()
	suspendedID, _ := env.seedMember(t, tenantID, "exmanager@example.com", memberstatus.RoleCommunityManager, memberstatus.Suspended)
	_, targetID := env.seedMember(t, tenantID, "applicant@example.com", memberstatus.RoleResident, memberstatus.Pending)

	_, err := env.engine.TransitionMembership(ctx, ActorRef{UserID: suspendedID}, targetID, memberstatus.Approved)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("suspended manager err = %v, want ErrForbidden", err)
	}
}

func TestRemoveMembershipIdempotent(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tenantID := primitive.NewObjectID()
	actor := env.manager(t, tenantID)
	_, targetID := env.seedMember(t, tenantID, "leaver@example.com", memberstatus.RoleResident, memberstatus.Approved)

	if err := env.engine.RemoveMembership(ctx, actor, targetID); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if err := env.engine.RemoveMembership(ctx, actor, targetID); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}

func TestAttachAndDetachHousehold(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	tenantID := primitive.NewObjectID()
	actor := env.manager(t, tenantID)
	_, targetID := env.seedMember(t, tenantID, "mover@example.com", memberstatus.RoleResident, memberstatus.Approved)

	m, err := env.engine.AttachHousehold(ctx, actor, targetID, "Unit 7")
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if m.HouseholdID == nil {
		t.Fatal("household_id still nil after attach")
	}

	m, err = env.engine.DetachHousehold(ctx, actor, targetID)
	if err != nil {
		t.Fatalf("detach: %v", err)
	}
	if m.HouseholdID != nil {
		t.Error("household_id not cleared")
	}
	if m.IsHouseholdHead {
		t.Error("head flag survived detach")
	}
}

func TestCheckAccessDecisions(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	activeTenant := primitive.NewObjectID()
	lapsedTenant := primitive.NewObjectID()
	env.subs.set(models.SubscriptionState{
		TenantID:         activeTenant,
		Status:           models.SubStatusActive,
		CurrentPeriodEnd: time.Now().Add(24 * time.Hour),
	})
	env.subs.set(models.SubscriptionState{
		TenantID:         lapsedTenant,
		Status:           models.SubStatusPastDue,
		CurrentPeriodEnd: time.Now().Add(24 * time.Hour), // status gates, not period
	})
	env.features.setDefault("visitor_codes", true)
	env.features.setDefault("messaging", false)

	tests := []struct {
		name       string
		tenant     primitive.ObjectID
		featureKey string
		allowed    bool
		reason     string
	}{
		{"active tenant, enabled feature", activeTenant, "visitor_codes", true, ReasonAllowed},
		{"active tenant, disabled feature", activeTenant, "messaging", false, ReasonFeatureDisabled},
		{"active tenant, unknown feature", activeTenant, "teleportation", false, ReasonFeatureDisabled},
		{"past_due tenant, ordinary feature", lapsedTenant, "visitor_codes", false, ReasonSubscriptionExpired},
		{"past_due tenant, billing bypass", lapsedTenant, BillingFeatureKey, true, ReasonBillingBypass},
		{"no subscription row at all", primitive.NewObjectID(), "visitor_codes", false, ReasonSubscriptionExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := env.engine.CheckAccess(ctx, tt.tenant, memberstatus.RoleResident, tt.featureKey)
			if err != nil {
				t.Fatalf("CheckAccess: %v", err)
			}
			if d.Allowed != tt.allowed || d.Reason != tt.reason {
				t.Errorf("decision = %+v, want allowed=%v reason=%q", d, tt.allowed, tt.reason)
			}
		})
	}
}

func TestCheckAccessFailsClosedOnStoreError(t *testing.T) {
	env := newTestEnv()
	env.subs.failures = 2 // call plus retry

	_, err := env.engine.CheckAccess(context.Background(), primitive.NewObjectID(), memberstatus.RoleResident, "visitor_codes")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("err = %v, want ErrStoreUnavailable", err)
	}
}
