package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/commonward/communitygate/internal/app/system/memberstatus"
	"github.com/commonward/communitygate/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateTenant creates a test tenant with the given slug and name.
// Returns the created tenant with its generated ID.
func (f *Fixtures) CreateTenant(ctx context.Context, slug, name string) models.Tenant {
	f.t.Helper()

	tenant := models.Tenant{
		ID:          primitive.NewObjectID(),
		Slug:        slug,
		Name:        name,
		NameCI:      text.Fold(name),
		OwnerUserID: primitive.NewObjectID(),
		CreatedAt:   time.Now().UTC(),
	}

	_, err := f.db.Collection("tenants").InsertOne(ctx, tenant)
	if err != nil {
		f.t.Fatalf("failed to create test tenant: %v", err)
	}

	return tenant
}

// CreateUser creates a test user with the given name and email.
func (f *Fixtures) CreateUser(ctx context.Context, fullName, email string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	user := models.User{
		ID:        primitive.NewObjectID(),
		FullName:  fullName,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := f.db.Collection("users").InsertOne(ctx, user)
	if err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}

	return user
}

// CreateMembership creates an approved membership binding the user to the
// tenant with the given role.
func (f *Fixtures) CreateMembership(ctx context.Context, tenantID, userID primitive.ObjectID, role string) models.Membership {
	f.t.Helper()
	return f.CreateMembershipWithStatus(ctx, tenantID, userID, role, memberstatus.Approved)
}

// CreateMembershipWithStatus creates a membership in an explicit status.
func (f *Fixtures) CreateMembershipWithStatus(ctx context.Context, tenantID, userID primitive.ObjectID, role, status string) models.Membership {
	f.t.Helper()

	now := time.Now().UTC()
	m := models.Membership{
		ID:        primitive.NewObjectID(),
		TenantID:  tenantID,
		UserID:    userID,
		Role:      role,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := f.db.Collection("memberships").InsertOne(ctx, m)
	if err != nil {
		f.t.Fatalf("failed to create test membership: %v", err)
	}

	return m
}

// CreateHousehold creates a household in the given tenant.
func (f *Fixtures) CreateHousehold(ctx context.Context, tenantID primitive.ObjectID, name string) models.Household {
	f.t.Helper()

	h := models.Household{
		ID:        primitive.NewObjectID(),
		TenantID:  tenantID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	_, err := f.db.Collection("households").InsertOne(ctx, h)
	if err != nil {
		f.t.Fatalf("failed to create test household: %v", err)
	}

	return h
}

// SetSubscription inserts a subscription row for the tenant.
func (f *Fixtures) SetSubscription(ctx context.Context, tenantID primitive.ObjectID, status string, periodEnd time.Time) models.SubscriptionState {
	f.t.Helper()

	s := models.SubscriptionState{
		ID:               primitive.NewObjectID(),
		TenantID:         tenantID,
		PlanID:           "test-plan",
		Status:           status,
		CurrentPeriodEnd: periodEnd,
		UpdatedAt:        time.Now().UTC(),
	}

	_, err := f.db.Collection("subscription_states").InsertOne(ctx, s)
	if err != nil {
		f.t.Fatalf("failed to create test subscription: %v", err)
	}

	return s
}

// SetFeatureDefault inserts a feature definition with the given global default.
func (f *Fixtures) SetFeatureDefault(ctx context.Context, key string, enabled bool) models.FeatureDefinition {
	f.t.Helper()

	d := models.FeatureDefinition{
		ID:             primitive.NewObjectID(),
		Key:            key,
		Name:           key,
		DefaultEnabled: enabled,
	}

	_, err := f.db.Collection("feature_definitions").InsertOne(ctx, d)
	if err != nil {
		f.t.Fatalf("failed to create test feature definition: %v", err)
	}

	return d
}
