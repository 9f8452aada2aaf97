// internal/app/entitlement/interfaces.go
package entitlement

import (
	"context"

	"github.com/commonward/communitygate/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// The engine consumes narrow views of the store packages so tests can
// substitute in-memory fakes. The concrete Mongo stores satisfy these
// without adapters.

// MembershipStore is the slice of membershipstore.Store the engine uses.
type MembershipStore interface {
	Create(ctx context.Context, m models.Membership) (models.Membership, error)
	Get(ctx context.Context, tenantID, userID primitive.ObjectID) (*models.Membership, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Membership, error)
	Transition(ctx context.Context, id primitive.ObjectID, newStatus string) (*models.Membership, error)
	AssignHousehold(ctx context.Context, id primitive.ObjectID, householdID *primitive.ObjectID) (*models.Membership, error)
	Remove(ctx context.Context, id primitive.ObjectID) error
}

// HouseholdStore resolves or creates households within a tenant.
type HouseholdStore interface {
	ResolveOrCreate(ctx context.Context, tenantID primitive.ObjectID, name string) (models.Household, error)
}

// UserStore is the shadow-profile store the identity resolver reads and writes.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, u models.User) (models.User, error)
}

// FeatureStore serves the three layers of the feature hierarchy.
type FeatureStore interface {
	Definition(ctx context.Context, key string) (*models.FeatureDefinition, error)
	TenantOverride(ctx context.Context, tenantID primitive.ObjectID, key string) (*models.FeatureOverride, error)
	RoleOverride(ctx context.Context, tenantID primitive.ObjectID, role, key string) (*models.FeatureOverride, error)
}

// SubscriptionStore reads the per-tenant subscription singleton.
type SubscriptionStore interface {
	Get(ctx context.Context, tenantID primitive.ObjectID) (*models.SubscriptionState, error)
}

// TenantCounter feeds the first-community-free payment policy.
type TenantCounter interface {
	CountByOwner(ctx context.Context, ownerUserID primitive.ObjectID) (int64, error)
}
