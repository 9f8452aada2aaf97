// internal/domain/models/household.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Household groups memberships within a tenant that share a residential
// unit. A household must belong to the same tenant as every membership
// assigned to it; cross-tenant assignment is rejected by the stores.
type Household struct {
	ID       primitive.ObjectID `bson:"_id" json:"id"`
	TenantID primitive.ObjectID `bson:"tenant_id" json:"tenant_id"`
	Name     string             `bson:"name" json:"name"` // exact-match lookup key within the tenant (case-sensitive)

	ContactEmail *string `bson:"contact_email,omitempty" json:"contact_email,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
