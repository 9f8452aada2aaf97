// internal/domain/models/membership.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Membership binds a user to a tenant with a role and a lifecycle status.
//
// NOTE:
//   - At most one membership exists per (tenant_id, user_id). The
//     memberships collection carries a unique compound index on that pair;
//     stores rely on it rather than read-then-write checks.
//   - IsHouseholdHead must never be true while HouseholdID is nil. Any
//     write that clears HouseholdID also clears the head flag.
type Membership struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID primitive.ObjectID `bson:"tenant_id" json:"tenant_id"`
	UserID   primitive.ObjectID `bson:"user_id" json:"user_id"`

	Role   string `bson:"role" json:"role"`     // resident | community_manager | guard | head_of_security
	Status string `bson:"status" json:"status"` // pending | approved | suspended | rejected

	HouseholdID     *primitive.ObjectID `bson:"household_id,omitempty" json:"household_id,omitempty"`
	IsHouseholdHead bool                `bson:"is_household_head,omitempty" json:"is_household_head,omitempty"`
	Unit            *string             `bson:"unit,omitempty" json:"unit,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
