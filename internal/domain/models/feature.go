// internal/domain/models/feature.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FeatureDefinition is platform reference data: one row per feature key
// with its global default. The set is seeded at startup and managed
// outside the entitlement engine; the resolver only reads it.
type FeatureDefinition struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Key            string             `bson:"key" json:"key"` // unique
	Name           string             `bson:"name" json:"name"`
	DefaultEnabled bool               `bson:"default_enabled" json:"default_enabled"`
}

// FeatureOverride is an administrative exception to a feature's global
// default. Role is nil for a tenant-wide override and set for a
// (tenant, role) override. Uniqueness on (tenant_id, role, key); writes
// are last-write-wins upserts with no history.
type FeatureOverride struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID primitive.ObjectID `bson:"tenant_id" json:"tenant_id"`
	Role     *string            `bson:"role,omitempty" json:"role,omitempty"`
	Key      string             `bson:"key" json:"key"`
	Enabled  bool               `bson:"enabled" json:"enabled"`

	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
