// internal/domain/models/tenant.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Tenant is an isolated community instance. Tenants are created by an
// external provisioning flow; the entitlement engine only reads them.
// Slug is unique and immutable after creation.
type Tenant struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	Slug        string             `bson:"slug" json:"slug"`
	Name        string             `bson:"name" json:"name"`
	NameCI      string             `bson:"name_ci" json:"name_ci"` // lowercase, diacritics-stripped
	OwnerUserID primitive.ObjectID `bson:"owner_user_id" json:"owner_user_id"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
