// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is the shadow profile kept for identity resolution. The identity
// provider owns the canonical account; this record exists so lookups by
// email succeed even before the user completes activation.
//
// ActivationPending is true for users provisioned through the degraded
// path: the provider could not deliver an invite, so the user holds a
// deferred-activation token instead (stored as a bcrypt hash).
type User struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email    string             `bson:"email" json:"email"` // stored normalized (lowercase, trimmed)
	FullName string             `bson:"full_name" json:"full_name"`

	ActivationPending   bool   `bson:"activation_pending,omitempty" json:"activation_pending,omitempty"`
	ActivationTokenHash string `bson:"activation_token_hash,omitempty" json:"-"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
