// internal/domain/models/subscription.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Subscription statuses. Only Active and Trialing pass the subscription
// gate; PastDue and Canceled do not, regardless of the period end.
const (
	SubStatusActive   = "active"
	SubStatusTrialing = "trialing"
	SubStatusPastDue  = "past_due"
	SubStatusCanceled = "canceled"
)

// SubscriptionState is the singleton billing row for a tenant. It is
// replaced by upsert, never accumulated: at most one row exists per
// tenant_id (unique index). Absence of a row means the tenant is
// inactive; even free tenants carry an explicit row with a far-future
// period end.
type SubscriptionState struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	TenantID         primitive.ObjectID `bson:"tenant_id" json:"tenant_id"`
	PlanID           string             `bson:"plan_id" json:"plan_id"`
	Status           string             `bson:"status" json:"status"`
	CurrentPeriodEnd time.Time          `bson:"current_period_end" json:"current_period_end"`

	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsValidSubscriptionStatus reports whether s is a known subscription status.
func IsValidSubscriptionStatus(s string) bool {
	switch s {
	case SubStatusActive, SubStatusTrialing, SubStatusPastDue, SubStatusCanceled:
		return true
	}
	return false
}
