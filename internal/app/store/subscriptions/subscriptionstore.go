// internal/app/store/subscriptions/subscriptionstore.go

// Package subscriptionstore manages the per-tenant subscription singleton.
// The row is replaced by upsert keyed on tenant_id; billing webhooks and
// admin actions land through Save and never accumulate history here.
package subscriptionstore

import (
	"context"
	"errors"
	"time"

	"github.com/commonward/communitygate/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("subscription_states")}
}

var errBadStatus = errors.New(`subscription status must be "active"|"trialing"|"past_due"|"canceled"`)

// Get returns the tenant's subscription row, or nil if none exists.
// Absence is meaningful: the subscription gate treats it as inactive.
func (s *Store) Get(ctx context.Context, tenantID primitive.ObjectID) (*models.SubscriptionState, error) {
	var sub models.SubscriptionState
	err := s.c.FindOne(ctx, bson.M{"tenant_id": tenantID}).Decode(&sub)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Save upserts the tenant's subscription row. Works whether or not a row
// already exists; the unique index on tenant_id keeps it a singleton.
func (s *Store) Save(ctx context.Context, sub models.SubscriptionState) error {
	if !models.IsValidSubscriptionStatus(sub.Status) {
		return errBadStatus
	}

	filter := bson.M{"tenant_id": sub.TenantID}
	update := bson.M{
		"$set": bson.M{
			"plan_id":            sub.PlanID,
			"status":             sub.Status,
			"current_period_end": sub.CurrentPeriodEnd,
			"updated_at":         time.Now().UTC(),
		},
		"$setOnInsert": bson.M{
			"_id":       primitive.NewObjectID(),
			"tenant_id": sub.TenantID,
		},
	}
	opts := options.Update().SetUpsert(true)
	_, err := s.c.UpdateOne(ctx, filter, update, opts)
	return err
}

// Delete removes the tenant's subscription row. Used when a tenant is
// deprovisioned; deleting a missing row is a no-op.
func (s *Store) Delete(ctx context.Context, tenantID primitive.ObjectID) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"tenant_id": tenantID})
	return err
}
