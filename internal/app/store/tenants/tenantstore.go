// internal/app/store/tenants/tenantstore.go

// Package tenantstore provides read access to tenant rows. Tenants are
// created and mutated by the external provisioning flow; the entitlement
// engine only looks them up and counts them for the payment policy.
package tenantstore

import (
	"context"

	"github.com/commonward/communitygate/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("tenants")}
}

// GetByID loads a tenant by ObjectID, or nil if none exists.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Tenant, error) {
	var t models.Tenant
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetBySlug loads a tenant by its slug, or nil if none exists.
func (s *Store) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	var t models.Tenant
	err := s.c.FindOne(ctx, bson.M{"slug": slug}).Decode(&t)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CountByOwner returns how many tenants a user owns. The subscription
// provisioning path feeds this into the first-community-free payment
// policy.
func (s *Store) CountByOwner(ctx context.Context, ownerUserID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"owner_user_id": ownerUserID})
}
